// Command genmock generates a deterministic mock DATEX II feed document for
// tests and local runs, and optionally the GeoJSON fixture the exporter
// would produce from it. Running the actual domain extractor keeps the
// expected fixture aligned with real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/content.xml \
//	  -expected-out data/mock/datex-diro.geojson \
//	  -preset generic -situations 40 -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/road-event-etl/internal/adapter/export"
	"github.com/couchcryptid/road-event-etl/internal/domain"
)

// baseTime is the frozen "now" all generated timestamps are phrased around.
var baseTime = time.Date(2024, time.October, 15, 12, 0, 0, 0, time.UTC)

var diroSources = []string{
	"DIR Ouest / CEI de Rennes",
	"DIR Ouest / CEI de Vannes",
	"DIR Ouest / District de Nantes",
	"DIRO - CIGT de Saint-Brieuc",
}

var otherSources = []string{
	"Autre Organisme",
	"DIR Atlantique / CEI de Bordeaux",
	"Conseil Départemental 35",
}

var recordTypes = []string{
	"Accident",
	"MaintenanceWorks",
	"AbnormalTraffic",
	"RoadOrCarriagewayOrLaneManagement",
}

var genericComments = []string{
	"Accident impliquant deux véhicules, voie de droite neutralisée",
	"Travaux de chaussée, circulation alternée",
	"Bouchon de %d km dans le sens Rennes-Brest",
	"Chaussée rétrécie, prudence demandée",
}

var floodComments = []string{
	"Route inondée suite aux fortes pluies",
	"Submersion de la chaussée au niveau du pont",
	"Crue du fleuve, route coupée",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the mock feed XML")
	expectedOut := flag.String("expected-out", "", "optional output path for the extracted GeoJSON fixture")
	preset := flag.String("preset", "generic", "filter preset for the expected fixture: generic or flooding")
	situations := flag.Int("situations", 40, "number of situations to generate")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	faker := gofakeit.New(*seed)
	doc := buildFeed(faker, *situations)

	if err := writeFile(*out, []byte(doc)); err != nil {
		return fmt.Errorf("writing feed fixture: %w", err)
	}
	log.Printf("wrote feed fixture: %s (%d situations)", *out, *situations)

	if *expectedOut == "" {
		return nil
	}

	filter, err := domain.PresetByName(*preset)
	if err != nil {
		return err
	}
	filter.Now = baseTime

	// Freeze the clock so updated_at fields are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(baseTime))
	defer domain.SetClock(nil)

	env, err := domain.ParseDocument([]byte(doc))
	if err != nil {
		return fmt.Errorf("re-parsing generated feed: %w", err)
	}
	events, stats := domain.Extract(env, filter)

	fc := export.BuildFeatureCollection(events, stats, filter, baseTime)
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal expected fixture: %w", err)
	}
	if err := writeFile(*expectedOut, append(data, '\n')); err != nil {
		return fmt.Errorf("writing expected fixture: %w", err)
	}
	log.Printf("wrote expected fixture: %s (%d events)", *expectedOut, len(events))

	return nil
}

func buildFeed(f *gofakeit.Faker, n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope">
 <SOAP-ENV:Body>
  <d2LogicalModel xmlns="http://datex2.eu/schema/2/2_0" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" modelBaseVersion="2">
   <payloadPublication xsi:type="SituationPublication" lang="fr">
`)
	fmt.Fprintf(&b, "    <publicationTime>%s</publicationTime>\n", stamp(baseTime))

	for i := 0; i < n; i++ {
		writeSituation(&b, f)
	}

	b.WriteString(`   </payloadPublication>
  </d2LogicalModel>
 </SOAP-ENV:Body>
</SOAP-ENV:Envelope>
`)
	return b.String()
}

func writeSituation(b *strings.Builder, f *gofakeit.Faker) {
	id := "BF" + uuid.NewString()[:8]
	fmt.Fprintf(b, "    <situation id=%q version=\"1\">\n", id)
	// A fifth of the situations omit overallSeverity to exercise the default.
	if f.Number(1, 5) > 1 {
		fmt.Fprintf(b, "     <overallSeverity>%s</overallSeverity>\n",
			f.RandomString([]string{"low", "medium", "high", "highest"}))
	}
	for r := 0; r < f.Number(1, 2); r++ {
		writeRecord(b, f)
	}
	b.WriteString("    </situation>\n")
}

func writeRecord(b *strings.Builder, f *gofakeit.Faker) {
	flooding := f.Number(1, 5) == 1

	typ := "ns2:" + f.RandomString(recordTypes)
	if flooding {
		typ = "ns2:EnvironmentalObstruction"
	}
	fmt.Fprintf(b, "     <situationRecord xsi:type=%q id=%q>\n", typ, "R"+uuid.NewString()[:8])

	source := f.RandomString(diroSources)
	if f.Number(1, 10) <= 3 {
		source = f.RandomString(otherSources)
	}
	fmt.Fprintf(b, "      <source><sourceIdentification>%s</sourceIdentification></source>\n", source)

	start := baseTime.Add(-time.Duration(f.Number(1, 72)) * time.Hour)
	b.WriteString("      <validity><validityTimeSpecification>\n")
	fmt.Fprintf(b, "       <overallStartTime>%s</overallStartTime>\n", stamp(start))
	switch f.Number(1, 4) {
	case 1: // already ended
		fmt.Fprintf(b, "       <overallEndTime>%s</overallEndTime>\n", stamp(start.Add(2*time.Hour)))
	case 2: // ends in the future
		fmt.Fprintf(b, "       <overallEndTime>%s</overallEndTime>\n", stamp(baseTime.Add(24*time.Hour)))
	}
	b.WriteString("      </validityTimeSpecification></validity>\n")

	comment := f.RandomString(genericComments)
	if flooding {
		comment = f.RandomString(floodComments)
	}
	if strings.Contains(comment, "%d") {
		comment = fmt.Sprintf(comment, f.Number(2, 15))
	}
	fmt.Fprintf(b, "      <generalPublicComment><comment><values><value lang=\"fr\">%s</value></values></comment></generalPublicComment>\n", comment)

	// Half of the flooding records carry an explicit subtype; the others
	// rely on the keyword fallback over their comment.
	if flooding && f.Bool() {
		fmt.Fprintf(b, "      <environmentalObstructionType>%s</environmentalObstructionType>\n",
			f.RandomString([]string{"flood", "flashFloods"}))
	}

	b.WriteString("      <groupOfLocations xsi:type=\"Point\"><locationForDisplay>\n")
	// A tenth of the records lack coordinates.
	if f.Number(1, 10) > 1 {
		fmt.Fprintf(b, "       <latitude>%.5f</latitude><longitude>%.5f</longitude>\n",
			f.Float64Range(47.0, 48.9), f.Float64Range(-4.8, 0.0))
	}
	b.WriteString("      </locationForDisplay>\n")
	fmt.Fprintf(b, "      <roadInformation><roadNumber>N%d</roadNumber></roadInformation>\n", f.Number(10, 176))
	b.WriteString("      </groupOfLocations>\n")

	b.WriteString("     </situationRecord>\n")
}

// stamp renders a timestamp the way the feed does: local time with the
// French summer offset suffix.
func stamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05") + "+02:00"
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

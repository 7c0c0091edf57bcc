// Command validate performs integrity checks on exporter output: the GeoJSON
// FeatureCollection and the statistics report. It verifies geometry sanity,
// the per-feature property contract, preset conformance, and that the
// metadata block agrees with the features and the report.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -geojson data/datex-diro.geojson \
//	  -report data/datex-diro-stats.txt \
//	  -preset generic
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

// Metropolitan France bounding box. Feed events outside it mean swapped or
// garbage coordinates.
const (
	minLat, maxLat = 41.0, 52.0
	minLon, maxLon = -6.0, 10.0
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	geojsonPath := flag.String("geojson", "", "path to the exported GeoJSON file")
	reportPath := flag.String("report", "", "optional path to the statistics report")
	preset := flag.String("preset", "generic", "preset the output was produced with: generic or flooding")
	maxDescription := flag.Int("max-description", domain.DefaultMaxDescriptionLen, "description length cap used by the export")
	flag.Parse()

	if *geojsonPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	filter, err := domain.PresetByName(*preset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	if code := run(*geojsonPath, *reportPath, filter, *maxDescription); code != 0 {
		os.Exit(code)
	}
}

func run(geojsonPath, reportPath string, filter domain.FilterConfig, maxDescription int) int {
	fmt.Println("=== Export Output Validation ===")
	fmt.Println()

	fc, err := loadCollection(geojsonPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load GeoJSON: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateGeometry(fc),
		validateProperties(fc, maxDescription),
		validatePresetConformance(fc, filter),
		validateMetadata(fc, filter),
	}
	if reportPath != "" {
		p, err := validateReport(reportPath, fc, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load report: %v\n", err)
			return 1
		}
		phases = append(phases, p)
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Features: %d\n", len(fc.Features))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(data)
}

// ── Phase 1: Geometry ──
// Every feature must carry a finite Point inside metropolitan France.

func validateGeometry(fc *geojson.FeatureCollection) *phase {
	p := &phase{name: "Phase 1: Geometry (points, bounds)"}

	for i, f := range fc.Features {
		if f.Geometry == nil {
			p.errorf("feature %d: missing geometry", i)
			continue
		}
		if f.Geometry.GeoJSONType() != "Point" {
			p.errorf("feature %d: geometry type %q, expected Point", i, f.Geometry.GeoJSONType())
			continue
		}
		pt := f.Point()
		lon, lat := pt.Lon(), pt.Lat()
		if math.IsNaN(lon) || math.IsInf(lon, 0) || math.IsNaN(lat) || math.IsInf(lat, 0) {
			p.errorf("feature %d: non-finite coordinates [%v, %v]", i, lon, lat)
			continue
		}
		if lat < minLat || lat > maxLat || lon < minLon || lon > maxLon {
			p.errorf("feature %d: coordinates [%g, %g] outside metropolitan France (check lon/lat order)", i, lon, lat)
		}
	}
	return p
}

// ── Phase 2: Property contract ──

var validSeverities = map[string]bool{
	"low": true, "lowest": true, "medium": true, "high": true,
	"highest": true, "none": true, "unknown": true,
}

func validateProperties(fc *geojson.FeatureCollection, maxDescription int) *phase {
	p := &phase{name: "Phase 2: Property contract"}

	for i, f := range fc.Features {
		pf := func(format string, args ...any) {
			p.errorf("feature %d: "+format, append([]any{i}, args...)...)
		}

		// The id is the parent situation's identifier. A situation with
		// several surviving records yields several features sharing it, so
		// presence is checked but uniqueness is not.
		if propString(f, "id") == "" {
			pf("missing id")
		}

		source := propString(f, "source")
		if source == "" {
			pf("missing source")
		} else if !strings.Contains(source, "DIR Ouest") && !strings.Contains(source, "DIRO") {
			pf("source %q does not match the operator filter", source)
		}

		if sev := propString(f, "severity"); !validSeverities[sev] {
			pf("severity %q not a known DATEX II level", sev)
		}

		desc := propString(f, "description")
		if desc == "" {
			pf("missing description (expected at least the placeholder)")
		} else if n := utf8.RuneCountInString(desc); n > maxDescription {
			pf("description is %d runes, cap is %d", n, maxDescription)
		}

		if road := propString(f, "road"); road == "" {
			pf("missing road (expected at least %q)", domain.DefaultRoad)
		}

		status := propString(f, "status")
		if status != domain.StatusActive && status != domain.StatusFinished {
			pf("status %q not in {%s, %s}", status, domain.StatusActive, domain.StatusFinished)
		}
		active, ok := f.Properties["is_active"].(bool)
		if !ok {
			pf("missing is_active")
		} else if active != (status == domain.StatusActive) {
			pf("is_active=%v inconsistent with status %q", active, status)
		}

		start := propString(f, "start_date")
		if start == "" {
			pf("missing start_date")
		} else if _, err := time.Parse("2006-01-02T15:04:05", strings.SplitN(start, "+", 2)[0]); err != nil {
			pf("unparsable start_date %q", start)
		}
	}
	return p
}

// ── Phase 3: Preset conformance ──

var floodSubtypes = map[string]bool{
	"flood":                true,
	"flashFloods":          true,
	domain.InferredSubtype: true,
}

func validatePresetConformance(fc *geojson.FeatureCollection, filter domain.FilterConfig) *phase {
	p := &phase{name: "Phase 3: Preset conformance"}

	for i, f := range fc.Features {
		if filter.Category == "" {
			// Generic preset: all events active, each classified with a problem label.
			if status := propString(f, "status"); status != domain.StatusActive {
				p.errorf("feature %d: status %q in an active-only export", i, status)
			}
			if propString(f, "problem") == "" {
				p.errorf("feature %d: missing problem label", i)
			}
			continue
		}

		// Flooding preset.
		subtype := propString(f, "subtype")
		if !floodSubtypes[subtype] {
			p.errorf("feature %d: subtype %q not an accepted flooding subtype", i, subtype)
		}
		inferred, ok := f.Properties["subtype_inferred"].(bool)
		if !ok {
			p.errorf("feature %d: missing subtype_inferred", i)
		} else if inferred != (subtype == domain.InferredSubtype) {
			p.errorf("feature %d: subtype_inferred=%v inconsistent with subtype %q", i, inferred, subtype)
		}
		if _, found := f.Properties["problem"]; found {
			p.errorf("feature %d: flooding export should not carry a problem label", i)
		}
	}
	return p
}

// ── Phase 4: Metadata consistency ──

func validateMetadata(fc *geojson.FeatureCollection, filter domain.FilterConfig) *phase {
	p := &phase{name: "Phase 4: Metadata consistency"}

	meta, ok := fc.ExtraMembers["metadata"].(map[string]any)
	if !ok {
		p.errorf("missing metadata block")
		return p
	}

	if count, ok := asInt(meta["count"]); !ok {
		p.errorf("metadata count missing or not a number")
	} else if count != len(fc.Features) {
		p.errorf("metadata count=%d, collection has %d features", count, len(fc.Features))
	}

	if label, _ := meta["filter"].(string); label != filter.Label {
		p.errorf("metadata filter=%q, preset label is %q", label, filter.Label)
	}

	if gen, _ := meta["generated_at"].(string); gen == "" {
		p.errorf("missing generated_at")
	} else if _, err := time.Parse(time.RFC3339, gen); err != nil {
		p.errorf("unparsable generated_at %q", gen)
	}

	statistics, ok := meta["statistics"].(map[string]any)
	if !ok {
		p.errorf("missing statistics block")
		return p
	}

	bySeverity, _ := statistics["par_severite"].(map[string]any)
	emitted := 0
	for sev, v := range bySeverity {
		n, ok := asInt(v)
		if !ok {
			p.errorf("statistics par_severite[%q] not a number", sev)
			continue
		}
		emitted += n
	}
	if emitted != len(fc.Features) {
		p.errorf("severity breakdown sums to %d, collection has %d features", emitted, len(fc.Features))
	}

	if filter.Category != "" {
		nActive, nFinished := countStatuses(fc)
		if v, ok := asInt(meta["active"]); ok && v != nActive {
			p.errorf("metadata active=%d, features show %d", v, nActive)
		}
		if v, ok := asInt(meta["finished"]); ok && v != nFinished {
			p.errorf("metadata finished=%d, features show %d", v, nFinished)
		}
	}
	return p
}

// ── Phase 5: Report consistency ──
// Cross-checks the text report counters against the GeoJSON.

func validateReport(path string, fc *geojson.FeatureCollection, filter domain.FilterConfig) (*phase, error) {
	p := &phase{name: "Phase 5: Report consistency"}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	report := string(data)

	if !strings.Contains(report, "STATISTIQUES DATEX II DIR OUEST") {
		p.errorf("missing report header")
	}
	if !strings.Contains(report, filter.Label) {
		p.errorf("report does not mention the preset label %q", filter.Label)
	}

	counterLine := "Événements actifs:"
	if filter.Category != "" {
		counterLine = "Enregistrements inondation:"
	}
	n, ok := reportCounter(report, counterLine)
	if !ok {
		p.errorf("report missing counter line %q", counterLine)
	} else if filter.Category == "" && n != len(fc.Features) {
		p.errorf("report says %d active events, GeoJSON has %d features", n, len(fc.Features))
	}
	return p, nil
}

// reportCounter parses the integer following a "Label: N" report line.
func reportCounter(report, label string) (int, bool) {
	for _, line := range strings.Split(report, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, label) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, label)))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ── Helpers ──

func countStatuses(fc *geojson.FeatureCollection) (active, finished int) {
	for _, f := range fc.Features {
		switch propString(f, "status") {
		case domain.StatusActive:
			active++
		case domain.StatusFinished:
			finished++
		}
	}
	return active, finished
}

func propString(f *geojson.Feature, key string) string {
	s, _ := f.Properties[key].(string)
	return s
}

// asInt converts the float64 that encoding/json produces for numbers.
func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

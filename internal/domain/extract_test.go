package domain

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNow is the frozen reference instant: all fixtures are phrased around it.
var testNow = time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)

const (
	diroSource  = "DIR Ouest / CEI de Rennes"
	otherSource = "Autre Organisme"
)

// --- fixture builders ---

func feedDocument(situations ...string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope">
 <SOAP-ENV:Body>
  <d2LogicalModel xmlns="http://datex2.eu/schema/2/2_0" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" modelBaseVersion="2">
   <exchange><supplierIdentification><country>fr</country></supplierIdentification></exchange>
   <payloadPublication xsi:type="SituationPublication" lang="fr">
    <publicationTime>2024-10-15T08:00:00+02:00</publicationTime>
` + strings.Join(situations, "\n") + `
   </payloadPublication>
  </d2LogicalModel>
 </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`)
}

func situationXML(id, severity string, records ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<situation id=%q version="1">`, id)
	if severity != "" {
		fmt.Fprintf(&b, "<overallSeverity>%s</overallSeverity>", severity)
	}
	for _, r := range records {
		b.WriteString(r)
	}
	b.WriteString("</situation>")
	return b.String()
}

type recordOpts struct {
	typ      string // xsi:type, defaults to "ns2:Accident"
	source   string
	start    string
	end      string
	lat      string
	lon      string
	road     string
	subtype  string   // environmentalObstructionType element
	comments []string // French comment values
	extra    string   // raw XML appended inside the record
}

func recordXML(o recordOpts) string {
	if o.typ == "" {
		o.typ = "ns2:Accident"
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<situationRecord xsi:type=%q id="R1">`, o.typ)
	if o.source != "" {
		fmt.Fprintf(&b, "<source><sourceIdentification>%s</sourceIdentification></source>", o.source)
	}
	b.WriteString("<validity><validityStatus>definedByValidityTimeSpec</validityStatus><validityTimeSpecification>")
	if o.start != "" {
		fmt.Fprintf(&b, "<overallStartTime>%s</overallStartTime>", o.start)
	}
	if o.end != "" {
		fmt.Fprintf(&b, "<overallEndTime>%s</overallEndTime>", o.end)
	}
	b.WriteString("</validityTimeSpecification></validity>")
	for _, c := range o.comments {
		fmt.Fprintf(&b, `<generalPublicComment><comment><values><value lang="fr">%s</value></values></comment></generalPublicComment>`, c)
	}
	if o.subtype != "" {
		fmt.Fprintf(&b, "<environmentalObstructionType>%s</environmentalObstructionType>", o.subtype)
	}
	b.WriteString(`<groupOfLocations xsi:type="Point"><locationForDisplay>`)
	if o.lat != "" {
		fmt.Fprintf(&b, "<latitude>%s</latitude>", o.lat)
	}
	if o.lon != "" {
		fmt.Fprintf(&b, "<longitude>%s</longitude>", o.lon)
	}
	b.WriteString("</locationForDisplay>")
	if o.road != "" {
		fmt.Fprintf(&b, "<roadInformation><roadNumber>%s</roadNumber></roadInformation>", o.road)
	}
	b.WriteString("</groupOfLocations>")
	b.WriteString(o.extra)
	b.WriteString("</situationRecord>")
	return b.String()
}

// activeRecord is a minimal record that survives the generic chain.
func activeRecord(source string) string {
	return recordXML(recordOpts{
		source: source,
		start:  "2024-10-15T06:00:00+02:00",
		lat:    "48.11",
		lon:    "-1.68",
	})
}

func mustParse(t *testing.T, raw []byte) *Envelope {
	t.Helper()
	env, err := ParseDocument(raw)
	require.NoError(t, err)
	return env
}

func genericConfig() FilterConfig {
	cfg := GenericPreset()
	cfg.Now = testNow
	return cfg
}

func floodingConfig() FilterConfig {
	cfg := FloodingPreset()
	cfg.Now = testNow
	return cfg
}

// --- operator and severity stages ---

func TestExtract_DefaultSeverity(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "", activeRecord(diroSource))))

	events, stats := Extract(env, genericConfig())

	require.Len(t, events, 1)
	assert.Equal(t, "medium", events[0].Severity)
	assert.Equal(t, 1, stats.BySeverity["medium"])
}

func TestExtract_SeverityFromSituation(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "high", activeRecord(diroSource))))

	events, _ := Extract(env, genericConfig())

	require.Len(t, events, 1)
	assert.Equal(t, "high", events[0].Severity)
}

func TestExtract_OperatorFilter(t *testing.T) {
	env := mustParse(t, feedDocument(
		situationXML("SIT-1", "medium", activeRecord(otherSource)),
		situationXML("SIT-2", "medium", activeRecord("Trafic DIRO district de Nantes")),
		situationXML("SIT-3", "medium", recordXML(recordOpts{
			// No source element at all.
			start: "2024-10-15T06:00:00+02:00",
			lat:   "48.11", lon: "-1.68",
		})),
	))

	events, stats := Extract(env, genericConfig())

	require.Len(t, events, 1)
	assert.Equal(t, "SIT-2", events[0].ID)
	assert.Equal(t, 3, stats.TotalSituations)
	assert.Equal(t, 1, stats.OperatorMatched)
}

// --- temporal stage ---

func TestExtract_MissingStartTimeDrops(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		source: diroSource,
		lat:    "48.11", lon: "-1.68",
	}))))

	events, stats := Extract(env, genericConfig())

	assert.Empty(t, events)
	assert.Equal(t, 1, stats.OperatorMatched)
	assert.Equal(t, 0, stats.Active)
}

func TestExtract_NotYetStartedExcludedFromGeneric(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		source: diroSource,
		start:  "2024-10-16T09:00:00+02:00", // tomorrow
		lat:    "48.11", lon: "-1.68",
	}))))

	events, _ := Extract(env, genericConfig())
	assert.Empty(t, events)
}

func TestExtract_EndedEvent(t *testing.T) {
	ended := situationXML("SIT-1", "medium", recordXML(recordOpts{
		typ:     "ns2:EnvironmentalObstruction",
		source:  diroSource,
		start:   "2024-10-14T06:00:00+02:00",
		end:     "2024-10-14T20:00:00+02:00", // before testNow
		subtype: "flood",
		lat:     "48.11", lon: "-1.68",
	}))

	t.Run("excluded from generic active-only mode", func(t *testing.T) {
		events, _ := Extract(mustParse(t, feedDocument(ended)), genericConfig())
		assert.Empty(t, events)
	})

	t.Run("retained by flooding preset as finished", func(t *testing.T) {
		events, stats := Extract(mustParse(t, feedDocument(ended)), floodingConfig())
		require.Len(t, events, 1)
		assert.False(t, events[0].IsActive)
		assert.Equal(t, StatusFinished, events[0].Status)
		assert.Equal(t, 1, stats.Finished)
		assert.Equal(t, 0, stats.Active)
	})
}

func TestExtract_UnparsableEndTimeLeavesEventOpen(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		source: diroSource,
		start:  "2024-10-15T06:00:00+02:00",
		end:    "quand les travaux finiront",
		lat:    "48.11", lon: "-1.68",
	}))))

	events, _ := Extract(env, genericConfig())

	require.Len(t, events, 1)
	assert.True(t, events[0].IsActive)
	assert.True(t, events[0].End.IsZero())
	assert.Equal(t, "quand les travaux finiront", events[0].EndRaw)
}

func TestParseLocalTimestamp(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
		ok   bool
	}{
		{"summer offset stripped", "2024-10-15T06:00:00+02:00", time.Date(2024, 10, 15, 6, 0, 0, 0, time.UTC), true},
		{"winter offset stripped", "2024-12-01T06:00:00+01:00", time.Date(2024, 12, 1, 6, 0, 0, 0, time.UTC), true},
		{"utc designator", "2024-10-15T06:00:00Z", time.Date(2024, 10, 15, 6, 0, 0, 0, time.UTC), true},
		{"fractional seconds", "2024-10-15T06:00:00.500+02:00", time.Date(2024, 10, 15, 6, 0, 0, 500000000, time.UTC), true},
		{"empty", "", time.Time{}, false},
		{"garbage", "demain matin", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLocalTimestamp(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
			}
		})
	}
}

// --- geometry stage ---

func TestExtract_MissingCoordinatesCounted(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		source: diroSource,
		start:  "2024-10-15T06:00:00+02:00",
		// no latitude, no longitude
	}))))

	events, stats := Extract(env, genericConfig())

	assert.Empty(t, events)
	assert.Equal(t, 1, stats.MissingCoords)
	assert.Equal(t, 1, stats.Active, "temporal stage passed before geometry failed")
}

func TestExtract_PartialCoordinatesCounted(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		source: diroSource,
		start:  "2024-10-15T06:00:00+02:00",
		lat:    "48.11", // longitude missing
	}))))

	_, stats := Extract(env, genericConfig())
	assert.Equal(t, 1, stats.MissingCoords)
}

func TestExtract_UnparsableCoordinateCounted(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		source: diroSource,
		start:  "2024-10-15T06:00:00+02:00",
		lat:    "quarante-huit", lon: "-1.68",
	}))))

	_, stats := Extract(env, genericConfig())
	assert.Equal(t, 1, stats.MissingCoords)
}

func TestExtract_FirstCoordinatePairWins(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		source: diroSource,
		start:  "2024-10-15T06:00:00+02:00",
		lat:    "48.11", lon: "-1.68",
		extra: "<alertCPoint><latitude>47.00</latitude><longitude>-2.00</longitude></alertCPoint>",
	}))))

	events, _ := Extract(env, genericConfig())

	require.Len(t, events, 1)
	assert.Equal(t, 48.11, events[0].Lat)
	assert.Equal(t, -1.68, events[0].Lon)
}

// --- flooding preset: category and subtype stages ---

func TestExtract_FloodingCategoryFilter(t *testing.T) {
	env := mustParse(t, feedDocument(
		situationXML("SIT-1", "medium", activeRecord(diroSource)), // Accident
		situationXML("SIT-2", "high", recordXML(recordOpts{
			typ:     "ns2:EnvironmentalObstruction",
			source:  diroSource,
			start:   "2024-10-15T06:00:00+02:00",
			subtype: "flashFloods",
			lat:     "48.11", lon: "-1.68",
		})),
	))

	events, stats := Extract(env, floodingConfig())

	require.Len(t, events, 1)
	assert.Equal(t, "SIT-2", events[0].ID)
	assert.Equal(t, 2, stats.OperatorMatched)
	assert.Equal(t, 1, stats.CategoryMatched)
}

func TestExtract_ExplicitSubtypeIncluded(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		typ:     "ns2:EnvironmentalObstruction",
		source:  diroSource,
		start:   "2024-10-14T06:00:00+02:00",
		subtype: "flashFloods",
		lat:     "48.11", lon: "-1.68",
	}))))

	events, stats := Extract(env, floodingConfig())

	require.Len(t, events, 1)
	ev := events[0]
	require.NotNil(t, ev.Subtype)
	assert.Equal(t, "flashFloods", ev.Subtype.Value)
	assert.False(t, ev.Subtype.Inferred)
	assert.True(t, ev.IsActive)
	assert.Equal(t, StatusActive, ev.Status)
	assert.Equal(t, 1, stats.ByType["flashFloods"])
}

func TestExtract_ExplicitSubtypeOutsideAllowListDrops(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		typ:     "ns2:EnvironmentalObstruction",
		source:  diroSource,
		start:   "2024-10-14T06:00:00+02:00",
		subtype: "landslide",
		// Keywords in the comment must not rescue an explicit non-flood subtype.
		comments: []string{"Inondation signalée"},
		lat:      "48.11", lon: "-1.68",
	}))))

	events, _ := Extract(env, floodingConfig())
	assert.Empty(t, events)
}

func TestExtract_SubtypeInferredFromKeywords(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		typ:      "ns2:EnvironmentalObstruction",
		source:   diroSource,
		start:    "2024-10-14T06:00:00+02:00",
		comments: []string{"Route coupée suite à une CRUE du Blavet"},
		lat:      "48.11", lon: "-1.68",
	}))))

	events, stats := Extract(env, floodingConfig())

	require.Len(t, events, 1)
	require.NotNil(t, events[0].Subtype)
	assert.Equal(t, InferredSubtype, events[0].Subtype.Value)
	assert.True(t, events[0].Subtype.Inferred)
	assert.Equal(t, 1, stats.ByType[InferredSubtype])
}

func TestExtract_NoSubtypeNoKeywordsDrops(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		typ:      "ns2:EnvironmentalObstruction",
		source:   diroSource,
		start:    "2024-10-14T06:00:00+02:00",
		comments: []string{"Chaussée déformée"},
		lat:      "48.11", lon: "-1.68",
	}))))

	events, stats := Extract(env, floodingConfig())
	assert.Empty(t, events)
	assert.Equal(t, 1, stats.CategoryMatched)
}

// --- field extraction ---

func TestExtract_RoadDefaultsToSentinel(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", activeRecord(diroSource))))

	events, _ := Extract(env, genericConfig())

	require.Len(t, events, 1)
	assert.Equal(t, DefaultRoad, events[0].Road)
}

func TestExtract_RoadNumberExtracted(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		source: diroSource,
		start:  "2024-10-15T06:00:00+02:00",
		road:   "N165",
		lat:    "48.11", lon: "-1.68",
	}))))

	events, _ := Extract(env, genericConfig())

	require.Len(t, events, 1)
	assert.Equal(t, "N165", events[0].Road)
}

func TestExtract_DescriptionJoinsComments(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		source:   diroSource,
		start:    "2024-10-15T06:00:00+02:00",
		comments: []string{"Accident sur la N12", "Voie de droite neutralisée"},
		lat:      "48.11", lon: "-1.68",
	}))))

	events, _ := Extract(env, genericConfig())

	require.Len(t, events, 1)
	assert.Equal(t, "Accident sur la N12 | Voie de droite neutralisée", events[0].Description)
}

func TestExtract_DescriptionPlaceholder(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", activeRecord(diroSource))))

	events, _ := Extract(env, genericConfig())

	require.Len(t, events, 1)
	assert.Equal(t, DefaultDescription, events[0].Description)
}

func TestExtract_DescriptionTruncationIsRuneSafe(t *testing.T) {
	long := strings.Repeat("é", 300)
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		source:   diroSource,
		start:    "2024-10-15T06:00:00+02:00",
		comments: []string{long},
		lat:      "48.11", lon: "-1.68",
	}))))

	events, _ := Extract(env, genericConfig())

	require.Len(t, events, 1)
	desc := events[0].Description
	assert.Equal(t, 200, utf8.RuneCountInString(desc))
	assert.True(t, utf8.ValidString(desc))
}

func TestExtract_ProblemLabel(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  string
	}{
		{"road closed", "<roadOrCarriagewayOrLaneManagementType>roadClosed</roadOrCarriagewayOrLaneManagementType>", "Route fermée"},
		{"abnormal traffic", "<abnormalTrafficType>stationaryTraffic</abnormalTrafficType>", "Trafic anormal"},
		{"unknown vocabulary", "<somethingElse>val</somethingElse>", "Autre"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
				source: diroSource,
				start:  "2024-10-15T06:00:00+02:00",
				lat:    "48.11", lon: "-1.68",
				extra: tt.extra,
			}))))

			events, _ := Extract(env, genericConfig())
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0].Problem)
		})
	}
}

func TestExtract_FloodingEventHasNoProblemLabel(t *testing.T) {
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", recordXML(recordOpts{
		typ:     "ns2:EnvironmentalObstruction",
		source:  diroSource,
		start:   "2024-10-14T06:00:00+02:00",
		subtype: "flood",
		lat:     "48.11", lon: "-1.68",
	}))))

	events, _ := Extract(env, floodingConfig())

	require.Len(t, events, 1)
	assert.Empty(t, events[0].Problem)
}

// --- whole-pass properties ---

func TestExtract_TypeHistogramUsesRecordType(t *testing.T) {
	env := mustParse(t, feedDocument(
		situationXML("SIT-1", "medium", activeRecord(diroSource)),
		situationXML("SIT-2", "medium", activeRecord(diroSource)),
		situationXML("SIT-3", "medium", recordXML(recordOpts{
			typ:    "ns2:MaintenanceWorks",
			source: diroSource,
			start:  "2024-10-15T06:00:00+02:00",
			lat:    "48.11", lon: "-1.68",
		})),
	))

	events, stats := Extract(env, genericConfig())

	assert.Len(t, events, 3)
	assert.Equal(t, 2, stats.ByType["Accident"])
	assert.Equal(t, 1, stats.ByType["MaintenanceWorks"])
	assert.Equal(t, 3, stats.Emitted())
}

func TestExtract_Idempotent(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(testNow))
	defer SetClock(nil)

	doc := feedDocument(
		situationXML("SIT-1", "high", activeRecord(diroSource)),
		situationXML("SIT-2", "", recordXML(recordOpts{
			source:   diroSource,
			start:    "2024-10-15T06:00:00+02:00",
			comments: []string{"Bouchon"},
			road:     "N24",
			lat:      "47.66", lon: "-2.75",
		})),
	)

	events1, stats1 := Extract(mustParse(t, doc), genericConfig())
	events2, stats2 := Extract(mustParse(t, doc), genericConfig())

	if diff := cmp.Diff(events1, events2); diff != "" {
		t.Errorf("extraction not idempotent (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(stats1, stats2); diff != "" {
		t.Errorf("stats not idempotent (-first +second):\n%s", diff)
	}
}

func TestExtract_ZeroNowUsesPackageClock(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(testNow))
	defer SetClock(nil)

	cfg := GenericPreset() // Now left zero
	env := mustParse(t, feedDocument(situationXML("SIT-1", "medium", activeRecord(diroSource))))

	events, _ := Extract(env, cfg)

	require.Len(t, events, 1)
	assert.True(t, events[0].UpdatedAt.Equal(testNow))
}

package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxDescriptionLen caps the joined comment text, in runes.
const DefaultMaxDescriptionLen = 200

// descriptionDelimiter joins the localized comment values of one record.
const descriptionDelimiter = " | "

// commentLang selects which localized comment values feed the description.
const commentLang = "fr"

// FilterConfig parameterizes one extraction pass. The two historical
// pipelines are [GenericPreset] and [FloodingPreset].
type FilterConfig struct {
	// OperatorTokens keep a record when its sourceIdentification contains
	// any of them. Substring match: the feed embeds district and CEI tokens
	// in the same free-text field.
	OperatorTokens []string

	// Category, when non-empty, must appear in the record's xsi:type
	// discriminator. It also switches on subtype resolution.
	Category string

	// SubtypeAllowList admits explicit subtype values; SubtypeKeywords is
	// the fallback scan over the serialized record when no explicit subtype
	// is present. Only consulted when Category is set.
	SubtypeAllowList []string
	SubtypeKeywords  []string

	// ActiveOnly drops records that have not started yet or have already
	// ended. The flooding preset keeps finished records instead and tags
	// them via IsActive/Status.
	ActiveOnly bool

	// Now is the reference instant for the temporal stage. Zero means the
	// package clock, read once per extraction.
	Now time.Time

	// MaxDescriptionLen caps the description in runes; <=0 means
	// DefaultMaxDescriptionLen.
	MaxDescriptionLen int

	// Label and Zone describe the applied filter in output metadata and in
	// the statistics report.
	Label string
	Zone  string
}

// operatorTokens is the DIR Ouest attribution filter shared by both presets.
var operatorTokens = []string{"DIR Ouest", "DIRO"}

// problemLabels maps DATEX vocabulary found anywhere in a record to the
// French problem labels of the historical output. Order matters: the first
// match wins.
var problemLabels = []struct {
	keyword string
	label   string
}{
	{"roadClosed", "Route fermée"},
	{"laneClosures", "Voie fermée"},
	{"weightRestrictionInOperation", "Restriction poids"},
	{"abnormalTrafficType", "Trafic anormal"},
	{"obstructionType", "Obstruction"},
}

// defaultProblem labels records matching none of the known vocabulary.
const defaultProblem = "Autre"

// GenericPreset keeps every event category but only currently active events.
func GenericPreset() FilterConfig {
	return FilterConfig{
		OperatorTokens:    operatorTokens,
		ActiveOnly:        true,
		MaxDescriptionLen: DefaultMaxDescriptionLen,
		Label:             "DIR Ouest (Bretagne / Pays de la Loire) - Événements actifs",
		Zone:              "DIR Ouest (Bretagne / Pays de la Loire)",
	}
}

// FloodingPreset narrows to environmental-obstruction records classified as
// flooding, keeping finished events with their activity status.
func FloodingPreset() FilterConfig {
	return FilterConfig{
		OperatorTokens:    operatorTokens,
		Category:          "EnvironmentalObstruction",
		SubtypeAllowList:  []string{"flood", "flashFloods"},
		SubtypeKeywords:   []string{"inondation", "submersion", "crue", "flood"},
		MaxDescriptionLen: DefaultMaxDescriptionLen,
		Label:             "DIR Ouest (Bretagne / Pays de la Loire) - Inondations",
		Zone:              "DIR Ouest (Bretagne / Pays de la Loire)",
	}
}

// PresetByName resolves a preset from its configuration name.
func PresetByName(name string) (FilterConfig, error) {
	switch name {
	case "generic":
		return GenericPreset(), nil
	case "flooding":
		return FloodingPreset(), nil
	default:
		return FilterConfig{}, fmt.Errorf("unknown preset %q", name)
	}
}

// Extract walks every situation record of the document through the filter
// chain and returns the surviving events in document order plus the pass
// counters. The stage order (operator, category, subtype, temporal,
// geometry, fields) is load-bearing: later stages assume earlier ones
// validated field presence, and the statistics attribute rejections to the
// stage where they happened. Record-level failures skip the one record;
// only document-level parsing is fatal, and that happens before this call.
func Extract(env *Envelope, cfg FilterConfig) ([]RoadEvent, *Stats) {
	now := cfg.Now
	if now.IsZero() {
		now = clock.Now()
	}
	maxLen := cfg.MaxDescriptionLen
	if maxLen <= 0 {
		maxLen = DefaultMaxDescriptionLen
	}

	situations := env.Body.Model.Publication.Situations
	stats := NewStats()
	stats.TotalSituations = len(situations)

	var events []RoadEvent
	for si := range situations {
		sit := &situations[si]
		severity := strings.TrimSpace(sit.OverallSeverity)
		if severity == "" {
			severity = DefaultSeverity
		}
		for ri := range sit.Records {
			ev, ok := extractRecord(&sit.Records[ri], sit.ID, severity, cfg, now, maxLen, stats)
			if ok {
				events = append(events, ev)
			}
		}
	}
	return events, stats
}

// extractRecord runs one record through the filter chain, mutating stats at
// each stage boundary. The bool result reports acceptance.
func extractRecord(rec *SituationRecord, sitID, severity string, cfg FilterConfig, now time.Time, maxLen int, stats *Stats) (RoadEvent, bool) {
	// Operator filter.
	source := strings.TrimSpace(rec.Source)
	if source == "" || !containsAny(source, cfg.OperatorTokens) {
		return RoadEvent{}, false
	}
	stats.OperatorMatched++

	// Category filter and subtype resolution (flooding preset only).
	var subtype *Subtype
	if cfg.Category != "" {
		if !strings.Contains(rec.Type, cfg.Category) {
			return RoadEvent{}, false
		}
		stats.CategoryMatched++

		st, ok := resolveSubtype(rec, cfg)
		if !ok {
			return RoadEvent{}, false
		}
		subtype = st
	}

	// Temporal resolution. Start time is mandatory; a present but
	// unparsable end time leaves the event open rather than rejecting it.
	startRaw := strings.TrimSpace(rec.StartRaw)
	start, ok := parseLocalTimestamp(startRaw)
	if !ok {
		return RoadEvent{}, false
	}
	isActive := true
	var end time.Time
	endRaw := strings.TrimSpace(rec.EndRaw)
	if endRaw != "" {
		if e, ok := parseLocalTimestamp(endRaw); ok {
			end = e
			isActive = !now.After(e)
		}
	}
	if cfg.ActiveOnly && (start.After(now) || !isActive) {
		return RoadEvent{}, false
	}
	if isActive {
		stats.Active++
	} else {
		stats.Finished++
	}

	// Geometry resolution: first latitude and first longitude win.
	lat, latOK := firstFloat(rec, "latitude")
	lon, lonOK := firstFloat(rec, "longitude")
	if !latOK || !lonOK {
		stats.MissingCoords++
		return RoadEvent{}, false
	}

	// Field extraction.
	status := StatusActive
	if !isActive {
		status = StatusFinished
	}
	ev := RoadEvent{
		ID:          sitID,
		Source:      source,
		Type:        rec.TypeName(),
		Subtype:     subtype,
		Road:        rec.firstTextOr("roadNumber", DefaultRoad),
		Severity:    severity,
		Description: buildDescription(rec, maxLen),
		StartRaw:    startRaw,
		EndRaw:      endRaw,
		Start:       start,
		End:         end,
		IsActive:    isActive,
		Status:      status,
		Lat:         lat,
		Lon:         lon,
		UpdatedAt:   clock.Now(),
	}
	if cfg.Category == "" {
		ev.Problem = classifyProblem(rec)
	}

	stats.BySeverity[severity]++
	stats.ByType[histogramKey(ev)]++
	return ev, true
}

// histogramKey buckets events by record type, or by subtype value when the
// category filter produced one.
func histogramKey(ev RoadEvent) string {
	if ev.Subtype != nil {
		return ev.Subtype.Value
	}
	return ev.Type
}

// resolveSubtype applies the allow-list to an explicit subtype element, or
// falls back to the keyword scan. An explicit value outside the allow-list
// rejects the record even if keywords would match: the feed's own
// classification is authoritative.
func resolveSubtype(rec *SituationRecord, cfg FilterConfig) (*Subtype, bool) {
	if v, ok := rec.firstText("environmentalObstructionType"); ok {
		if !slices.Contains(cfg.SubtypeAllowList, v) {
			return nil, false
		}
		return &Subtype{Value: v}, true
	}
	if _, ok := rec.containsAnyKeyword(cfg.SubtypeKeywords); ok {
		return &Subtype{Value: InferredSubtype, Inferred: true}, true
	}
	return nil, false
}

// classifyProblem derives the French problem label from DATEX vocabulary
// found anywhere in the serialized record, first match wins.
func classifyProblem(rec *SituationRecord) string {
	haystack := string(rec.Inner)
	for _, p := range problemLabels {
		if strings.Contains(haystack, p.keyword) {
			return p.label
		}
	}
	return defaultProblem
}

// buildDescription joins the record's French comment values in document
// order, applying the default placeholder and the rune-safe cap.
func buildDescription(rec *SituationRecord, maxLen int) string {
	comments := rec.localizedComments(commentLang)
	if len(comments) == 0 {
		return DefaultDescription
	}
	return truncateRunes(strings.Join(comments, descriptionDelimiter), maxLen)
}

// timestampLayout parses the feed's local ISO-8601 values once their offset
// suffix has been stripped. A fractional second in the input is tolerated.
const timestampLayout = "2006-01-02T15:04:05"

// offsetSuffixes are the only offsets the feed emits (France, standard and
// daylight time) plus the UTC designator.
var offsetSuffixes = []string{"+02:00", "+01:00", "Z"}

// parseLocalTimestamp strips the fixed offset suffixes and parses the rest
// as a naive local time. This reproduces the historical behavior verbatim:
// offsets are discarded, not normalized, so comparisons against "now" are
// approximate across the DST boundary. The lossiness is deliberate, since
// correct offset arithmetic would shift every boundary decision relative to
// the published output.
func parseLocalTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, suffix := range offsetSuffixes {
		raw = strings.TrimSuffix(raw, suffix)
	}
	t, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// firstFloat parses the first descendant element with the given local name
// as a float.
func firstFloat(rec *SituationRecord, local string) (float64, bool) {
	raw, ok := rec.firstText(local)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// containsAny reports whether s contains any of the tokens.
func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if tok != "" && strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// truncateRunes caps s at max runes without splitting a code point.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

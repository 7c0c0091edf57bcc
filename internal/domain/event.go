package domain

import "time"

// Sentinel values carried over from the historical output format. Consumers
// of the published files key on these strings.
const (
	DefaultSeverity    = "medium"
	DefaultRoad        = "N/A"
	DefaultDescription = "Pas de description"

	StatusActive   = "en_cours"
	StatusFinished = "termine"

	// InferredSubtype tags flooding records whose subtype was guessed from a
	// keyword scan instead of read from an explicit element.
	InferredSubtype = "inondation_presumee"
)

// Subtype is a tagged classification: an authoritative value read from the
// record, or the inferred sentinel produced by the keyword fallback.
type Subtype struct {
	Value    string `json:"value"`
	Inferred bool   `json:"inferred"`
}

// RoadEvent is one record that survived the full filter chain. Every emitted
// event has a parsable start time and a complete coordinate pair.
type RoadEvent struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	Type        string   `json:"type"`
	Subtype     *Subtype `json:"subtype,omitempty"`
	Road        string   `json:"road"`
	Problem     string   `json:"problem,omitempty"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`

	// StartRaw / EndRaw hold the feed's own timestamp strings; Start / End
	// are their parsed local-time counterparts (End is zero when absent or
	// unparsable).
	StartRaw string    `json:"start_date"`
	EndRaw   string    `json:"end_date,omitempty"`
	Start    time.Time `json:"-"`
	End      time.Time `json:"-"`

	IsActive bool   `json:"is_active"`
	Status   string `json:"status"`

	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Stats accumulates counters across one extraction pass, attributed to the
// filter stage where each candidate was accepted or rejected. The JSON keys
// match the historical statistics block embedded in the GeoJSON metadata.
type Stats struct {
	TotalSituations int `json:"total_situations"`

	// OperatorMatched counts records whose source passed the operator
	// filter; CategoryMatched additionally passed the category filter
	// (flooding preset only, zero otherwise).
	OperatorMatched int `json:"operator_matched"`
	CategoryMatched int `json:"category_matched,omitempty"`

	// Active / Finished count records that passed the temporal stage,
	// before geometry is checked. Finished stays zero under the generic
	// preset, which drops ended events outright.
	Active   int `json:"actifs"`
	Finished int `json:"termines,omitempty"`

	MissingCoords int `json:"sans_coords"`

	BySeverity map[string]int `json:"par_severite"`
	ByType     map[string]int `json:"par_type"`
}

// NewStats returns an empty accumulator with allocated histograms.
func NewStats() *Stats {
	return &Stats{
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}
}

// Emitted is the number of events that survived the whole chain.
func (s *Stats) Emitted() int {
	n := 0
	for _, c := range s.BySeverity {
		n += c
	}
	return n
}

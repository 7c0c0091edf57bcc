package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

const reportTimeLayout = "2006-01-02 15:04:05"

// RenderReport produces the plain-text statistics report. Section order is
// fixed; map-backed breakdowns are sorted deterministically so repeated runs
// over the same input diff cleanly.
func RenderReport(events []domain.RoadEvent, stats *domain.Stats, filter domain.FilterConfig, generated time.Time) string {
	flooding := filter.Category != ""

	var b strings.Builder
	b.WriteString("STATISTIQUES DATEX II DIR OUEST\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Généré le: %s\n", generated.Format(reportTimeLayout))
	fmt.Fprintf(&b, "Zone: %s\n", filter.Zone)
	fmt.Fprintf(&b, "Filtre: %s\n\n", filter.Label)

	fmt.Fprintf(&b, "Situations totales: %d\n", stats.TotalSituations)
	fmt.Fprintf(&b, "Situations DIR Ouest: %d\n", stats.OperatorMatched)
	if flooding {
		fmt.Fprintf(&b, "Enregistrements inondation: %d\n", stats.CategoryMatched)
		active, finished := countByActivity(events)
		fmt.Fprintf(&b, "Événements actifs: %d\n", active)
		fmt.Fprintf(&b, "Événements terminés: %d\n", finished)
	} else {
		fmt.Fprintf(&b, "Événements actifs: %d\n", len(events))
	}
	fmt.Fprintf(&b, "Sans coordonnées: %d\n", stats.MissingCoords)

	if len(stats.BySeverity) > 0 {
		b.WriteString("\nPar sévérité:\n")
		for _, sev := range sortedKeys(stats.BySeverity) {
			fmt.Fprintf(&b, "  - %s: %d\n", sev, stats.BySeverity[sev])
		}
	}

	if len(stats.ByType) > 0 {
		b.WriteString("\nPar type:\n")
		keys := sortedKeys(stats.ByType)
		if !flooding {
			// The generic report lists the most frequent types first.
			sortByCountDesc(keys, stats.ByType)
		}
		for _, typ := range keys {
			fmt.Fprintf(&b, "  - %s: %d\n", typ, stats.ByType[typ])
		}
	}

	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortByCountDesc reorders alphabetically pre-sorted keys by descending
// count; the stable sort keeps the alphabetical order as tiebreak.
func sortByCountDesc(keys []string, counts map[string]int) {
	sort.SliceStable(keys, func(i, j int) bool {
		return counts[keys[i]] > counts[keys[j]]
	})
}

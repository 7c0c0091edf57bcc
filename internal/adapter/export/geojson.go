// Package export writes the run's output files: a GeoJSON FeatureCollection
// and a plain-text statistics report.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

// feedSource labels the upstream publication in output metadata.
const feedSource = "DATEX II - Bison Futé"

// Writer persists one run's events and statistics. It implements
// pipeline.Exporter. Files are overwritten in place; there is no
// partial-write recovery.
type Writer struct {
	dir         string
	geoJSONPath string
	reportPath  string
	filter      domain.FilterConfig
	logger      *slog.Logger
}

// NewWriter creates a Writer emitting <baseName>.geojson and
// <baseName>-stats.txt under dir.
func NewWriter(dir, baseName string, filter domain.FilterConfig, logger *slog.Logger) *Writer {
	return &Writer{
		dir:         dir,
		geoJSONPath: filepath.Join(dir, baseName+".geojson"),
		reportPath:  filepath.Join(dir, baseName+"-stats.txt"),
		filter:      filter,
		logger:      logger,
	}
}

// Export writes both output files, creating the output directory if absent.
func (w *Writer) Export(_ context.Context, events []domain.RoadEvent, stats *domain.Stats) error {
	generated := domain.Now()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	fc := BuildFeatureCollection(events, stats, w.filter, generated)
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feature collection: %w", err)
	}
	if err := os.WriteFile(w.geoJSONPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	w.logger.Info("geojson written", "path", w.geoJSONPath, "features", len(events))

	report := RenderReport(events, stats, w.filter, generated)
	if err := os.WriteFile(w.reportPath, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	w.logger.Info("report written", "path", w.reportPath)

	return nil
}

// BuildFeatureCollection assembles the output document: one point feature
// per event in extraction order, coordinates in [longitude, latitude] order,
// plus a metadata foreign member embedding the frozen statistics.
func BuildFeatureCollection(events []domain.RoadEvent, stats *domain.Stats, filter domain.FilterConfig, generated time.Time) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, ev := range events {
		f := geojson.NewFeature(orb.Point{ev.Lon, ev.Lat})
		f.Properties = featureProperties(ev, generated)
		fc.Append(f)
	}

	meta := map[string]any{
		"generated_at": generated.Format(time.RFC3339),
		"source":       feedSource,
		"filter":       filter.Label,
		"count":        len(events),
		"statistics":   stats,
	}
	if filter.Category != "" {
		active, finished := countByActivity(events)
		meta["active"] = active
		meta["finished"] = finished
	}
	fc.ExtraMembers = geojson.Properties{"metadata": meta}

	return fc
}

func featureProperties(ev domain.RoadEvent, generated time.Time) geojson.Properties {
	props := geojson.Properties{
		"id":          ev.ID,
		"source":      ev.Source,
		"road":        ev.Road,
		"type":        ev.Type,
		"severity":    ev.Severity,
		"description": ev.Description,
		"start_date":  ev.StartRaw,
		"is_active":   ev.IsActive,
		"status":      ev.Status,
		"updated_at":  generated.Format(time.RFC3339),
	}

	// end_date is explicitly null when the feed carried none.
	if ev.EndRaw != "" {
		props["end_date"] = ev.EndRaw
	} else {
		props["end_date"] = nil
	}
	if ev.Problem != "" {
		props["problem"] = ev.Problem
	}
	if ev.Subtype != nil {
		props["subtype"] = ev.Subtype.Value
		props["subtype_inferred"] = ev.Subtype.Inferred
	}
	return props
}

func countByActivity(events []domain.RoadEvent) (active, finished int) {
	for _, ev := range events {
		if ev.IsActive {
			active++
		} else {
			finished++
		}
	}
	return active, finished
}

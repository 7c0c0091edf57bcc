// Package pipeline orchestrates one fetch → extract → export run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/road-event-etl/internal/domain"
	"github.com/couchcryptid/road-event-etl/internal/observability"
)

// Fetcher retrieves the raw feed document.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Extractor turns the raw document into events plus counters.
type Extractor interface {
	Extract(raw []byte) ([]domain.RoadEvent, *domain.Stats, error)
}

// Exporter persists the run's events and statistics.
type Exporter interface {
	Export(ctx context.Context, events []domain.RoadEvent, stats *domain.Stats) error
}

// Publisher pushes events to an optional downstream sink.
type Publisher interface {
	PublishBatch(ctx context.Context, events []domain.RoadEvent) error
}

// Pipeline wires the stages of one run. A nil publisher disables publishing.
type Pipeline struct {
	fetcher   Fetcher
	extractor Extractor
	exporter  Exporter
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(f Fetcher, x Extractor, e Exporter, p Publisher, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		fetcher:   f,
		extractor: x,
		exporter:  e,
		publisher: p,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run executes one complete pass and returns the run's statistics so the
// caller can fold them into its closing summary. Any stage error is fatal;
// record-level problems never surface here, only through the statistics.
func (p *Pipeline) Run(ctx context.Context) (*domain.Stats, error) {
	p.metrics.RunSuccess.Set(0)

	fetchStart := time.Now()
	raw, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	p.metrics.FetchDuration.Observe(time.Since(fetchStart).Seconds())

	events, stats, err := p.extractor.Extract(raw)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	p.recordStats(events, stats)
	p.logger.Info("extraction complete",
		"situations", stats.TotalSituations,
		"operator_matched", stats.OperatorMatched,
		"events", len(events),
		"missing_coords", stats.MissingCoords,
	)

	exportStart := time.Now()
	if err := p.exporter.Export(ctx, events, stats); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	p.metrics.ExportDuration.Observe(time.Since(exportStart).Seconds())

	if p.publisher != nil {
		if err := p.publisher.PublishBatch(ctx, events); err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		p.metrics.EventsPublished.Add(float64(len(events)))
	}

	p.metrics.RunSuccess.Set(1)
	return stats, nil
}

func (p *Pipeline) recordStats(events []domain.RoadEvent, stats *domain.Stats) {
	p.metrics.SituationsSeen.Add(float64(stats.TotalSituations))
	p.metrics.RecordsMatched.WithLabelValues("operator").Add(float64(stats.OperatorMatched))
	p.metrics.RecordsMatched.WithLabelValues("category").Add(float64(stats.CategoryMatched))
	p.metrics.RecordsMatched.WithLabelValues("temporal").Add(float64(stats.Active + stats.Finished))
	p.metrics.MissingCoords.Add(float64(stats.MissingCoords))
	p.metrics.EventsExported.Add(float64(len(events)))
}

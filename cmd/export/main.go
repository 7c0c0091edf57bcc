// Command export runs one fetch → extract → export pass over the Bison Futé
// DATEX II feed and writes a GeoJSON document plus a statistics report.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/road-event-etl/internal/adapter/datexfeed"
	"github.com/couchcryptid/road-event-etl/internal/adapter/export"
	kafkaadapter "github.com/couchcryptid/road-event-etl/internal/adapter/kafka"
	"github.com/couchcryptid/road-event-etl/internal/config"
	"github.com/couchcryptid/road-event-etl/internal/domain"
	"github.com/couchcryptid/road-event-etl/internal/observability"
	"github.com/couchcryptid/road-event-etl/internal/pipeline"
)

// baseNames maps the preset to the historical output file stems.
var baseNames = map[string]string{
	"generic":  "datex-diro",
	"flooding": "datex-diro-inondations",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	filter, err := domain.PresetByName(cfg.Preset)
	if err != nil {
		logger.Error("failed to resolve preset", "error", err)
		os.Exit(1)
	}
	filter.MaxDescriptionLen = cfg.MaxDescriptionLength

	fetcher := datexfeed.NewClient(cfg.FeedURL, cfg.FetchTimeout, logger)
	extractor := pipeline.NewExtractor(filter, logger)
	exporter := export.NewWriter(cfg.OutputDir, baseNames[cfg.Preset], filter, logger)

	var publisher pipeline.Publisher
	if cfg.PublishEnabled() {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic)
	}

	p := pipeline.New(fetcher, extractor, exporter, publisher, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("export starting", "preset", cfg.Preset, "url", cfg.FeedURL)
	stats, err := p.Run(ctx)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	logger.Info("export complete",
		"preset", cfg.Preset,
		"output_dir", cfg.OutputDir,
		"situations", stats.TotalSituations,
		"operator_matched", stats.OperatorMatched,
		"events", stats.Emitted(),
		"missing_coords", stats.MissingCoords,
	)
}

package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

// DatexExtractor implements Extractor using the domain parse and filter
// functions with a fixed filter configuration.
type DatexExtractor struct {
	filter domain.FilterConfig
	logger *slog.Logger
}

// NewExtractor creates a DatexExtractor for the given preset.
func NewExtractor(filter domain.FilterConfig, logger *slog.Logger) *DatexExtractor {
	return &DatexExtractor{filter: filter, logger: logger}
}

func (x *DatexExtractor) Extract(raw []byte) ([]domain.RoadEvent, *domain.Stats, error) {
	env, err := domain.ParseDocument(raw)
	if err != nil {
		return nil, nil, err
	}
	events, stats := domain.Extract(env, x.filter)
	return events, stats, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default feed endpoint: the Bison Futé open-data DATEX II publication for
// DIR events on the national road network.
const defaultFeedURL = "https://tipi.bison-fute.gouv.fr/bison-fute-ouvert/publicationsDIR/Evenementiel-DIR/grt/RRN/content.xml"

// Config holds all exporter settings, populated from environment variables.
type Config struct {
	FeedURL      string
	FetchTimeout time.Duration
	OutputDir    string

	// Preset selects the filter chain: "generic" or "flooding".
	Preset               string
	MaxDescriptionLength int

	LogLevel  string
	LogFormat string

	// Kafka publishing is optional; it is enabled only when brokers are set.
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// PublishEnabled reports whether extracted events should also be published
// to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	maxDesc, err := parsePositiveInt("MAX_DESCRIPTION_LENGTH", 200)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		FeedURL:              envOrDefault("DATEX_URL", defaultFeedURL),
		FetchTimeout:         fetchTimeout,
		OutputDir:            envOrDefault("OUTPUT_DIR", "data"),
		Preset:               envOrDefault("EXPORT_PRESET", "generic"),
		MaxDescriptionLength: maxDesc,
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		LogFormat:            envOrDefault("LOG_FORMAT", "json"),
		KafkaBrokers:         parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaSinkTopic:       envOrDefault("KAFKA_SINK_TOPIC", "road-events"),
	}

	if cfg.FeedURL == "" {
		return nil, errors.New("DATEX_URL is required")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OUTPUT_DIR is required")
	}
	if cfg.Preset != "generic" && cfg.Preset != "flooding" {
		return nil, fmt.Errorf("invalid EXPORT_PRESET %q: want generic or flooding", cfg.Preset)
	}
	if cfg.PublishEnabled() && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_SINK_TOPIC is empty")
	}

	return cfg, nil
}

// envOrDefault returns the environment value or a default when unset/empty.
func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := envOrDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}

// parseBrokers splits a comma-separated broker list, dropping empty entries.
func parseBrokers(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

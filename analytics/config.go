package analytics

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/PratikDhanave/event-pipeline/internal/config"
	"github.com/PratikDhanave/event-pipeline/internal/delivery"
	"github.com/PratikDhanave/event-pipeline/internal/wire"
)

// DefaultEndpoint is used by clients when neither Config nor the
// environment names one.
const DefaultEndpoint = "http://localhost:8080/analytics"

// Environment variables read when the matching Config field is unset.
const (
	EnvEndpoint      = "EVENTS_ENDPOINT"
	EnvAPIKey        = "EVENTS_API_KEY"
	EnvDebug         = "EVENTS_DEBUG"
	EnvDisabled      = "EVENTS_DISABLED"
	EnvBatchSize     = "EVENTS_BATCH_SIZE"
	EnvFlushInterval = "EVENTS_FLUSH_INTERVAL"
)

// Config holds explicit settings. Zero values and nil pointers mean
// "unset": the environment is consulted next, then the defaults.
type Config struct {
	Endpoint string
	APIKey   string
	Debug    *bool
	Disabled *bool

	// BatchSize is the pending count that triggers a flush (default 10).
	BatchSize int
	// FlushInterval is the timer cadence (default 5s). A pointer to zero
	// disables the timer.
	FlushInterval *time.Duration
	// MaxPending bounds the buffer (default 10000, negative = unbounded).
	MaxPending int
	// DefaultTags are merged under every event's properties.
	DefaultTags map[string]string

	// Encoding and Gzip shape confirmable request bodies.
	Encoding wire.Encoding
	Gzip     bool
	// DisableBeacon makes Close use the confirmable send only.
	DisableBeacon bool

	HTTPClient *http.Client
	// Logger receives diagnostics when Debug is on. Nil logs to stderr.
	Logger *slog.Logger

	clock clockwork.Clock
	newID func() string
}

// Bool returns a pointer to v, for Config.Debug and Config.Disabled.
func Bool(v bool) *bool { return &v }

// Duration returns a pointer to d, for Config.FlushInterval.
func Duration(d time.Duration) *time.Duration { return &d }

// LoadConfigFile reads a TOML client config (endpoint, api_key, debug,
// disabled, batch_size, flush_interval, max_pending, encoding, gzip,
// [default_tags]). A missing file yields an empty Config.
func LoadConfigFile(path string) (Config, error) {
	cf, err := config.LoadClientFile(path)
	if err != nil {
		return Config{}, err
	}
	interval, err := cf.Interval()
	if err != nil {
		return Config{}, err
	}
	enc, err := wire.ParseEncoding(cf.Encoding)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	c := Config{
		Endpoint:      cf.Endpoint,
		APIKey:        cf.APIKey,
		Debug:         cf.Debug,
		Disabled:      cf.Disabled,
		FlushInterval: interval,
		DefaultTags:   cf.DefaultTags,
		Encoding:      enc,
	}
	if cf.BatchSize != nil {
		c.BatchSize = *cf.BatchSize
	}
	if cf.MaxPending != nil {
		c.MaxPending = *cf.MaxPending
	}
	if cf.Gzip != nil {
		c.Gzip = *cf.Gzip
	}
	return c, nil
}

// Merge returns c with every field that is set in override replaced.
func (c Config) Merge(override Config) Config {
	out := c
	if override.Endpoint != "" {
		out.Endpoint = override.Endpoint
	}
	if override.APIKey != "" {
		out.APIKey = override.APIKey
	}
	if override.Debug != nil {
		out.Debug = override.Debug
	}
	if override.Disabled != nil {
		out.Disabled = override.Disabled
	}
	if override.BatchSize != 0 {
		out.BatchSize = override.BatchSize
	}
	if override.FlushInterval != nil {
		out.FlushInterval = override.FlushInterval
	}
	if override.MaxPending != 0 {
		out.MaxPending = override.MaxPending
	}
	if len(override.DefaultTags) > 0 {
		tags := make(map[string]string, len(out.DefaultTags)+len(override.DefaultTags))
		for k, v := range out.DefaultTags {
			tags[k] = v
		}
		for k, v := range override.DefaultTags {
			tags[k] = v
		}
		out.DefaultTags = tags
	}
	if override.Encoding != "" {
		out.Encoding = override.Encoding
	}
	if override.Gzip {
		out.Gzip = true
	}
	if override.DisableBeacon {
		out.DisableBeacon = true
	}
	if override.HTTPClient != nil {
		out.HTTPClient = override.HTTPClient
	}
	if override.Logger != nil {
		out.Logger = override.Logger
	}
	return out
}

// settings is a fully resolved Config.
type settings struct {
	endpoint      string
	apiKey        string
	debug         bool
	disabled      bool
	batchSize     int
	flushInterval time.Duration
	maxPending    int
	defaultTags   map[string]string
}

// resolve applies explicit > environment > defaults. Endpoint is left
// empty when neither layer sets it; callers decide whether to default it.
func resolve(explicit Config, getenv func(string) string) (settings, error) {
	s := settings{
		endpoint:      explicit.Endpoint,
		apiKey:        explicit.APIKey,
		batchSize:     explicit.BatchSize,
		maxPending:    explicit.MaxPending,
		defaultTags:   explicit.DefaultTags,
		flushInterval: delivery.DefaultFlushInterval,
	}

	if s.endpoint == "" {
		s.endpoint = strings.TrimSpace(getenv(EnvEndpoint))
	}
	if s.apiKey == "" {
		s.apiKey = strings.TrimSpace(getenv(EnvAPIKey))
	}

	var err error
	if s.debug, err = resolveBool(explicit.Debug, getenv, EnvDebug); err != nil {
		return settings{}, err
	}
	if s.disabled, err = resolveBool(explicit.Disabled, getenv, EnvDisabled); err != nil {
		return settings{}, err
	}

	if s.batchSize == 0 {
		if v := strings.TrimSpace(getenv(EnvBatchSize)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return settings{}, fmt.Errorf("%s must be a positive integer, got %q", EnvBatchSize, v)
			}
			s.batchSize = n
		}
	}
	if s.batchSize <= 0 {
		s.batchSize = delivery.DefaultBatchSize
	}

	switch {
	case explicit.FlushInterval != nil:
		s.flushInterval = *explicit.FlushInterval
	default:
		if v := strings.TrimSpace(getenv(EnvFlushInterval)); v != "" {
			d, err := parseInterval(v)
			if err != nil {
				return settings{}, fmt.Errorf("%s: %w", EnvFlushInterval, err)
			}
			s.flushInterval = d
		}
	}
	if s.flushInterval < 0 {
		return settings{}, fmt.Errorf("flush interval must not be negative, got %s", s.flushInterval)
	}
	return s, nil
}

func resolveBool(explicit *bool, getenv func(string) string, key string) (bool, error) {
	if explicit != nil {
		return *explicit, nil
	}
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// parseInterval accepts Go durations ("5s") and bare milliseconds ("5000").
func parseInterval(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// Package config loads and hot-reloads the engine's file configuration.
//
// Files may be JSON or YAML; YAML is coerced to JSON so both formats share
// one strict decoder (unknown fields are rejected). All durations are Go
// duration strings ("50ms", "10s", "1m").
package config

import (
	"fmt"
	"strings"

	"streamflow/internal/history"
	"streamflow/internal/retry"
	"streamflow/internal/services/statslog"
	"streamflow/internal/stream"
	logx "streamflow/pkg/logx"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Stream  StreamConfig  `json:"stream"`
	Retry   RetryConfig   `json:"retry,omitempty"`

	// History enables the terminal-session archive. Omitted means disabled.
	History *HistoryConfig `json:"history,omitempty"`

	// StatsLog enables periodic registry stats reports.
	StatsLog *StatsLogConfig `json:"stats_log,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StreamConfig mirrors stream.Config with file-friendly field types.
// Zero values mean "use the engine default".
type StreamConfig struct {
	ChunkSize       int    `json:"chunk_size,omitempty"`
	ChunkDelay      string `json:"chunk_delay,omitempty"`
	MaxChunksPerSec int    `json:"max_chunks_per_sec,omitempty"`
	OpTimeout       string `json:"op_timeout,omitempty"`
	Typing          *bool  `json:"typing,omitempty"`
}

// RetryConfig mirrors retry.Policy.
//
// RetryOn lists category names: "network", "timeout", "rate_limit",
// "server_5xx". Omitted means the default retryable set.
type RetryConfig struct {
	MaxRetries *int     `json:"max_retries,omitempty"`
	BaseDelay  string   `json:"base_delay,omitempty"`
	MaxDelay   string   `json:"max_delay,omitempty"`
	Multiplier float64  `json:"multiplier,omitempty"`
	Jitter     float64  `json:"jitter,omitempty"`
	RetryOn    []string `json:"retry_on,omitempty"`
}

type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type StatsLogConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

// Materialized is the runtime view of a parsed file config.
type Materialized struct {
	Logging logx.Config
	Stream  stream.Config
	History history.Config
	Stats   statslog.Config
}

// Build materializes runtime configs, applying defaults for omitted fields
// and validating the result. It is also the validation hook for hot reload.
func (c *Config) Build() (Materialized, error) {
	var m Materialized

	m.Logging = logx.Config{
		Level:   c.Logging.Level,
		Console: true,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
	if c.Logging.Console != nil {
		m.Logging.Console = *c.Logging.Console
	}

	sc := stream.DefaultConfig()
	if c.Stream.ChunkSize != 0 {
		sc.ChunkSize = c.Stream.ChunkSize
	}
	if d, err := ParseDurationField("stream.chunk_delay", c.Stream.ChunkDelay); err != nil {
		return m, err
	} else if c.Stream.ChunkDelay != "" {
		sc.ChunkDelay = d
	}
	if c.Stream.MaxChunksPerSec != 0 {
		sc.MaxChunksPerSec = c.Stream.MaxChunksPerSec
	}
	if d, err := ParseDurationField("stream.op_timeout", c.Stream.OpTimeout); err != nil {
		return m, err
	} else if c.Stream.OpTimeout != "" {
		sc.OpTimeout = d
	}
	if c.Stream.Typing != nil {
		sc.Typing = *c.Stream.Typing
	}

	pol := retry.DefaultPolicy()
	if c.Retry.MaxRetries != nil {
		pol.MaxRetries = *c.Retry.MaxRetries
	}
	if d, err := ParseDurationField("retry.base_delay", c.Retry.BaseDelay); err != nil {
		return m, err
	} else if c.Retry.BaseDelay != "" {
		pol.BaseDelay = d
	}
	if d, err := ParseDurationField("retry.max_delay", c.Retry.MaxDelay); err != nil {
		return m, err
	} else if c.Retry.MaxDelay != "" {
		pol.MaxDelay = d
	}
	if c.Retry.Multiplier != 0 {
		pol.Multiplier = c.Retry.Multiplier
	}
	if c.Retry.Jitter != 0 {
		pol.Jitter = c.Retry.Jitter
	}
	if len(c.Retry.RetryOn) > 0 {
		cats := make([]retry.Category, 0, len(c.Retry.RetryOn))
		for _, name := range c.Retry.RetryOn {
			cat, err := parseCategory(name)
			if err != nil {
				return m, err
			}
			cats = append(cats, cat)
		}
		pol.RetryOn = cats
	}
	sc.Retry = pol
	if err := sc.Validate(); err != nil {
		return m, err
	}
	m.Stream = sc

	if c.History != nil {
		bt, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout)
		if err != nil {
			return m, err
		}
		m.History = history.Config{
			Driver:      c.History.Driver,
			Path:        c.History.Path,
			BusyTimeout: bt,
		}
	}

	if c.StatsLog != nil {
		m.Stats = statslog.Config{
			Enabled:  c.StatsLog.Enabled,
			Schedule: c.StatsLog.Schedule,
		}
	}

	return m, nil
}

func parseCategory(name string) (retry.Category, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "network":
		return retry.CategoryNetwork, nil
	case "timeout":
		return retry.CategoryTimeout, nil
	case "rate_limit", "ratelimit":
		return retry.CategoryRateLimit, nil
	case "server_5xx", "server":
		return retry.CategoryServer, nil
	case "unknown":
		return retry.CategoryUnknown, nil
	default:
		return 0, fmt.Errorf("retry.retry_on: unknown category %q", name)
	}
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"streamflow/internal/retry"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{
  "logging": {"level": "debug"},
  "stream": {"chunk_size": 256, "chunk_delay": "75ms"}
}`)
	m := NewManager(path)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Stream.ChunkSize != 256 || cfg.Stream.ChunkDelay != "75ms" {
		t.Errorf("stream = %+v", cfg.Stream)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: warn
stream:
  chunk_size: 1024
  typing: false
retry:
  max_retries: 5
  retry_on: [network, rate_limit]
history:
  driver: sqlite
  path: ./history.db
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Stream.Typing == nil || *cfg.Stream.Typing {
		t.Errorf("typing = %v, want false", cfg.Stream.Typing)
	}
	if cfg.Retry.MaxRetries == nil || *cfg.Retry.MaxRetries != 5 {
		t.Errorf("max_retries = %v", cfg.Retry.MaxRetries)
	}
	if cfg.History == nil || cfg.History.Driver != "sqlite" {
		t.Errorf("history = %+v", cfg.History)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"stream": {"chunk_sizes": 100}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"stream": {}} {"stream": {}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected trailing-data error")
	}
}

func TestBuildDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	m, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Stream.ChunkSize != 500 {
		t.Errorf("ChunkSize = %d, want 500", m.Stream.ChunkSize)
	}
	if m.Stream.ChunkDelay != 50*time.Millisecond {
		t.Errorf("ChunkDelay = %v", m.Stream.ChunkDelay)
	}
	if !m.Stream.Typing {
		t.Error("Typing should default to true")
	}
	if m.Stream.Retry.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", m.Stream.Retry.MaxRetries)
	}
	if !m.Logging.Console {
		t.Error("Console should default to true")
	}
	if m.History.Driver != "" {
		t.Errorf("History.Driver = %q, want disabled", m.History.Driver)
	}
	if m.Stats.Enabled {
		t.Error("stats log should default to disabled")
	}
}

func TestBuildOverrides(t *testing.T) {
	t.Parallel()
	typing := false
	tries := 1
	cfg := Config{
		Stream: StreamConfig{
			ChunkSize:  128,
			ChunkDelay: "10ms",
			OpTimeout:  "5s",
			Typing:     &typing,
		},
		Retry: RetryConfig{
			MaxRetries: &tries,
			BaseDelay:  "100ms",
			MaxDelay:   "1s",
			Multiplier: 3,
			RetryOn:    []string{"timeout", "server_5xx"},
		},
	}
	m, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Stream.ChunkSize != 128 || m.Stream.ChunkDelay != 10*time.Millisecond {
		t.Errorf("stream = %+v", m.Stream)
	}
	if m.Stream.OpTimeout != 5*time.Second {
		t.Errorf("OpTimeout = %v", m.Stream.OpTimeout)
	}
	if m.Stream.Typing {
		t.Error("Typing should be overridden to false")
	}
	pol := m.Stream.Retry
	if pol.MaxRetries != 1 || pol.BaseDelay != 100*time.Millisecond || pol.Multiplier != 3 {
		t.Errorf("policy = %+v", pol)
	}
	want := []retry.Category{retry.CategoryTimeout, retry.CategoryServer}
	if len(pol.RetryOn) != len(want) {
		t.Fatalf("RetryOn = %v", pol.RetryOn)
	}
	for i, c := range want {
		if pol.RetryOn[i] != c {
			t.Errorf("RetryOn[%d] = %v, want %v", i, pol.RetryOn[i], c)
		}
	}
}

func TestBuildBadDuration(t *testing.T) {
	t.Parallel()
	cfg := Config{Stream: StreamConfig{ChunkDelay: "fifty"}}
	if _, err := cfg.Build(); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestBuildBadCategory(t *testing.T) {
	t.Parallel()
	cfg := Config{Retry: RetryConfig{RetryOn: []string{"dns"}}}
	if _, err := cfg.Build(); err == nil {
		t.Fatal("expected category error")
	}
}

func TestParseCategoryAliases(t *testing.T) {
	t.Parallel()
	cases := map[string]retry.Category{
		"network":   retry.CategoryNetwork,
		"Timeout":   retry.CategoryTimeout,
		"ratelimit": retry.CategoryRateLimit,
		"server":    retry.CategoryServer,
		"unknown":   retry.CategoryUnknown,
	}
	for name, want := range cases {
		got, err := parseCategory(name)
		if err != nil {
			t.Errorf("parseCategory(%q): %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("parseCategory(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestLoadCommits(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"stream": {"chunk_size": 64}}`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Errorf("Get returned %p, want committed %p", got, cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"stream": {"chunk_size": -1}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Errorf("got %p, want %p", got, cfg)
		}
	default:
		t.Fatal("no config delivered")
	}

	// Slow subscriber: buffer full, oldest is dropped for the newest.
	old, latest := &Config{}, &Config{}
	m.publish(old)
	m.publish(latest)
	if got := <-ch; got != latest {
		t.Error("expected newest config after drop-oldest")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	m.Unsubscribe(ch) // no-op, must not panic
}

func TestWatchReloads(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"stream": {"chunk_size": 64}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"stream": {"chunk_size": 128}}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case cfg := <-ch:
		if cfg.Stream.ChunkSize != 128 {
			t.Errorf("chunk_size = %d, want 128", cfg.Stream.ChunkSize)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
	if m.Get().Stream.ChunkSize != 128 {
		t.Error("committed config not updated")
	}
}

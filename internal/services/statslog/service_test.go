package statslog

import (
	"context"
	"testing"

	"streamflow/internal/stream"
	logx "streamflow/pkg/logx"
)

type fakeSource struct{ st stream.Stats }

func (f fakeSource) Stats() stream.Stats { return f.st }

func TestNormalizeSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{raw: "*/5 * * * *", want: "*/5 * * * *", ok: true},
		{raw: "@hourly", want: "@hourly", ok: true},
		{raw: "@every 10m", want: "@every 10m", ok: true},
		{raw: "10m", want: "@every 10m0s", ok: true},
		{raw: "", ok: false},
		{raw: "not-a-spec", ok: false},
	}
	for _, tt := range tests {
		got, err := normalizeSpec(tt.raw)
		if tt.ok != (err == nil) {
			t.Fatalf("normalizeSpec(%q) err = %v, ok = %v", tt.raw, err, tt.ok)
		}
		if tt.ok && got != tt.want {
			t.Fatalf("normalizeSpec(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestStartDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{}, fakeSource{}, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("disabled Start: %v", err)
	}
	s.Stop(context.Background())
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Schedule: "@every 1h"}, fakeSource{}, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Second start is a no-op.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	s.Stop(context.Background())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Schedule: "bogus"}, fakeSource{}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

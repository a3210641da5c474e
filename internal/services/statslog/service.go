// Package statslog periodically logs registry-wide delivery stats.
//
// It is observability only: the reporter reads aggregate counters from the
// engine and never mutates or evicts sessions.
package statslog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"streamflow/internal/stream"
	logx "streamflow/pkg/logx"
)

type Config struct {
	Enabled bool

	// Schedule accepts a cron expression ("*/5 * * * *"), a cron descriptor
	// ("@hourly", "@every 10m"), or a bare Go duration ("10m").
	Schedule string
}

// Source is the slice of the engine the reporter needs.
type Source interface {
	Stats() stream.Stats
}

type Service struct {
	mu sync.Mutex

	cfg Config
	src Source
	log logx.Logger

	c       *cron.Cron
	entryID cron.EntryID
}

func New(cfg Config, src Source, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, src: src, log: log}
}

// Start schedules the periodic report. Calling Start on a running service is
// a no-op.
func (s *Service) Start(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		return nil
	}
	if s.c != nil {
		return nil
	}

	spec, err := normalizeSpec(s.cfg.Schedule)
	if err != nil {
		return err
	}

	c := cron.New()
	id, err := c.AddFunc(spec, s.report)
	if err != nil {
		return err
	}
	s.c = c
	s.entryID = id
	c.Start()
	s.log.Debug("statslog started", logx.String("schedule", spec))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

func (s *Service) report() {
	if s.src == nil {
		return
	}
	st := s.src.Stats()
	s.log.Info("stream.stats",
		logx.Int("active", st.Active),
		logx.Int("completed", st.Completed),
		logx.Int("errored", st.Errored),
		logx.Int("cancelled", st.Cancelled),
		logx.Int("total_chunks", st.TotalChunks))
}

// normalizeSpec accepts cron specs, cron descriptors, or bare Go durations.
func normalizeSpec(raw string) (string, error) {
	spec := strings.TrimSpace(raw)
	if spec == "" {
		return "", errors.New("statslog: schedule is required when enabled")
	}
	if strings.HasPrefix(spec, "@") || strings.Contains(spec, " ") {
		return spec, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return "", errors.New("statslog: schedule must be a cron spec or a duration")
	}
	if d <= 0 {
		return "", errors.New("statslog: schedule duration must be positive")
	}
	return "@every " + d.String(), nil
}

package stream

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"streamflow/internal/chunker"
	"streamflow/internal/eventbus"
	"streamflow/internal/history"
	"streamflow/internal/retry"
	logx "streamflow/pkg/logx"
)

// Engine owns the session registry and drives one emission loop per session.
//
// Sessions share no mutable state with each other; the registry map is the
// only cross-cutting resource and is guarded by its own mutex.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	exec    *retry.Executor

	bus eventbus.Bus
	log logx.Logger

	// store, when set, archives terminal session snapshots. Best-effort.
	store history.Store

	regMu    sync.RWMutex
	sessions map[string]*session
	lastID   string
}

// New validates cfg and builds an engine. bus may be nil (no notifications)
// and log may be the zero Logger.
func New(cfg Config, bus eventbus.Bus, log logx.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	exec, err := retry.NewExecutor(cfg.Retry, bus, log)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		exec:     exec,
		bus:      bus,
		log:      log,
		sessions: map[string]*session{},
	}
	e.limiter = newLimiter(cfg.MaxChunksPerSec)
	return e, nil
}

func newLimiter(perSec int) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSec), perSec)
}

// Apply swaps the engine config at runtime. In-flight sessions keep the
// settings they started with; the shared limiter and retry defaults change
// immediately.
func (e *Engine) Apply(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	exec, err := retry.NewExecutor(cfg.Retry, e.bus, e.log)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = cfg
	e.exec = exec
	e.limiter = newLimiter(cfg.MaxChunksPerSec)
	e.mu.Unlock()
	e.log.Debug("stream.config_applied", logx.Int("chunk_size", cfg.ChunkSize), logx.Duration("chunk_delay", cfg.ChunkDelay))
	return nil
}

// SetStore installs an archive for terminal session snapshots. Pass nil to
// disable. Not safe to change while sessions are in flight.
func (e *Engine) SetStore(st history.Store) { e.store = st }

// SubmitOption tweaks one submission.
type SubmitOption func(*session)

// WithChannel scopes the session's typing-indicator events to a channel
// identifier supplied by the caller (a chat id, a UI pane, ...).
func WithChannel(ch string) SubmitOption {
	return func(s *session) { s.channel = ch }
}

// Handle refers to a submitted session.
type Handle struct {
	s *session
}

func (h *Handle) ID() string { return h.s.id }

// Done is closed when the session reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.s.done }

// Snapshot returns the session's current state.
func (h *Handle) Snapshot() Snapshot { return h.s.snapshot() }

// Wait blocks until the session is terminal or ctx expires.
func (h *Handle) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-h.s.done:
		return h.s.snapshot(), nil
	case <-ctx.Done():
		return h.s.snapshot(), ctx.Err()
	}
}

// Submit chunks text and starts a session. Fire-and-forget: delivery failures
// surface on the session snapshot and the bus, never through this call.
// ctx cancellation is treated as a cancel request for the session.
func (e *Engine) Submit(ctx context.Context, text string, opts ...SubmitOption) (*Handle, error) {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	pieces := chunker.Split(text, cfg.ChunkSize)
	s := newSession(uuid.NewString(), "", pieces)
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}

	e.regMu.Lock()
	e.sessions[s.id] = s
	e.lastID = s.id
	e.regMu.Unlock()

	e.log.Debug("stream.submitted", logx.String("session", s.id), logx.Int("total_chunks", s.total), logx.Int("bytes", len(text)))
	go e.run(ctx, s, cfg)
	return &Handle{s: s}, nil
}

// SubmitWait submits and blocks until the session is terminal.
func (e *Engine) SubmitWait(ctx context.Context, text string, opts ...SubmitOption) (Snapshot, error) {
	h, err := e.Submit(ctx, text, opts...)
	if err != nil {
		return Snapshot{}, err
	}
	return h.Wait(ctx)
}

// Pause suspends a streaming session. Returns false if the session is
// unknown or not currently streaming; those are expected races, not errors.
func (e *Engine) Pause(id string) bool {
	s := e.lookup(id)
	if s == nil || !s.pause() {
		return false
	}
	e.log.Debug("stream.paused", logx.String("session", s.id))
	e.publish(EventPaused, ControlEvent{SessionID: s.id})
	return true
}

// Resume wakes a paused session.
func (e *Engine) Resume(id string) bool {
	s := e.lookup(id)
	if s == nil || !s.resume() {
		return false
	}
	e.log.Debug("stream.resumed", logx.String("session", s.id))
	e.publish(EventResumed, ControlEvent{SessionID: s.id})
	return true
}

// Cancel requests cooperative cancellation. It takes effect at the loop's
// next checkpoint; the terminal notification comes from the loop itself.
// Returns false when there is nothing to cancel (unknown or already
// terminal).
func (e *Engine) Cancel(id string) bool {
	s := e.lookup(id)
	if s == nil || !s.requestCancel() {
		return false
	}
	e.log.Debug("stream.cancel_requested", logx.String("session", s.id))
	return true
}

// Get returns a snapshot by id. An empty id means the most recently created
// session.
func (e *Engine) Get(id string) (Snapshot, bool) {
	s := e.lookup(id)
	if s == nil {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// List returns snapshots of all registered sessions, oldest first.
func (e *Engine) List() []Snapshot {
	e.regMu.RLock()
	out := make([]Snapshot, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.snapshot())
	}
	e.regMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Clear removes one session from the registry. A cleared in-flight session
// keeps running; it just becomes unreachable through the registry.
func (e *Engine) Clear(id string) bool {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	if _, ok := e.sessions[id]; !ok {
		return false
	}
	delete(e.sessions, id)
	if e.lastID == id {
		e.lastID = ""
	}
	return true
}

// ClearAll empties the registry and returns how many sessions were removed.
func (e *Engine) ClearAll() int {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	n := len(e.sessions)
	e.sessions = map[string]*session{}
	e.lastID = ""
	return n
}

// Stats aggregates counters across all registered sessions. The registry
// only reads; it never mutates session state.
func (e *Engine) Stats() Stats {
	var st Stats
	for _, snap := range e.List() {
		switch snap.Status {
		case StatusCompleted:
			st.Completed++
		case StatusErrored:
			st.Errored++
		case StatusCancelled:
			st.Cancelled++
		default:
			st.Active++
		}
		st.TotalChunks += len(snap.Chunks)
	}
	return st
}

// WithRetry wraps a caller-supplied operation with the engine's retry policy
// and OpTimeout. label names the operation in logs and notifications.
func (e *Engine) WithRetry(ctx context.Context, label string, op func(context.Context) error, opts ...retry.Option) error {
	e.mu.Lock()
	exec := e.exec
	timeout := e.cfg.OpTimeout
	e.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return exec.Do(ctx, label, op, opts...)
}

// WithRetryFor is WithRetry bound to a session: every retried attempt bumps
// the session's retry counter so callers can see how hard its upstream work
// had to fight.
func (e *Engine) WithRetryFor(ctx context.Context, sessionID, label string, op func(context.Context) error, opts ...retry.Option) error {
	s := e.lookup(sessionID)
	attempts := 0
	wrapped := func(ctx context.Context) error {
		attempts++
		if attempts > 1 && s != nil {
			s.bumpRetries()
		}
		return op(ctx)
	}
	return e.WithRetry(ctx, label, wrapped, opts...)
}

func (e *Engine) lookup(id string) *session {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	if id == "" {
		id = e.lastID
	}
	return e.sessions[id]
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// Package retry runs caller-supplied operations with classified backoff.
//
// The executor owns no I/O of its own: callers hand it a unit of work (a
// network call, a provider request) and a policy, and it decides whether a
// failure is worth another attempt. Classification is heuristic (see
// Classify); operations that know better can wrap their errors with
// WithCategory, NoRetry, or RetryAfter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"streamflow/internal/eventbus"
	logx "streamflow/pkg/logx"
)

// Event types published on the bus.
const (
	EventScheduled = "retry.scheduled"
	EventExhausted = "retry.exhausted"
)

// AttemptEvent is the payload for EventScheduled.
type AttemptEvent struct {
	Label   string        `json:"label"`
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
	Error   string        `json:"error"`
}

// ExhaustedEvent is the payload for EventExhausted.
type ExhaustedEvent struct {
	Label    string `json:"label"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// Option overrides part of the executor's policy for a single Do call.
type Option func(*Policy)

func WithMaxRetries(n int) Option          { return func(p *Policy) { p.MaxRetries = n } }
func WithBaseDelay(d time.Duration) Option { return func(p *Policy) { p.BaseDelay = d } }
func WithMaxDelay(d time.Duration) Option  { return func(p *Policy) { p.MaxDelay = d } }
func WithRetryOn(cats ...Category) Option  { return func(p *Policy) { p.RetryOn = cats } }
func WithPolicy(pol Policy) Option         { return func(p *Policy) { *p = pol } }

// Executor retries operations according to a Policy, publishing attempt
// notifications on the bus. Safe for concurrent use.
type Executor struct {
	pol Policy
	bus eventbus.Bus
	log logx.Logger

	// Shared RNG for jitter; guarded because Do may run concurrently.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewExecutor builds an executor. bus may be nil (no notifications) and log
// may be the zero Logger.
func NewExecutor(pol Policy, bus eventbus.Bus, log logx.Logger) (*Executor, error) {
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{
		pol: pol,
		bus: bus,
		log: log,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Do invokes op until it succeeds, fails with a non-retryable error, or runs
// out of attempts. label names the operation in logs and notifications
// ("generator:openai", "memory:flush").
//
// The first attempt runs immediately; each subsequent attempt waits the
// policy delay, interruptible by ctx.
func (x *Executor) Do(ctx context.Context, label string, op func(context.Context) error, opts ...Option) error {
	pol := x.pol
	for _, o := range opts {
		if o != nil {
			o(&pol)
		}
	}

	maxAttempts := 1 + pol.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Guard against op panics: convert to an error so one bad operation
		// can't take down the caller's goroutine.
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					x.log.Error("retry.op_panic", logx.String("label", label), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			err = op(ctx)
		}()
		if err == nil {
			return nil
		}

		var nr noRetryError
		if errors.As(err, &nr) {
			return nr.err
		}

		cat := Classify(err)
		if !pol.retryable(cat) {
			x.log.Debug("retry.not_retryable", logx.String("label", label), logx.String("category", cat.String()), logx.Err(err))
			return err
		}
		if attempt >= maxAttempts {
			break
		}

		delay := pol.delayForWithHint(attempt, err, x.jitterSource(pol))
		x.log.Debug("retry.scheduled",
			logx.String("label", label),
			logx.Int("attempt", attempt+1),
			logx.String("category", cat.String()),
			logx.Duration("delay", delay),
			logx.Err(err))
		if x.bus != nil {
			x.bus.Publish(eventbus.Event{Type: EventScheduled, Data: AttemptEvent{
				Label: label, Attempt: attempt + 1, Delay: delay, Error: err.Error(),
			}})
		}

		if delay > 0 {
			tmr := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				return ctx.Err()
			case <-tmr.C:
			}
		}
	}

	x.log.Warn("retry.exhausted", logx.String("label", label), logx.Int("attempts", maxAttempts), logx.Err(err))
	if x.bus != nil {
		x.bus.Publish(eventbus.Event{Type: EventExhausted, Data: ExhaustedEvent{
			Label: label, Attempts: maxAttempts, Error: err.Error(),
		}})
	}
	return &ExhaustedError{Label: label, Attempts: maxAttempts, Last: err}
}

// jitterSource returns a locked float source for jitter, or nil when the
// effective policy has none (keeps the deterministic path lock-free).
func (x *Executor) jitterSource(pol Policy) func() float64 {
	if pol.Jitter <= 0 {
		return nil
	}
	return func() float64 {
		x.rngMu.Lock()
		defer x.rngMu.Unlock()
		return x.rng.Float64()
	}
}

// DoValue is the generic form of Executor.Do for operations that produce a
// result.
func DoValue[T any](ctx context.Context, x *Executor, label string, op func(context.Context) (T, error), opts ...Option) (T, error) {
	var out T
	err := x.Do(ctx, label, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

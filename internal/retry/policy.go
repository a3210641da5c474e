package retry

import (
	"errors"
	"time"
)

// Policy controls how an Executor spaces and bounds its attempts.
//
// Total attempts = 1 + MaxRetries. No delay is applied before the first
// attempt; delays only occur between attempts.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Multiplier scales the delay after every failed attempt. 1 degenerates
	// to constant backoff, which is legal but not the default.
	Multiplier float64

	// Jitter randomizes each delay by +/- the given fraction (0.2 = 20%).
	// 0 disables jitter, which keeps delays exact for deterministic callers.
	Jitter float64

	// RetryOn lists the categories worth retrying. A failure classified
	// outside this set is surfaced immediately.
	RetryOn []Category
}

// DefaultPolicy mirrors the engine defaults: three retries, one second base,
// thirty second cap, doubling between attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2,
		RetryOn: []Category{
			CategoryNetwork,
			CategoryTimeout,
			CategoryRateLimit,
			CategoryServer,
		},
	}
}

// Validate fails fast on impossible settings instead of clamping silently.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("retry: max retries must be >= 0")
	}
	if p.BaseDelay < 0 {
		return errors.New("retry: base delay must be >= 0")
	}
	if p.MaxDelay < p.BaseDelay {
		return errors.New("retry: max delay must be >= base delay")
	}
	if p.Multiplier < 1 {
		return errors.New("retry: multiplier must be >= 1")
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return errors.New("retry: jitter must be in [0, 1]")
	}
	return nil
}

func (p Policy) retryable(cat Category) bool {
	for _, c := range p.RetryOn {
		if c == cat {
			return true
		}
	}
	return false
}

// delayFor computes the backoff before retry number retry (1-based: the
// delay between attempt N and attempt N+1 has retry == N). rnd supplies
// uniform floats in [0,1) for jitter; nil disables jitter.
func (p Policy) delayFor(retry int, rnd func() float64) time.Duration {
	base := p.BaseDelay
	maxD := p.MaxDelay
	if maxD <= 0 {
		maxD = base
	}

	d := float64(base)
	for i := 1; i < retry; i++ {
		d *= p.Multiplier
		if d >= float64(maxD) {
			d = float64(maxD)
			break
		}
	}
	out := time.Duration(d)
	if out > maxD {
		out = maxD
	}
	return p.applyJitter(out, rnd)
}

// delayForWithHint prefers an explicit retry-after hint carried by err,
// bounded by MaxDelay, over the computed geometric delay.
func (p Policy) delayForWithHint(retry int, err error, rnd func() float64) time.Duration {
	var ra RetryAfterError
	if err != nil && errors.As(err, &ra) {
		d := ra.RetryAfter()
		if d < 0 {
			d = 0
		}
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
		}
		return p.applyJitter(d, rnd)
	}
	return p.delayFor(retry, rnd)
}

func (p Policy) applyJitter(d time.Duration, rnd func() float64) time.Duration {
	if p.Jitter <= 0 || d <= 0 || rnd == nil {
		return d
	}
	r := (rnd()*2 - 1) * p.Jitter
	out := time.Duration(float64(d) * (1 + r))
	if out < 0 {
		out = 0
	}
	if p.MaxDelay > 0 && out > p.MaxDelay {
		out = p.MaxDelay
	}
	return out
}

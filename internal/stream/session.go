package stream

import (
	"context"
	"sync"
	"time"
)

// session is the mutable record behind one delivery. The emission loop is the
// only writer once the loop starts; control calls (pause/resume/cancel) flip
// status under mu and the loop observes the change at its next checkpoint.
type session struct {
	id      string
	channel string
	pieces  []string
	total   int

	mu          sync.Mutex
	status      Status
	chunks      []Chunk
	startedAt   time.Time
	completedAt time.Time
	errMsg      string
	retries     int

	// resumeCh is non-nil while paused and closed by Resume. The loop blocks
	// on it instead of polling.
	resumeCh chan struct{}

	// cancelCh is closed exactly once by the first successful Cancel. It also
	// wakes the pause wait and interrupts pacing sleeps.
	cancelCh chan struct{}
	cancel   sync.Once

	// done is closed when the emission loop has fully finished.
	done chan struct{}
}

func newSession(id, channel string, pieces []string) *session {
	return &session{
		id:        id,
		channel:   channel,
		pieces:    pieces,
		total:     len(pieces),
		status:    StatusPending,
		startedAt: time.Now(),
		cancelCh:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          s.id,
		Channel:     s.channel,
		Status:      s.status,
		Chunks:      append([]Chunk(nil), s.chunks...),
		TotalChunks: s.total,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		Error:       s.errMsg,
		Retries:     s.retries,
	}
}

// pause flips streaming -> paused. Any other state is a failed no-op.
func (s *session) pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusStreaming {
		return false
	}
	s.status = StatusPaused
	s.resumeCh = make(chan struct{})
	return true
}

// resume flips paused -> streaming and wakes the blocked loop.
func (s *session) resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return false
	}
	s.status = StatusStreaming
	if s.resumeCh != nil {
		close(s.resumeCh)
		s.resumeCh = nil
	}
	return true
}

// requestCancel marks the session cancelled and wakes any waits. The loop
// publishes the terminal notification; terminal states never transition.
func (s *session) requestCancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = StatusCancelled
	s.cancel.Do(func() { close(s.cancelCh) })
	return true
}

// waitRunning blocks while the session is paused and reports whether the loop
// may keep emitting. False means cancellation (explicit or via ctx).
func (s *session) waitRunning(ctx context.Context) bool {
	for {
		s.mu.Lock()
		switch s.status {
		case StatusStreaming:
			s.mu.Unlock()
			return true
		case StatusPaused:
			gate := s.resumeCh
			s.mu.Unlock()
			select {
			case <-gate:
			case <-s.cancelCh:
				return false
			case <-ctx.Done():
				return false
			}
		default:
			// Cancelled, or a state the loop can't continue from.
			s.mu.Unlock()
			return false
		}
	}
}

func (s *session) bumpRetries() {
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
}

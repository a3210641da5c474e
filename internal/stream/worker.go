package stream

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"streamflow/internal/history"
	logx "streamflow/pkg/logx"
)

// run drives one session from pending to a terminal state. It is the only
// writer to the session's chunk list and the only publisher of its terminal
// notification.
func (e *Engine) run(ctx context.Context, s *session, cfg Config) {
	defer close(s.done)
	log := e.log.With(logx.String("session", s.id))
	start := time.Now()

	s.mu.Lock()
	if s.status.Terminal() {
		// Cancelled before the loop got scheduled.
		s.completedAt = time.Now()
		s.mu.Unlock()
		e.publish(EventCancelled, ControlEvent{SessionID: s.id})
		e.archive(s.snapshot())
		return
	}
	s.status = StatusStreaming
	s.mu.Unlock()

	e.publish(EventStarted, StartedEvent{SessionID: s.id, TotalChunks: s.total})
	log.Debug("stream.started", logx.Int("total_chunks", s.total))

	if cfg.Typing {
		e.publish(EventTypingStart, TypingEvent{SessionID: s.id, Channel: s.channel})
		defer e.publish(EventTypingStop, TypingEvent{SessionID: s.id, Channel: s.channel})
	}

	// Guard against emission panics: one bad session must not crash the
	// process or leak a never-terminal session.
	var loopErr error
	cancelled := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				loopErr = fmt.Errorf("panic: %v", r)
				log.Error("stream.panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		cancelled, loopErr = e.emit(ctx, s, cfg)
	}()

	now := time.Now()
	s.mu.Lock()
	switch {
	case loopErr != nil:
		s.status = StatusErrored
		s.errMsg = loopErr.Error()
		s.completedAt = now
	case cancelled || s.status == StatusCancelled:
		// Cancel may have landed after the last chunk; it still wins.
		s.status = StatusCancelled
		s.completedAt = now
	default:
		s.status = StatusCompleted
		s.completedAt = now
	}
	final := s.snapshotLocked()
	s.mu.Unlock()

	switch final.Status {
	case StatusErrored:
		log.Warn("stream.error", logx.Err(loopErr), logx.Int("chunks", len(final.Chunks)), logx.Duration("dur", time.Since(start)))
		e.publish(EventError, ErrorEvent{SessionID: s.id, Message: final.Error})
	case StatusCancelled:
		log.Info("stream.cancelled", logx.Int("chunks", len(final.Chunks)), logx.Duration("dur", time.Since(start)))
		e.publish(EventCancelled, ControlEvent{SessionID: s.id})
	default:
		log.Info("stream.completed", logx.Int("chunks", len(final.Chunks)), logx.Duration("dur", time.Since(start)))
		e.publish(EventCompleted, final)
	}
	e.archive(final)
}

// emit walks the chunk sequence, honoring pause, cancel, pacing, and the
// engine-wide rate limiter. Returns cancelled=true when the loop stopped
// because of an observed cancellation (explicit or ctx).
func (e *Engine) emit(ctx context.Context, s *session, cfg Config) (cancelled bool, err error) {
	for i, piece := range s.pieces {
		// Checkpoint: observe cancellation, block while paused.
		if !s.waitRunning(ctx) {
			return true, nil
		}

		e.mu.Lock()
		lim := e.limiter
		e.mu.Unlock()
		if lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return true, nil
			}
		}

		c := Chunk{
			ID:      uuid.NewString(),
			Session: s.id,
			Index:   i,
			Content: piece,
			Last:    i == s.total-1,
			At:      time.Now(),
		}
		s.mu.Lock()
		s.chunks = append(s.chunks, c)
		s.mu.Unlock()
		e.publish(EventChunk, c)

		if i < s.total-1 && cfg.ChunkDelay > 0 {
			tmr := time.NewTimer(cfg.ChunkDelay)
			select {
			case <-s.cancelCh:
				if !tmr.Stop() {
					<-tmr.C
				}
				return true, nil
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				return true, nil
			case <-tmr.C:
			}
		}
	}
	return false, nil
}

// archive stores a terminal snapshot, best-effort.
func (e *Engine) archive(snap Snapshot) {
	if e.store == nil || !snap.Status.Terminal() {
		return
	}
	chars := 0
	for _, c := range snap.Chunks {
		chars += len(c.Content)
	}
	rec := history.Record{
		SessionID:   snap.ID,
		Channel:     snap.Channel,
		Status:      snap.Status.String(),
		Chunks:      len(snap.Chunks),
		TotalChunks: snap.TotalChunks,
		Chars:       chars,
		Retries:     snap.Retries,
		StartedAt:   snap.StartedAt,
		EndedAt:     snap.CompletedAt,
		Error:       snap.Error,
	}
	cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.store.Append(cctx, rec); err != nil {
		e.log.Warn("stream.archive_failed", logx.String("session", snap.ID), logx.Err(err))
	}
}

package stream

import (
	"errors"
	"time"

	"streamflow/internal/retry"
)

// Config controls chunking and pacing for new sessions.
//
// The engine snapshots the config at Submit time; Apply() only affects
// sessions created afterwards.
type Config struct {
	// ChunkSize is the target chunk length in bytes. Must be positive.
	ChunkSize int

	// ChunkDelay is the pause between consecutive chunks of one session.
	ChunkDelay time.Duration

	// MaxChunksPerSec caps chunk emission across all sessions.
	// 0 disables the engine-wide limiter.
	MaxChunksPerSec int

	// OpTimeout bounds a whole WithRetry call (all attempts and backoffs).
	// 0 disables the bound.
	OpTimeout time.Duration

	// Typing controls typing-indicator start/stop events around a session.
	Typing bool

	// Retry is the default policy for the embedded executor.
	Retry retry.Policy
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:  500,
		ChunkDelay: 50 * time.Millisecond,
		OpTimeout:  2 * time.Minute,
		Typing:     true,
		Retry:      retry.DefaultPolicy(),
	}
}

// Validate fails fast on invalid settings instead of clamping silently.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("stream: chunk size must be > 0")
	}
	if c.ChunkDelay < 0 {
		return errors.New("stream: chunk delay must be >= 0")
	}
	if c.MaxChunksPerSec < 0 {
		return errors.New("stream: max chunks per second must be >= 0")
	}
	if c.OpTimeout < 0 {
		return errors.New("stream: op timeout must be >= 0")
	}
	return c.Retry.Validate()
}

// Status is a session's position in the delivery state machine.
//
// Pending and Streaming are transient; Completed, Cancelled, and Errored are
// terminal. Paused is re-enterable from and to Streaming only.
type Status int

const (
	StatusPending Status = iota
	StatusStreaming
	StatusPaused
	StatusCompleted
	StatusCancelled
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStreaming:
		return "streaming"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusErrored:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusErrored
}

// Chunk is one ordered piece of a session's text, delivered atomically.
type Chunk struct {
	ID      string            `json:"id"`
	Session string            `json:"session"`
	Index   int               `json:"index"`
	Content string            `json:"content"`
	Last    bool              `json:"last"`
	At      time.Time         `json:"at"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel,omitempty"`
	Status      Status    `json:"status"`
	Chunks      []Chunk   `json:"chunks"`
	TotalChunks int       `json:"total_chunks"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	Error       string    `json:"error,omitempty"`
	Retries     int       `json:"retries"`
}

// Stats aggregates registry-wide counters. Active covers pending, streaming
// and paused sessions.
type Stats struct {
	Active      int `json:"active"`
	Completed   int `json:"completed"`
	Errored     int `json:"errored"`
	Cancelled   int `json:"cancelled"`
	TotalChunks int `json:"total_chunks"`
}

// Event types published on the bus.
const (
	EventStarted     = "stream.started"
	EventChunk       = "stream.chunk"
	EventCompleted   = "stream.completed"
	EventError       = "stream.error"
	EventCancelled   = "stream.cancelled"
	EventPaused      = "stream.paused"
	EventResumed     = "stream.resumed"
	EventTypingStart = "typing.start"
	EventTypingStop  = "typing.stop"
)

// StartedEvent is the payload for EventStarted.
type StartedEvent struct {
	SessionID   string `json:"session_id"`
	TotalChunks int    `json:"total_chunks"`
}

// ControlEvent is the payload for pause/resume/cancel events.
type ControlEvent struct {
	SessionID string `json:"session_id"`
}

// ErrorEvent is the payload for EventError.
type ErrorEvent struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// TypingEvent is the payload for typing-indicator events. Channel carries the
// caller-supplied scope (e.g. a chat channel id) when one was given.
type TypingEvent struct {
	SessionID string `json:"session_id"`
	Channel   string `json:"channel,omitempty"`
}

package history

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the terminal-session archive.
//
// Driver values:
//   - "file": dependency-free JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the archive is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is the compact row archived per terminal session. Full chunk
// contents are intentionally not persisted; in-flight sessions never are.
type Record struct {
	SessionID   string    `json:"session_id"`
	Channel     string    `json:"channel,omitempty"`
	Status      string    `json:"status"`
	Chunks      int       `json:"chunks"`
	TotalChunks int       `json:"total_chunks"`
	Chars       int       `json:"chars"`
	Retries     int       `json:"retries"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Error       string    `json:"error,omitempty"`
}

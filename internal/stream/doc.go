// Package stream delivers a block of text to consumers as paced, ordered
// chunks, with pause/resume, cooperative cancellation, and a retry executor
// for the caller's own upstream operations.
//
// # Sessions
//
// Submit chunks the text (see internal/chunker) and starts one goroutine that
// walks the chunk sequence. Each session moves through a small state machine:
//
//	pending -> streaming -> {paused <-> streaming} -> completed | cancelled | error
//
// Completed, cancelled, and error are terminal; nothing transitions out of
// them. Pause only succeeds while streaming, resume only while paused, and
// cancel succeeds from any non-terminal state. Control calls return a bool:
// losing one of these races is normal usage, not an error.
//
// # Ordering
//
// Chunks of one session are emitted strictly in index order with no gaps and
// no duplicates, and the terminal notification for a session is published
// exactly once, after all of its chunk notifications. Cancellation is
// cooperative: it takes effect at the next loop checkpoint, so a cancelled
// session keeps the chunks emitted before the cancel was observed.
//
// # Retry
//
// The engine embeds a retry.Executor so callers (a chat-response generator,
// a memory flush) can wrap fallible work with the engine's policy via
// WithRetry. Delivery itself is never retried; a failure inside the emission
// loop marks the session errored and is reported on the bus.
//
// # Registry
//
// The engine doubles as the session registry: lookup, listing, clearing, and
// aggregate stats. Sessions are only removed on explicit request; there is no
// timer-based eviction.
package stream

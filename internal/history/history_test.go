package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "streamflow/pkg/logx"
)

func testRecord(id string) Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return Record{
		SessionID:   id,
		Channel:     "chan-1",
		Status:      "completed",
		Chunks:      3,
		TotalChunks: 3,
		Chars:       1200,
		Retries:     1,
		StartedAt:   now.Add(-time.Second),
		EndedAt:     now,
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st != nil {
		t.Fatal("disabled config should return a nil store")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sessions.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := st.Append(ctx, testRecord(id)); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}

	recs, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].SessionID != "b" || recs[1].SessionID != "c" {
		t.Fatalf("unexpected order: %s, %s", recs[0].SessionID, recs[1].SessionID)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sessions.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	want := testRecord("s-1")
	want.Status = "error"
	want.Error = "boom"
	if err := st.Append(ctx, want); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := st.Append(ctx, testRecord("s-2")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	recs, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	got := recs[0]
	if got.SessionID != "s-1" || got.Status != "error" || got.Error != "boom" {
		t.Fatalf("record mismatch: %+v", got)
	}
	if got.Chunks != 3 || got.Chars != 1200 || got.Retries != 1 {
		t.Fatalf("counters mismatch: %+v", got)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Fatalf("StartedAt = %v, want %v", got.StartedAt, want.StartedAt)
	}
}

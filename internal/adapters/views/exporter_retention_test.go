package views

import (
	"context"
	"testing"
	"time"

	"crimestats/internal/adapters/testutil"
	"crimestats/internal/blob"
	"crimestats/internal/core"
)

func TestWorkerEvictsFinishedRecords(t *testing.T) {
	svc, err := testutil.NewService()
	if err != nil {
		t.Fatalf("fixture service: %v", err)
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w := NewWorker(svc, blob.NewMemory(), nil)
	w.now = func() time.Time { return now }
	w.SetRetention(time.Hour, 3)

	enqueue := func() string {
		t.Helper()
		record, err := w.EnqueueExport(context.Background(), ExportInput{ViewSlug: core.ViewSlug("preview")})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		return record.ID
	}

	first, second := enqueue(), enqueue()
	w.fail(first, "boom")
	w.complete(second, nil, 0)

	now = now.Add(2 * time.Hour)
	third := enqueue()
	for _, id := range []string{first, second} {
		if _, ok := w.GetExport(id); ok {
			t.Fatalf("expired record %s still present", id)
		}
	}

	fourth, fifth := enqueue(), enqueue()
	w.fail(third, "boom")
	sixth := enqueue()
	if _, ok := w.GetExport(third); ok {
		t.Fatalf("oldest finished record should make room")
	}
	for _, id := range []string{fourth, fifth, sixth} {
		if _, ok := w.GetExport(id); !ok {
			t.Fatalf("queued record %s dropped", id)
		}
	}

	// Only queued records remain, so the limit is exceeded instead.
	seventh := enqueue()
	if _, ok := w.GetExport(seventh); !ok {
		t.Fatalf("new record missing")
	}
	w.mu.RLock()
	held := len(w.jobs)
	w.mu.RUnlock()
	if held != 4 {
		t.Fatalf("expected 4 held records, got %d", held)
	}
}

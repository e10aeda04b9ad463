package views_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"crimestats/internal/adapters/testutil"
	"crimestats/internal/adapters/views"
	"crimestats/internal/blob"
	"crimestats/internal/core"
)

func newWorker(t *testing.T) (*views.Worker, *views.MemoryAuditLog, blob.Store) {
	t.Helper()
	svc, err := testutil.NewService()
	if err != nil {
		t.Fatalf("fixture service: %v", err)
	}
	store := blob.NewMemory()
	audit := &views.MemoryAuditLog{}
	return views.NewWorker(svc, store, audit), audit, store
}

func waitForExport(t *testing.T, w views.ExportScheduler, id string) views.ExportRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := w.GetExport(id)
		if !ok {
			t.Fatalf("export %s disappeared", id)
		}
		if record.Status == views.ExportStatusSucceeded || record.Status == views.ExportStatusFailed {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("export %s did not finish", id)
	return views.ExportRecord{}
}

func stopWorker(t *testing.T, w *views.Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop worker: %v", err)
	}
}

func TestWorkerExportSucceeds(t *testing.T) {
	worker, audit, store := newWorker(t)
	worker.Start()
	defer stopWorker(t, worker)

	record, err := worker.EnqueueExport(context.Background(), views.ExportInput{
		ViewSlug:    core.ViewSlug("share"),
		Parameters:  map[string]any{"population": "sum", "year": 2010},
		Formats:     []core.ViewFormat{core.FormatCSV, core.FormatPNG, core.FormatCSV},
		RequestedBy: "analyst",
		Reason:      "quarterly report",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if record.Status != views.ExportStatusQueued || len(record.Formats) != 2 {
		t.Fatalf("unexpected queued record: %+v", record)
	}

	done := waitForExport(t, worker, record.ID)
	if done.Status != views.ExportStatusSucceeded {
		t.Fatalf("export failed: %s", done.Error)
	}
	if len(done.Artifacts) != 2 || done.CompletedAt == nil {
		t.Fatalf("unexpected artifacts: %+v", done.Artifacts)
	}

	csvArtifact := done.Artifacts[0]
	if !strings.HasPrefix(csvArtifact.Key, "exports/"+record.ID+"/") || csvArtifact.Format != core.FormatCSV {
		t.Fatalf("unexpected artifact key %q", csvArtifact.Key)
	}
	artifact, payload, err := worker.OpenArtifact(context.Background(), record.ID, csvArtifact.ID)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	if artifact.ContentType != "text/csv" || !strings.HasPrefix(string(payload), "crime_category,") {
		t.Fatalf("unexpected csv artifact %q", payload)
	}

	infos, err := store.List(context.Background(), "exports/"+record.ID)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 stored blobs, got %d", len(infos))
	}
	if infos[0].Metadata["view"] != core.ViewSlug("share") {
		t.Fatalf("missing view metadata: %+v", infos[0].Metadata)
	}

	var statuses []views.ExportStatus
	for _, entry := range audit.Entries() {
		statuses = append(statuses, entry.Status)
		if entry.Actor != "analyst" || entry.Action != "view_export" {
			t.Fatalf("unexpected audit entry %+v", entry)
		}
	}
	want := []views.ExportStatus{views.ExportStatusQueued, views.ExportStatusRunning, views.ExportStatusSucceeded}
	if len(statuses) != len(want) {
		t.Fatalf("unexpected audit trail %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("unexpected audit trail %v", statuses)
		}
	}
}

func TestWorkerExportFailsOnInvalidParameters(t *testing.T) {
	worker, _, _ := newWorker(t)
	worker.Start()
	defer stopWorker(t, worker)

	record, err := worker.EnqueueExport(context.Background(), views.ExportInput{ViewSlug: core.ViewSlug("ranking")})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := waitForExport(t, worker, record.ID)
	if done.Status != views.ExportStatusFailed || !strings.Contains(done.Error, "parameter") {
		t.Fatalf("expected parameter failure, got %+v", done)
	}
}

func TestWorkerEnqueueValidation(t *testing.T) {
	worker, _, _ := newWorker(t)
	ctx := context.Background()

	if _, err := worker.EnqueueExport(ctx, views.ExportInput{}); err == nil {
		t.Fatalf("expected error for empty slug")
	}
	if _, err := worker.EnqueueExport(ctx, views.ExportInput{ViewSlug: "crime/unknown@v1"}); !errors.Is(err, core.ErrViewNotFound) {
		t.Fatalf("expected ErrViewNotFound, got %v", err)
	}
	if _, err := worker.EnqueueExport(ctx, views.ExportInput{ViewSlug: core.ViewSlug("preview"), Formats: []core.ViewFormat{core.FormatPNG}}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	record, err := worker.EnqueueExport(ctx, views.ExportInput{ViewSlug: core.ViewSlug("preview")})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(record.Formats) != 2 || record.Formats[0] != core.FormatJSON || record.Formats[1] != core.FormatCSV {
		t.Fatalf("expected default formats, got %v", record.Formats)
	}
}

func TestWorkerQueueFull(t *testing.T) {
	worker, _, _ := newWorker(t)
	var err error
	for i := 0; i < 64 && err == nil; i++ {
		_, err = worker.EnqueueExport(context.Background(), views.ExportInput{ViewSlug: core.ViewSlug("summary")})
	}
	if !errors.Is(err, views.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestWorkerOpenArtifactUnknown(t *testing.T) {
	worker, _, _ := newWorker(t)
	if _, _, err := worker.OpenArtifact(context.Background(), "missing", "artifact"); !errors.Is(err, views.ErrExportNotFound) {
		t.Fatalf("expected ErrExportNotFound, got %v", err)
	}
}

func TestHandlerExportFlow(t *testing.T) {
	svc, err := testutil.NewService()
	if err != nil {
		t.Fatalf("fixture service: %v", err)
	}
	worker := views.NewWorker(svc, blob.NewMemory(), nil)
	worker.Start()
	defer stopWorker(t, worker)
	handler := views.NewHandler(svc, worker)

	resp := do(t, handler, http.MethodPost, "/api/v1/views/exports",
		`{"view":{"plugin":"crime","key":"tidy","version":"v1"},"formats":["csv","xlsx"],"requested_by":"analyst"}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", resp.Code, resp.Body.String())
	}
	var created struct {
		Export views.ExportRecord `json:"export"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	done := waitForExport(t, worker, created.Export.ID)
	if done.Status != views.ExportStatusSucceeded {
		t.Fatalf("export failed: %s", done.Error)
	}

	status := do(t, handler, http.MethodGet, "/api/v1/views/exports/"+created.Export.ID, "")
	if status.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", status.Code)
	}
	artifact := do(t, handler, http.MethodGet, "/api/v1/views/exports/"+created.Export.ID+"/artifacts/"+done.Artifacts[0].ID, "")
	if artifact.Code != http.StatusOK || artifact.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("unexpected artifact response %d %q", artifact.Code, artifact.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(artifact.Body.String(), "district,crime_category,year,cases,population") {
		t.Fatalf("unexpected artifact body %q", artifact.Body.String())
	}

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown view", http.MethodPost, "/api/v1/views/exports", `{"view":{"slug":"crime/unknown@v1"}}`, http.StatusNotFound},
		{"missing view", http.MethodPost, "/api/v1/views/exports", `{}`, http.StatusBadRequest},
		{"bad format", http.MethodPost, "/api/v1/views/exports", `{"view":{"slug":"crime/tidy@v1"},"formats":["pdf"]}`, http.StatusBadRequest},
		{"unknown export", http.MethodGet, "/api/v1/views/exports/missing", "", http.StatusNotFound},
		{"unknown artifact", http.MethodGet, "/api/v1/views/exports/" + created.Export.ID + "/artifacts/missing", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := do(t, handler, tc.method, tc.path, tc.body)
			if got.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, got.Code, got.Body.String())
			}
		})
	}
}

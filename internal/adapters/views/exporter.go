package views

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crimestats/internal/blob"
	"crimestats/internal/core"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

const (
	exportQueueSize = 32
	exportPrefix    = "exports/"

	// DefaultExportRetention is how long finished export records stay
	// queryable. Stored artifacts are left in the blob store.
	DefaultExportRetention = 24 * time.Hour
	// DefaultExportRecordLimit caps the number of records kept in memory.
	DefaultExportRecordLimit = 1024
)

// ExportArtifact is one rendered format of an export stored in the blob
// store.
type ExportArtifact struct {
	ID          string          `json:"id"`
	Key         string          `json:"key"`
	Format      core.ViewFormat `json:"format"`
	ContentType string          `json:"content_type"`
	SizeBytes   int64           `json:"size_bytes"`
	URL         string          `json:"url,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ExportRecord tracks an export request and its artifacts.
type ExportRecord struct {
	ID          string                      `json:"id"`
	Template    core.ViewTemplateDescriptor `json:"template"`
	Parameters  map[string]any              `json:"parameters"`
	Formats     []core.ViewFormat           `json:"formats"`
	Status      ExportStatus                `json:"status"`
	Error       string                      `json:"error,omitempty"`
	Artifacts   []ExportArtifact            `json:"artifacts,omitempty"`
	Warnings    int                         `json:"warnings"`
	RequestedBy string                      `json:"requested_by,omitempty"`
	Reason      string                      `json:"reason,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
}

// ExportInput is an enqueue request for the worker.
type ExportInput struct {
	ViewSlug    string
	Parameters  map[string]any
	Formats     []core.ViewFormat
	RequestedBy string
	Reason      string
}

// ExportScheduler queues view exports and exposes their status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
	OpenArtifact(ctx context.Context, exportID, artifactID string) (ExportArtifact, []byte, error)
}

// AuditLogger records export lifecycle entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry is one export lifecycle transition.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	View       string         `json:"view"`
	Status     ExportStatus   `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

var (
	// ErrQueueFull is returned when the export queue cannot take more work.
	ErrQueueFull = errors.New("export queue full")
	// ErrExportNotFound is returned for unknown export or artifact ids.
	ErrExportNotFound = errors.New("export not found")
)

// Worker renders view exports asynchronously and stores the artifacts in a
// blob store.
type Worker struct {
	catalog Catalog
	store   blob.Store
	audit   AuditLogger
	now     func() time.Time

	queue     chan exportTask
	mu        sync.RWMutex
	jobs      map[string]*ExportRecord
	retention time.Duration
	limit     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

// NewWorker constructs an export worker. A nil audit logger disables the
// audit trail.
func NewWorker(c Catalog, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		catalog: c,
		store:   store,
		audit:   audit,
		now:     func() time.Time { return time.Now().UTC() },
		queue:     make(chan exportTask, exportQueueSize),
		jobs:      make(map[string]*ExportRecord),
		retention: DefaultExportRetention,
		limit:     DefaultExportRecordLimit,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetRetention bounds the export records kept in memory. Finished records
// older than ttl are dropped, and once limit records are held the oldest
// finished ones go first. Queued and running exports are never dropped.
// Non-positive values keep the current setting.
func (w *Worker) SetRetention(ttl time.Duration, limit int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ttl > 0 {
		w.retention = ttl
	}
	if limit > 0 {
		w.limit = limit
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the running export.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport validates the request and schedules it. Formats default to
// json and csv.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.catalog == nil || w.store == nil {
		return ExportRecord{}, fmt.Errorf("export worker not configured")
	}
	slug := strings.TrimSpace(input.ViewSlug)
	if slug == "" {
		return ExportRecord{}, fmt.Errorf("view slug required")
	}
	template, ok := w.catalog.ResolveViewTemplate(slug)
	if !ok {
		return ExportRecord{}, fmt.Errorf("%w: %s", core.ErrViewNotFound, slug)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []core.ViewFormat{core.FormatJSON, core.FormatCSV}
	}
	uniq := make([]core.ViewFormat, 0, len(formats))
	seen := make(map[core.ViewFormat]struct{})
	for _, format := range formats {
		if _, dup := seen[format]; dup {
			continue
		}
		if !template.SupportsFormat(format) {
			return ExportRecord{}, fmt.Errorf("format %s not supported by view %s", format, slug)
		}
		seen[format] = struct{}{}
		uniq = append(uniq, format)
	}

	now := w.now()
	record := ExportRecord{
		ID:          uuid.NewString(),
		Template:    template.Descriptor(),
		Parameters:  cloneMap(input.Parameters),
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	input.ViewSlug = slug

	w.mu.Lock()
	if len(w.queue) == cap(w.queue) {
		w.mu.Unlock()
		return ExportRecord{}, ErrQueueFull
	}
	w.evictLocked(now)
	w.jobs[record.ID] = &record
	snapshot := record.copy()
	w.mu.Unlock()

	w.record(ctx, record.ID, ExportStatusQueued, nil)
	select {
	case w.queue <- exportTask{id: record.ID, input: input}:
	default:
		w.fail(record.ID, ErrQueueFull.Error())
		return ExportRecord{}, ErrQueueFull
	}
	return snapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

// OpenArtifact reads a stored artifact of a finished export.
func (w *Worker) OpenArtifact(ctx context.Context, exportID, artifactID string) (ExportArtifact, []byte, error) {
	record, ok := w.GetExport(exportID)
	if !ok {
		return ExportArtifact{}, nil, ErrExportNotFound
	}
	for _, artifact := range record.Artifacts {
		if artifact.ID != artifactID {
			continue
		}
		_, rc, err := w.store.Get(ctx, artifact.Key)
		if err != nil {
			return ExportArtifact{}, nil, fmt.Errorf("open artifact %s: %w", artifact.Key, err)
		}
		defer func() { _ = rc.Close() }()
		buf := &bytes.Buffer{}
		if _, err := buf.ReadFrom(rc); err != nil {
			return ExportArtifact{}, nil, fmt.Errorf("read artifact %s: %w", artifact.Key, err)
		}
		return artifact, buf.Bytes(), nil
	}
	return ExportArtifact{}, nil, ErrExportNotFound
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}
	w.transition(task.id, ExportStatusRunning, "")

	result, paramErrs, err := w.catalog.RunView(w.ctx, task.input.ViewSlug, task.input.Parameters, core.FormatJSON)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("view run failed: %v", err))
		return
	}
	if len(paramErrs) > 0 {
		w.fail(task.id, fmt.Sprintf("parameter validation failed: %v", paramErrs))
		return
	}

	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		artifact, err := w.storeArtifact(task.id, record.Template, format, result)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(task.id, artifacts, len(result.Warnings))
}

func (w *Worker) storeArtifact(exportID string, descriptor core.ViewTemplateDescriptor, format core.ViewFormat, result core.ViewRunResult) (ExportArtifact, error) {
	result.Format = format
	rendered, err := Render(format, descriptor, result)
	if err != nil {
		return ExportArtifact{}, err
	}
	key := fmt.Sprintf("%s%s/%s.%s", exportPrefix, exportID, descriptor.Key, rendered.Extension)
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(rendered.Payload), blob.PutOptions{
		ContentType: rendered.ContentType,
		Metadata: map[string]string{
			"export": exportID,
			"view":   descriptor.Slug,
		},
	})
	if err != nil {
		return ExportArtifact{}, fmt.Errorf("store artifact %s: %w", key, err)
	}
	url := info.URL
	if signed, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); err == nil {
		url = signed
	}
	return ExportArtifact{
		ID:          uuid.NewString(),
		Key:         key,
		Format:      format,
		ContentType: rendered.ContentType,
		SizeBytes:   info.Size,
		URL:         url,
		Metadata:    map[string]any{"rows": len(result.Rows), "etag": info.ETag},
		CreatedAt:   w.now(),
	}, nil
}

func (w *Worker) transition(id string, status ExportStatus, message string) {
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = w.now()
	}
	w.mu.Unlock()
	w.record(w.ctx, id, status, nil)
}

func (w *Worker) complete(id string, artifacts []ExportArtifact, warnings int) {
	now := w.now()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.Warnings = warnings
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.record(w.ctx, id, ExportStatusSucceeded, map[string]any{"artifacts": len(artifacts)})
}

func (w *Worker) fail(id, reason string) {
	now := w.now()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.record(w.ctx, id, ExportStatusFailed, map[string]any{"error": reason})
}

func (w *Worker) record(ctx context.Context, id string, status ExportStatus, metadata map[string]any) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	record, ok := w.jobs[id]
	var actor, view, reason string
	if ok {
		actor, view, reason = record.RequestedBy, record.Template.Slug, record.Reason
	}
	w.mu.RUnlock()
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     "view_export",
		Actor:      actor,
		View:       view,
		Status:     status,
		Reason:     reason,
		Metadata:   metadata,
		OccurredAt: w.now(),
	})
}

// evictLocked drops expired finished records, then the oldest finished ones
// until there is room for one more. Callers hold w.mu.
func (w *Worker) evictLocked(now time.Time) {
	var finished []*ExportRecord
	for id, record := range w.jobs {
		if record.CompletedAt == nil {
			continue
		}
		if now.Sub(*record.CompletedAt) > w.retention {
			delete(w.jobs, id)
			continue
		}
		finished = append(finished, record)
	}
	excess := len(w.jobs) - w.limit + 1
	if excess <= 0 {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].CompletedAt.Before(*finished[j].CompletedAt) })
	for i := 0; i < excess && i < len(finished); i++ {
		delete(w.jobs, finished[i].ID)
	}
}

func (r *ExportRecord) copy() ExportRecord {
	dup := *r
	dup.Parameters = cloneMap(r.Parameters)
	dup.Formats = append([]core.ViewFormat(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	return dup
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SlogAuditLog writes audit entries to a structured logger.
type SlogAuditLog struct {
	Logger *slog.Logger
}

func (l SlogAuditLog) Record(ctx context.Context, entry AuditEntry) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "export audit",
		"action", entry.Action,
		"actor", entry.Actor,
		"view", entry.View,
		"status", string(entry.Status),
		"metadata", entry.Metadata,
	)
}

// MemoryAuditLog keeps audit entries in memory.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.entries...)
}

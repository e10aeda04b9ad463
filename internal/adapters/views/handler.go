// Package views exposes the view catalog over HTTP and renders view results
// into export artifacts.
package views

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"crimestats/internal/core"
	"crimestats/pkg/viewapi"
)

// Catalog lists, resolves and runs views.
type Catalog interface {
	ViewTemplates() []core.ViewTemplateDescriptor
	ResolveViewTemplate(slug string) (core.ViewTemplate, bool)
	RunView(ctx context.Context, slug string, params map[string]any, format core.ViewFormat) (core.ViewRunResult, []core.ViewParameterError, error)
}

const apiPrefix = "/api/v1/views"

// Handler serves the view API.
type Handler struct {
	Catalog Catalog
	Exports ExportScheduler

	router *mux.Router
}

// NewHandler constructs a view HTTP handler. Exports may be nil, in which
// case the export routes answer 404.
func NewHandler(c Catalog, exports ExportScheduler) *Handler {
	h := &Handler{Catalog: c, Exports: exports}
	h.router = mux.NewRouter()
	h.Register(h.router)
	return h
}

// Register adds the view routes to r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix(apiPrefix).Subrouter()
	api.StrictSlash(true)
	api.HandleFunc("/templates", h.handleListTemplates).Methods(http.MethodGet)
	api.HandleFunc("/templates/{plugin}/{key}/{version}", h.withTemplate(h.handleGetTemplate)).Methods(http.MethodGet)
	api.HandleFunc("/templates/{plugin}/{key}/{version}/validate", h.withTemplate(h.handleValidate)).Methods(http.MethodPost)
	api.HandleFunc("/templates/{plugin}/{key}/{version}/run", h.withTemplate(h.handleRun)).Methods(http.MethodPost)
	api.HandleFunc("/exports", h.handleExportCreate).Methods(http.MethodPost)
	api.HandleFunc("/exports/{id}", h.handleExportGet).Methods(http.MethodGet)
	api.HandleFunc("/exports/{id}/artifacts/{artifact}", h.handleArtifact).Methods(http.MethodGet)
	// Subrouters report method mismatches up to the root router.
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		writeError(w, http.StatusInternalServerError, "view catalog not configured")
		return
	}
	h.router.ServeHTTP(w, r)
}

type templateHandler func(http.ResponseWriter, *http.Request, core.ViewTemplate)

func (h *Handler) withTemplate(next templateHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		slug := viewapi.Slug(vars["plugin"], vars["key"], vars["version"])
		template, ok := h.Catalog.ResolveViewTemplate(slug)
		if !ok {
			writeError(w, http.StatusNotFound, "view not found")
			return
		}
		next(w, r, template)
	}
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.Catalog.ViewTemplates()})
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, _ *http.Request, template core.ViewTemplate) {
	writeJSON(w, http.StatusOK, map[string]any{"template": template.Descriptor()})
}

type parametersRequest struct {
	Parameters map[string]any `json:"parameters"`
}

type validationResponse struct {
	Template   core.ViewTemplateDescriptor `json:"template"`
	Valid      bool                        `json:"valid"`
	Parameters map[string]any              `json:"parameters"`
	Errors     []core.ViewParameterError   `json:"errors,omitempty"`
}

type runResponse struct {
	Template   core.ViewTemplateDescriptor `json:"template"`
	Parameters map[string]any              `json:"parameters"`
	Result     core.ViewRunResult          `json:"result"`
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request, template core.ViewTemplate) {
	var req parametersRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid validation request payload")
		return
	}
	cleaned, errs := template.ValidateParameters(req.Parameters)
	writeJSON(w, http.StatusOK, validationResponse{
		Template:   template.Descriptor(),
		Valid:      len(errs) == 0,
		Parameters: cleaned,
		Errors:     errs,
	})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request, template core.ViewTemplate) {
	var req parametersRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid run request payload")
		return
	}
	format := negotiateFormat(r, template.OutputFormats)
	if format == "" {
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
		return
	}
	descriptor := template.Descriptor()
	result, paramErrs, err := h.Catalog.RunView(r.Context(), descriptor.Slug, req.Parameters, format)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if len(paramErrs) > 0 {
		cleaned, _ := template.ValidateParameters(req.Parameters)
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Template:   descriptor,
			Parameters: cleaned,
			Errors:     paramErrs,
		})
		return
	}
	if format == core.FormatJSON {
		cleaned, _ := template.ValidateParameters(req.Parameters)
		writeJSON(w, http.StatusOK, runResponse{Template: descriptor, Parameters: cleaned, Result: result})
		return
	}
	rendered, err := Render(format, descriptor, result)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNothingToPlot) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	filename := fmt.Sprintf("%s-%s.%s", descriptor.Key, time.Now().UTC().Format("20060102T150405Z"), rendered.Extension)
	w.Header().Set("Content-Type", rendered.ContentType)
	if format != core.FormatHTML {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rendered.Payload)
}

type exportRequest struct {
	View struct {
		Slug    string `json:"slug"`
		Plugin  string `json:"plugin"`
		Key     string `json:"key"`
		Version string `json:"version"`
	} `json:"view"`
	Parameters  map[string]any `json:"parameters"`
	Formats     []string       `json:"formats"`
	RequestedBy string         `json:"requested_by"`
	Reason      string         `json:"reason"`
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	if h.Exports == nil {
		writeError(w, http.StatusNotFound, "exports not configured")
		return
	}
	var req exportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}
	slug := strings.TrimSpace(req.View.Slug)
	if slug == "" {
		if req.View.Plugin == "" || req.View.Key == "" || req.View.Version == "" {
			writeError(w, http.StatusBadRequest, "view slug or plugin/key/version required")
			return
		}
		slug = viewapi.Slug(req.View.Plugin, req.View.Key, req.View.Version)
	}
	formats := make([]core.ViewFormat, 0, len(req.Formats))
	for _, f := range req.Formats {
		format, ok := parseFormat(f)
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported export format "+f)
			return
		}
		formats = append(formats, format)
	}
	record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
		ViewSlug:    slug,
		Parameters:  req.Parameters,
		Formats:     formats,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
	})
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, core.ErrViewNotFound):
			status = http.StatusNotFound
		case errors.Is(err, ErrQueueFull):
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (h *Handler) handleExportGet(w http.ResponseWriter, r *http.Request) {
	if h.Exports == nil {
		writeError(w, http.StatusNotFound, "exports not configured")
		return
	}
	record, ok := h.Exports.GetExport(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if h.Exports == nil {
		writeError(w, http.StatusNotFound, "exports not configured")
		return
	}
	vars := mux.Vars(r)
	artifact, payload, err := h.Exports.OpenArtifact(r.Context(), vars["id"], vars["artifact"])
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("ETag", fmt.Sprintf("%q", fmt.Sprint(artifact.Metadata["etag"])))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func parseFormat(raw string) (core.ViewFormat, bool) {
	switch f := core.ViewFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case core.FormatJSON, core.FormatCSV, core.FormatHTML, core.FormatXLSX, core.FormatPNG:
		return f, true
	}
	return "", false
}

// negotiateFormat reads ?format= or the Accept header and returns "" when the
// view does not offer the format.
func negotiateFormat(r *http.Request, supported []core.ViewFormat) core.ViewFormat {
	wanted := r.URL.Query().Get("format")
	if wanted == "" {
		switch accept := r.Header.Get("Accept"); {
		case strings.Contains(accept, "text/csv"):
			wanted = string(core.FormatCSV)
		case strings.Contains(accept, "text/html"):
			wanted = string(core.FormatHTML)
		default:
			wanted = string(core.FormatJSON)
		}
	}
	format, ok := parseFormat(wanted)
	if !ok {
		return ""
	}
	for _, candidate := range supported {
		if candidate == format {
			return format
		}
	}
	return ""
}

// statusFor maps pipeline errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrViewNotFound), errors.Is(err, ErrExportNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSchema):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrEmptySelection), errors.Is(err, core.ErrInvalidReducer):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrBoundaryDataUnavailable), errors.Is(err, core.ErrInputMissing):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"crimestats/pkg/viewapi"
)

// DefaultCacheTTL bounds how long a view result is reused.
const DefaultCacheTTL = 5 * time.Minute

// ErrViewNotFound is returned for an unknown view slug.
var ErrViewNotFound = errors.New("view not found")

// Service owns the loaded dataset and the view catalog, and runs views with
// result caching, metrics and tracing.
type Service struct {
	mu      sync.RWMutex
	dataset *Dataset
	plugins map[string]PluginMetadata
	views   map[string]ViewTemplate
	cache   *cache.Cache
	metrics MetricsRecorder
	tracer  Tracer
	now     func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithCacheTTL sets the result cache lifetime; ttl <= 0 disables caching.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = cache.New(ttl, 2*ttl)
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a service over a loaded dataset.
func NewService(dataset *Dataset, opts ...ServiceOption) *Service {
	s := &Service{
		dataset: dataset,
		plugins: make(map[string]PluginMetadata),
		views:   make(map[string]ViewTemplate),
		cache:   cache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dataset returns the dataset views are bound to.
func (s *Service) Dataset() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

// InstallPlugin registers a plugin and binds its views to the dataset.
func (s *Service) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}
	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, err
	}
	env := ViewEnvironment{Dataset: s.dataset, Now: s.now}
	bound := make(map[string]ViewTemplate)
	descriptors := make([]ViewTemplateDescriptor, 0)
	for _, tpl := range registry.ViewTemplates() {
		tpl.Plugin = plugin.Name()
		slug := tpl.slug()
		if _, exists := s.views[slug]; exists {
			return PluginMetadata{}, fmt.Errorf("view template %s already registered", slug)
		}
		if err := tpl.bind(env); err != nil {
			return PluginMetadata{}, fmt.Errorf("bind view %s: %w", slug, err)
		}
		bound[slug] = tpl
		descriptors = append(descriptors, tpl.Descriptor())
	}
	for slug, tpl := range bound {
		s.views[slug] = tpl
	}
	meta := PluginMetadata{Name: plugin.Name(), Version: plugin.Version(), Views: descriptors}
	s.plugins[plugin.Name()] = meta
	return meta, nil
}

// RegisteredPlugins returns installed plugins ordered by name.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ViewTemplates lists installed views ordered by slug.
func (s *Service) ViewTemplates() []ViewTemplateDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ViewTemplateDescriptor, 0, len(s.views))
	for _, tpl := range s.views {
		out = append(out, tpl.Descriptor())
	}
	viewapi.SortTemplateDescriptors(out)
	return out
}

// ResolveViewTemplate looks a view up by plugin/key@version.
func (s *Service) ResolveViewTemplate(slug string) (ViewTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.views[slug]
	return tpl, ok
}

// RunView runs the view identified by slug. Parameter validation failures are
// returned as the second value with a nil error. Results are cached by slug
// and normalized parameters and must be treated as read-only.
func (s *Service) RunView(ctx context.Context, slug string, params map[string]any, format ViewFormat) (result ViewRunResult, paramErrs []ViewParameterError, err error) {
	operation := "view." + slug
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	defer func() {
		s.metrics.Observe(ctx, operation, err == nil && len(paramErrs) == 0, time.Since(start))
		span.End(err)
	}()

	tpl, ok := s.ResolveViewTemplate(slug)
	if !ok {
		return ViewRunResult{}, nil, fmt.Errorf("%w: %s", ErrViewNotFound, slug)
	}
	if !tpl.SupportsFormat(format) {
		return ViewRunResult{}, nil, fmt.Errorf("view %s does not support format %s", slug, format)
	}
	cleaned, paramErrs := tpl.ValidateParameters(params)
	if len(paramErrs) > 0 {
		return ViewRunResult{}, paramErrs, nil
	}
	key, cacheable := cacheKey(slug, cleaned)
	if cacheable && s.cache != nil {
		if cached, found := s.cache.Get(key); found {
			hit := cached.(ViewRunResult)
			hit.Format = format
			return hit, nil, nil
		}
	}
	result, paramErrs, err = tpl.Run(ctx, cleaned, format)
	if err != nil || len(paramErrs) > 0 {
		return ViewRunResult{}, paramErrs, err
	}
	if cacheable && s.cache != nil {
		s.cache.SetDefault(key, result)
	}
	return result, nil, nil
}

// FlushCache drops every cached view result.
func (s *Service) FlushCache() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

func cacheKey(slug string, params map[string]any) (string, bool) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", false
	}
	return slug + "|" + string(encoded), true
}

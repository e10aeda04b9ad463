package core

import (
	"context"
	"errors"
	"time"

	"crimestats/pkg/viewapi"
)

// ViewEnvironment is what a binder receives when its view is installed.
type ViewEnvironment struct {
	Dataset *Dataset
	Now     func() time.Time
}

// ViewBinder prepares a runner for one dataset.
type ViewBinder func(ViewEnvironment) (ViewRunner, error)

// ViewTemplate is a view contributed by a plugin plus its host-side runtime
// state.
type ViewTemplate struct {
	viewapi.Template
	Plugin string
	Binder ViewBinder

	host *viewapi.HostTemplate
}

// Descriptor returns a snapshot of the template metadata.
func (t ViewTemplate) Descriptor() ViewTemplateDescriptor {
	if host, err := t.hostOrNew(); err == nil {
		return host.Descriptor()
	}
	return ViewTemplateDescriptor{
		Plugin:        t.Plugin,
		Key:           t.Key,
		Version:       t.Version,
		Title:         t.Title,
		Description:   t.Description,
		Parameters:    t.Parameters,
		Columns:       viewapi.CloneColumns(t.Columns),
		OutputFormats: append([]ViewFormat(nil), t.OutputFormats...),
		Slug:          t.slug(),
	}
}

func (t ViewTemplate) SupportsFormat(format ViewFormat) bool {
	for _, candidate := range t.OutputFormats {
		if candidate == format {
			return true
		}
	}
	return false
}

func (t ViewTemplate) ValidateParameters(params map[string]any) (map[string]any, []ViewParameterError) {
	host, err := t.hostOrNew()
	if err != nil {
		return nil, []ViewParameterError{{Message: err.Error()}}
	}
	return host.ValidateParameters(params)
}

// Run validates parameters and executes the bound runner.
func (t ViewTemplate) Run(ctx context.Context, params map[string]any, format ViewFormat) (ViewRunResult, []ViewParameterError, error) {
	if t.host == nil {
		return ViewRunResult{}, nil, errors.New("view template not bound")
	}
	return t.host.Run(ctx, params, format)
}

func (t *ViewTemplate) bind(env ViewEnvironment) error {
	if t == nil {
		return errors.New("view template nil")
	}
	if t.Binder == nil {
		return errors.New("view template binder missing")
	}
	host, err := viewapi.NewHostTemplate(t.Plugin, t.Template)
	if err != nil {
		return err
	}
	runner, err := t.Binder(env)
	if err != nil {
		return err
	}
	if err := host.Bind(runner); err != nil {
		return err
	}
	t.host = &host
	return nil
}

func (t ViewTemplate) validate() error {
	if t.Binder == nil {
		return errors.New("view template binder required")
	}
	_, err := viewapi.NewHostTemplate(t.Plugin, t.Template)
	return err
}

func (t ViewTemplate) slug() string {
	return viewapi.Slug(t.Plugin, t.Key, t.Version)
}

func (t ViewTemplate) hostOrNew() (viewapi.HostTemplate, error) {
	if t.host != nil {
		return *t.host, nil
	}
	return viewapi.NewHostTemplate(t.Plugin, t.Template)
}

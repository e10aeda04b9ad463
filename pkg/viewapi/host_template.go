package viewapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HostTemplate pairs a Template with the plugin that contributed it and the
// runner bound by the host.
type HostTemplate struct {
	plugin  string
	tpl     Template
	runtime Runner
}

// NewHostTemplate validates the template structure. The returned template has
// no runner; callers attach one with Bind before running.
func NewHostTemplate(plugin string, tpl Template) (HostTemplate, error) {
	if err := validateTemplate(tpl); err != nil {
		return HostTemplate{}, err
	}
	return HostTemplate{plugin: strings.TrimSpace(plugin), tpl: CloneTemplate(tpl)}, nil
}

func (h HostTemplate) Plugin() string { return h.plugin }

// Template returns a copy of the underlying template metadata.
func (h HostTemplate) Template() Template { return CloneTemplate(h.tpl) }

// Descriptor produces a snapshot including plugin name and slug.
func (h HostTemplate) Descriptor() TemplateDescriptor {
	return TemplateDescriptor{
		Plugin:        h.plugin,
		Key:           h.tpl.Key,
		Version:       h.tpl.Version,
		Title:         h.tpl.Title,
		Description:   h.tpl.Description,
		Parameters:    cloneParameters(h.tpl.Parameters),
		Columns:       CloneColumns(h.tpl.Columns),
		Metadata:      cloneMetadata(h.tpl.Metadata),
		OutputFormats: cloneFormats(h.tpl.OutputFormats),
		Slug:          Slug(h.plugin, h.tpl.Key, h.tpl.Version),
	}
}

// Slug returns plugin/key@version.
func (h HostTemplate) Slug() string {
	return Slug(h.plugin, h.tpl.Key, h.tpl.Version)
}

func (h HostTemplate) SupportsFormat(format Format) bool {
	for _, candidate := range h.tpl.OutputFormats {
		if candidate == format {
			return true
		}
	}
	return false
}

// ValidateParameters returns normalized values plus any validation errors.
func (h HostTemplate) ValidateParameters(params map[string]any) (map[string]any, []ParameterError) {
	return validateParameters(h.tpl.Parameters, params)
}

// Bind attaches the runner used by Run.
func (h *HostTemplate) Bind(runner Runner) error {
	if h == nil {
		return errors.New("viewapi: host template nil")
	}
	if runner == nil {
		return errors.New("viewapi: binder returned nil runner")
	}
	h.runtime = runner
	return nil
}

// Bound reports whether a runner is attached.
func (h HostTemplate) Bound() bool { return h.runtime != nil }

// Run validates parameters and executes the bound runner.
func (h HostTemplate) Run(ctx context.Context, params map[string]any, format Format) (RunResult, []ParameterError, error) {
	if h.runtime == nil {
		return RunResult{}, nil, errors.New("viewapi: template not bound")
	}
	cleaned, errs := validateParameters(h.tpl.Parameters, params)
	if len(errs) > 0 {
		return RunResult{}, errs, nil
	}
	result, err := h.runtime(ctx, RunRequest{
		Template:   h.Descriptor(),
		Parameters: cleaned,
	})
	if err != nil {
		return RunResult{}, nil, err
	}
	if len(result.Schema) == 0 {
		result.Schema = CloneColumns(h.tpl.Columns)
	}
	result.GeneratedAt = result.GeneratedAt.UTC()
	result.Format = format
	return result, nil, nil
}

// SortTemplateDescriptors orders descriptors by plugin, key and version.
func SortTemplateDescriptors(descriptors []TemplateDescriptor) {
	if len(descriptors) < 2 {
		return
	}
	sort.Slice(descriptors, func(i, j int) bool {
		a := descriptors[i]
		b := descriptors[j]
		if a.Plugin == b.Plugin {
			if a.Key == b.Key {
				return a.Version < b.Version
			}
			return a.Key < b.Key
		}
		return a.Plugin < b.Plugin
	})
}

func validateTemplate(tpl Template) error {
	if strings.TrimSpace(tpl.Key) == "" {
		return errors.New("viewapi: view template key required")
	}
	if strings.TrimSpace(tpl.Version) == "" {
		return errors.New("viewapi: view template version required")
	}
	if strings.TrimSpace(tpl.Title) == "" {
		return errors.New("viewapi: view template title required")
	}
	if len(tpl.Columns) == 0 {
		return errors.New("viewapi: view template requires at least one column")
	}
	if len(tpl.OutputFormats) == 0 {
		return errors.New("viewapi: view template must declare output formats")
	}
	seen := make(map[string]struct{}, len(tpl.Parameters))
	for _, param := range tpl.Parameters {
		name := strings.ToLower(strings.TrimSpace(param.Name))
		if name == "" {
			return errors.New("viewapi: parameter name required")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("viewapi: parameter %s declared twice", param.Name)
		}
		seen[name] = struct{}{}
		if !knownType(param.Type) {
			return fmt.Errorf("viewapi: parameter %s has unsupported type %q", param.Name, param.Type)
		}
	}
	return nil
}

func knownType(t string) bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeStringList, TypeIntegerList:
		return true
	}
	return false
}

func validateParameters(definitions []Parameter, supplied map[string]any) (map[string]any, []ParameterError) {
	cleaned := make(map[string]any)
	var errs []ParameterError
	provided := make(map[string]struct{}, len(supplied))
	for k := range supplied {
		provided[strings.ToLower(k)] = struct{}{}
	}
	for _, param := range definitions {
		key := strings.ToLower(param.Name)
		val, ok := findParamValue(param.Name, supplied)
		if !ok {
			if param.Required {
				errs = append(errs, ParameterError{Name: param.Name, Message: "required parameter missing"})
				continue
			}
			if len(param.Default) > 0 {
				coerced, err := coerceDefaultParameter(param)
				if err != nil {
					errs = append(errs, ParameterError{Name: param.Name, Message: err.Error()})
					continue
				}
				cleaned[param.Name] = coerced
			}
			continue
		}
		delete(provided, key)
		coerced, err := coerceParameter(param, val)
		if err != nil {
			errs = append(errs, ParameterError{Name: param.Name, Message: err.Error()})
			continue
		}
		cleaned[param.Name] = coerced
	}
	for leftover := range provided {
		errs = append(errs, ParameterError{Name: leftover, Message: "parameter not declared"})
	}
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Name < errs[j].Name })
	}
	return cleaned, errs
}

func coerceDefaultParameter(param Parameter) (any, error) {
	var raw any
	if err := json.Unmarshal(param.Default, &raw); err != nil {
		return nil, fmt.Errorf("parameter %s default is invalid JSON: %w", param.Name, err)
	}
	return coerceParameter(param, raw)
}

func findParamValue(name string, supplied map[string]any) (any, bool) {
	if supplied == nil {
		return nil, false
	}
	if val, ok := supplied[name]; ok {
		return val, true
	}
	lower := strings.ToLower(name)
	for k, v := range supplied {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	return nil, false
}

func coerceParameter(param Parameter, raw any) (any, error) {
	if raw == nil {
		return nil, fmt.Errorf("parameter %s cannot be null", param.Name)
	}
	switch param.Type {
	case TypeString:
		v, err := coerceString(param, raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	case TypeInteger:
		v, err := coerceInteger(param, raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	case TypeNumber:
		switch v := raw.(type) {
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("parameter %s expects number", param.Name)
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("parameter %s expects number", param.Name)
		}
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("parameter %s expects boolean", param.Name)
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("parameter %s expects boolean", param.Name)
		}
	case TypeStringList:
		items, err := listItems(param, raw)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			v, err := coerceString(param, item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case TypeIntegerList:
		items, err := listItems(param, raw)
		if err != nil {
			return nil, err
		}
		out := make([]int, 0, len(items))
		for _, item := range items {
			v, err := coerceInteger(param, item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", param.Type)
	}
}

func coerceString(param Parameter, raw any) (string, error) {
	var val string
	switch v := raw.(type) {
	case string:
		val = v
	case fmt.Stringer:
		val = v.String()
	default:
		return "", fmt.Errorf("parameter %s expects string", param.Name)
	}
	if len(param.Enum) > 0 && !containsString(param.Enum, val) {
		return "", enumError(param.Enum)
	}
	return val, nil
}

func coerceInteger(param Parameter, raw any) (int, error) {
	var val int
	switch v := raw.(type) {
	case int:
		val = v
	case int64:
		val = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("parameter %s expects integer", param.Name)
		}
		val = int(v)
	case json.Number:
		parsed, err := strconv.Atoi(v.String())
		if err != nil {
			return 0, fmt.Errorf("parameter %s expects integer", param.Name)
		}
		val = parsed
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("parameter %s expects integer", param.Name)
		}
		val = parsed
	default:
		return 0, fmt.Errorf("parameter %s expects integer", param.Name)
	}
	if len(param.Enum) > 0 && !containsString(param.Enum, strconv.Itoa(val)) {
		return 0, enumError(param.Enum)
	}
	return val, nil
}

// listItems accepts JSON arrays, typed slices, and comma separated strings
// (the form query strings and CLI flags produce).
func listItems(param Parameter, raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, nil
	case []int:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []any{}, nil
		}
		parts := strings.Split(v, ",")
		out := make([]any, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %s expects a list", param.Name)
	}
}

func containsString(list []string, target string) bool {
	for _, candidate := range list {
		if candidate == target {
			return true
		}
	}
	return false
}

func enumError(options []string) error {
	if len(options) == 0 {
		return errors.New("invalid enumeration")
	}
	return fmt.Errorf("value must be one of: %s", strings.Join(options, ", "))
}

// Slug builds the canonical plugin/key@version identifier.
func Slug(plugin, key, version string) string {
	keyPart := strings.TrimSpace(key)
	versionPart := strings.TrimSpace(version)
	if plugin = strings.TrimSpace(plugin); plugin == "" {
		return fmt.Sprintf("%s@%s", keyPart, versionPart)
	}
	return fmt.Sprintf("%s/%s@%s", plugin, keyPart, versionPart)
}

func CloneTemplate(t Template) Template {
	cloned := t
	cloned.Parameters = cloneParameters(t.Parameters)
	cloned.Columns = CloneColumns(t.Columns)
	cloned.Metadata = cloneMetadata(t.Metadata)
	cloned.OutputFormats = cloneFormats(t.OutputFormats)
	return cloned
}

func cloneParameters(params []Parameter) []Parameter {
	if len(params) == 0 {
		return nil
	}
	cloned := make([]Parameter, len(params))
	copy(cloned, params)
	for i := range cloned {
		if len(cloned[i].Example) > 0 {
			cloned[i].Example = append(json.RawMessage(nil), cloned[i].Example...)
		}
		if len(cloned[i].Default) > 0 {
			cloned[i].Default = append(json.RawMessage(nil), cloned[i].Default...)
		}
		if len(cloned[i].Enum) > 0 {
			cloned[i].Enum = append([]string(nil), cloned[i].Enum...)
		}
	}
	return cloned
}

func CloneColumns(columns []Column) []Column {
	if len(columns) == 0 {
		return nil
	}
	cloned := make([]Column, len(columns))
	copy(cloned, columns)
	return cloned
}

func cloneFormats(formats []Format) []Format {
	if len(formats) == 0 {
		return nil
	}
	cloned := make([]Format, len(formats))
	copy(cloned, formats)
	return cloned
}

func cloneMetadata(metadata Metadata) Metadata {
	cloned := metadata
	if len(metadata.Tags) > 0 {
		cloned.Tags = append([]string(nil), metadata.Tags...)
	}
	if len(metadata.Annotations) > 0 {
		cloned.Annotations = make(map[string]string, len(metadata.Annotations))
		for k, v := range metadata.Annotations {
			cloned.Annotations[k] = v
		}
	}
	return cloned
}

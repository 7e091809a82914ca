package tools

import (
	"context"
	"time"
)

// ParamDef describes a single parameter advertised to the model.
// The JSON form is the per-property object inside a tool's "parameters" schema.
type ParamDef struct {
	Name        string   `json:"-"`
	Type        string   `json:"type,omitempty"` // empty means any JSON value
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Format      string   `json:"format,omitempty"`
}

// Schema is the ordered parameter list of one tool.
type Schema []ParamDef

// Lookup returns the definition of the named parameter.
func (s Schema) Lookup(name string) (ParamDef, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return ParamDef{}, false
}

// JSONSchema renders the schema as a JSON Schema object.
func (s Schema) JSONSchema(required []string) map[string]any {
	props := make(map[string]any, len(s))
	for _, p := range s {
		props[p.Name] = p
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = append([]string(nil), required...)
	}
	return out
}

func (s Schema) clone() Schema {
	if s == nil {
		return nil
	}
	out := make(Schema, len(s))
	for i, p := range s {
		if p.Enum != nil {
			p.Enum = append([]any(nil), p.Enum...)
		}
		out[i] = p
	}
	return out
}

// HandlerFunc is the normalized form every bound operation is reduced to.
// caller is the injected request context, nil when the tool does not need one.
type HandlerFunc func(ctx context.Context, caller any, args map[string]any) (any, error)

// Descriptor is the static record for one registered operation.
//
// Params and Required may be left nil; the registry then derives them from
// the handler's argument struct. NeedsContext and ContextParam are filled in
// at registration and never change afterwards.
type Descriptor struct {
	Name        string
	Description string
	Params      Schema
	Required    []string
	Handler     Handler

	NeedsContext bool
	ContextParam string
}

func (d Descriptor) clone() Descriptor {
	d.Params = d.Params.clone()
	if d.Required != nil {
		d.Required = append([]string(nil), d.Required...)
	}
	return d
}

// CatalogEntry is one tool as advertised to the language model.
type CatalogEntry struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec is the "function" member of a CatalogEntry.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Required    []string       `json:"required"`
}

// ToolLogEntry captures one tool invocation for the audit trail.
type ToolLogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	RequestID  string         `json:"request_id,omitempty"`
	ToolName   string         `json:"tool_name"`
	Params     map[string]any `json:"params"`
	IsError    bool           `json:"is_error"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

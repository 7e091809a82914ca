package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DefaultContextParam is the argument name the caller context is injected under.
const DefaultContextParam = "req"

// Registry owns the set of tool descriptors. It is built at startup, sealed,
// and then only read, so lookups from concurrent requests are safe.
type Registry struct {
	mu           sync.RWMutex
	order        []string
	byName       map[string]*Descriptor
	namespace    string
	contextParam string
	sealed       bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithNamespace qualifies every registered name with prefix (e.g. "function.").
// Lookups accept both the bare and the qualified form.
func WithNamespace(prefix string) Option {
	return func(r *Registry) { r.namespace = prefix }
}

// WithContextParam overrides the argument name used for caller injection.
func WithContextParam(name string) Option {
	return func(r *Registry) {
		if name != "" {
			r.contextParam = name
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byName:       make(map[string]*Descriptor),
		contextParam: DefaultContextParam,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a descriptor. The schema is derived from the handler's
// argument struct when Params is nil. A name already present fails with
// *DuplicateNameError and leaves the existing entry untouched.
func (r *Registry) Register(d Descriptor) error {
	d = d.clone()
	d.Name = r.qualify(strings.TrimSpace(d.Name))
	if d.Name == r.namespace {
		return errors.New("tools: descriptor has no name")
	}
	if d.Handler.IsZero() {
		return fmt.Errorf("tools: %s: no handler bound", d.Name)
	}

	if d.Params == nil {
		d.Params = Schema{}
		if d.Handler.argsType != nil {
			params, required, err := SchemaFor(d.Handler.argsType)
			if err != nil {
				return fmt.Errorf("tools: %s: %w", d.Name, err)
			}
			d.Params = params
			if d.Required == nil {
				d.Required = required
			}
		}
	}
	if d.Required == nil {
		d.Required = []string{}
	}
	for _, name := range d.Required {
		if _, ok := d.Params.Lookup(name); !ok {
			return fmt.Errorf("tools: %s: required parameter %q is not declared", d.Name, name)
		}
	}

	d.NeedsContext = d.Handler.needsCaller
	d.ContextParam = ""
	if d.NeedsContext {
		if _, clash := d.Params.Lookup(r.contextParam); clash {
			return fmt.Errorf("tools: %s: parameter %q is reserved for the caller context", d.Name, r.contextParam)
		}
		d.ContextParam = r.contextParam
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrSealed
	}
	if _, exists := r.byName[d.Name]; exists {
		return &DuplicateNameError{Name: d.Name}
	}
	r.byName[d.Name] = &d
	r.order = append(r.order, d.Name)
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Seal stops further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Namespace returns the prefix applied to registered names.
func (r *Registry) Namespace() string { return r.namespace }

// ContextParam returns the argument name used for caller injection.
func (r *Registry) ContextParam() string { return r.contextParam }

// Catalog returns every tool in registration order, in the shape
// advertised to the language model.
func (r *Registry) Catalog() []CatalogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CatalogEntry, 0, len(r.order))
	for _, name := range r.order {
		d := r.byName[name]
		out = append(out, CatalogEntry{
			Type: "function",
			Function: FunctionSpec{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Params.JSONSchema(d.Required),
				Required:    append([]string{}, d.Required...),
			},
		})
	}
	return out
}

// Describe returns the description of the named tool.
func (r *Registry) Describe(name string) (string, bool) {
	d, ok := r.Descriptor(name)
	if !ok {
		return "", false
	}
	return d.Description, true
}

// Descriptor returns a copy of the named descriptor.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return d.clone(), true
}

// Resolve maps a model-supplied name to a registered one. An exact match
// wins; otherwise the namespace is added or removed and the lookup retried.
func (r *Registry) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name = strings.TrimSpace(name)
	if _, ok := r.byName[name]; ok {
		return name, true
	}
	if r.namespace == "" {
		return "", false
	}
	if q := r.namespace + name; !strings.HasPrefix(name, r.namespace) {
		if _, ok := r.byName[q]; ok {
			return q, true
		}
		return "", false
	}
	if bare := strings.TrimPrefix(name, r.namespace); bare != "" {
		if _, ok := r.byName[bare]; ok {
			return bare, true
		}
	}
	return "", false
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Invoke calls the named tool. name must be the registered form; use
// Resolve first for model-supplied names. When the tool needs the caller
// context it is taken from args under ContextParam and never passed on
// as a regular argument. args itself is not modified.
//
// Failures are *UnknownToolError or *InvocationError; a panicking handler
// is recovered into the latter.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result any, err error) {
	r.mu.RLock()
	d, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	call := make(map[string]any, len(args))
	var caller any
	for k, v := range args {
		if d.NeedsContext && k == d.ContextParam {
			caller = v
			continue
		}
		call[k] = v
	}

	applyDefaults(d.Params, call)
	if err := checkRequired(d.Required, call); err != nil {
		return nil, &InvocationError{Tool: d.Name, Err: err}
	}
	if err := coerceArgs(d.Params, call); err != nil {
		return nil, &InvocationError{Tool: d.Name, Err: err}
	}
	if err := checkConstraints(d.Params, call); err != nil {
		return nil, &InvocationError{Tool: d.Name, Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = &InvocationError{Tool: d.Name, Err: fmt.Errorf("handler panicked: %v", p)}
		}
	}()

	result, err = d.Handler.fn(ctx, caller, call)
	if err != nil {
		return nil, &InvocationError{Tool: d.Name, Err: err}
	}
	return result, nil
}

func (r *Registry) qualify(name string) string {
	if r.namespace == "" || strings.HasPrefix(name, r.namespace) {
		return name
	}
	return r.namespace + name
}

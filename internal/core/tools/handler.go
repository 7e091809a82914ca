package tools

import (
	"context"
	"fmt"
	"reflect"
)

// Handler is a bound operation plus what the registry needs to know about
// it: the argument struct it decodes into and whether it takes the caller.
// Build one with Bind, BindCaller or BindMap.
type Handler struct {
	fn          HandlerFunc
	argsType    reflect.Type
	needsCaller bool
}

// IsZero reports whether the handler was never bound.
func (h Handler) IsZero() bool { return h.fn == nil }

// Bind adapts fn so it can be invoked with a JSON-style argument map.
// Arguments are decoded into A by their json names; names A does not
// declare are rejected.
func Bind[A, R any](fn func(ctx context.Context, args A) (R, error)) Handler {
	return Handler{
		argsType: reflect.TypeFor[A](),
		fn: func(ctx context.Context, _ any, raw map[string]any) (any, error) {
			var args A
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			return fn(ctx, args)
		},
	}
}

// BindCaller is Bind for operations that also need the request's caller
// context. The registry marks such tools so the dispatcher injects it.
func BindCaller[C, A, R any](fn func(ctx context.Context, caller C, args A) (R, error)) Handler {
	return Handler{
		argsType:    reflect.TypeFor[A](),
		needsCaller: true,
		fn: func(ctx context.Context, caller any, raw map[string]any) (any, error) {
			c, ok := caller.(C)
			if !ok {
				return nil, fmt.Errorf("caller context missing or of type %T", caller)
			}
			var args A
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			return fn(ctx, c, args)
		},
	}
}

// BindMap wraps a handler that takes the raw argument map. Without an
// explicit schema its parameters are advertised as an open object.
func BindMap(fn func(ctx context.Context, args map[string]any) (any, error)) Handler {
	return Handler{
		fn: func(ctx context.Context, _ any, raw map[string]any) (any, error) {
			return fn(ctx, raw)
		},
	}
}

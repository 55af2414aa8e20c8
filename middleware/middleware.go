// Package middleware implements the onion model handler chain wrapped around
// server-side dispatch.
//
// A middleware decorates the dispatch handler to add cross-cutting concerns
// (logging, admission control) without touching dispatch itself.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
//
// Each middleware can pre-process, call next, post-process, or short-circuit
// by returning without calling next.
package middleware

import (
	"context"
	"encoding/json"

	"srpc/errs"
)

// Request is one inbound call as seen by the chain: the addressed service
// and method plus the still-encoded positional argument array.
type Request struct {
	Service string
	Method  string
	Seq     uint64
	Args    json.RawMessage
}

// Response carries the dispatch outcome back through the chain. Exactly one
// of Result and Err is meaningful: Err nil means success.
type Response struct {
	Result any
	Err    *errs.Error
}

// HandlerFunc is the shared signature of the dispatch handler and every
// middleware-wrapped handler.
type HandlerFunc func(ctx context.Context, req *Request) *Response

// Middleware takes a handler and returns a new handler wrapping it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. It builds from right to left so the
// first middleware in the list is the outermost layer, executed first on the
// way in, last on the way out.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

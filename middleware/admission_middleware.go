package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"srpc/errs"
)

// Admission rejects calls beyond a token-bucket budget.
//
// Tokens refill at r per second up to burst. Each call consumes one token;
// an empty bucket short-circuits the chain with an Other error instead of
// invoking the method.
//
// The limiter lives in the outer closure so every call shares one bucket.
// Creating it per call would hand each request a full bucket of its own.
func Admission(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) *Response {
			if !limiter.Allow() {
				return &Response{
					Err: errs.New(errs.Other, "server is over capacity"),
				}
			}
			return next(ctx, req)
		}
	}
}

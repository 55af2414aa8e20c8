package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Logging records the target, duration and outcome of every call passing
// through the chain.
func Logging(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) *Response {
			start := time.Now()

			resp := next(ctx, req)

			fields := []zap.Field{
				zap.String("service", req.Service),
				zap.String("method", req.Method),
				zap.Uint64("seq", req.Seq),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Err != nil {
				log.Warn("call failed", append(fields, zap.String("error", resp.Err.Error()))...)
			} else {
				log.Info("call served", fields...)
			}
			return resp
		}
	}
}

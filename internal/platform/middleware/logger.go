package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger writes one access log line per request. Errors are rendered
// through the echo error handler first so the line records the status the
// client actually received; the handler then returns nil.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			res := c.Response()
			level := zerolog.InfoLevel
			if res.Status >= 500 {
				level = zerolog.ErrorLevel
			} else if res.Status >= 400 {
				level = zerolog.WarnLevel
			}

			req := c.Request()
			evt := logger.WithLevel(level).
				Str("request_id", GetRequestID(c)).
				Str("method", req.Method).
				Str("route", c.Path()).
				Str("uri", req.RequestURI).
				Int("status", res.Status).
				Int64("bytes_out", res.Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if err != nil {
				evt = evt.Err(err)
			}
			evt.Msg("request")
			return nil
		}
	}
}

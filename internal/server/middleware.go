package server

import (
	notevault "github.com/MrEthical07/notevault"
	"github.com/MrEthical07/notevault/internal/logging"
	"github.com/MrEthical07/notevault/middleware"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// clientContext copies the caller address and user agent onto the request
// context, where the engine reads them for throttles, audit and login
// notices.
func clientContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := notevault.WithClientIP(req.Context(), c.RealIP())
			ctx = notevault.WithUserAgent(ctx, req.UserAgent())
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := zapcore.InfoLevel
			switch {
			case v.Status >= 500:
				level = zapcore.ErrorLevel
			case v.Status >= 400:
				level = zapcore.WarnLevel
			}
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			}
			if id := logging.UserIDFromContext(c.Request().Context()); id != "" {
				fields = append(fields, zap.String("user_id", id))
			}
			if ce := s.log.Check(level, "request"); ce != nil {
				ce.Write(fields...)
			}
			return nil
		},
	})
}

// requireAuth admits requests with a valid access token and records the
// user on the request context. A rejected access cookie is expired.
func (s *Server) requireAuth() echo.MiddlewareFunc {
	guard := echo.WrapMiddleware(middleware.GuardWithCookies(s.engine, s.cookies))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return guard(func(c echo.Context) error {
			res, ok := middleware.AuthResultFromContext(c.Request().Context())
			if !ok {
				return notevault.ErrTokenMissing
			}
			ctx := logging.WithUserID(c.Request().Context(), res.UserID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		})
	}
}

func userID(c echo.Context) string {
	res, ok := middleware.AuthResultFromContext(c.Request().Context())
	if !ok {
		return ""
	}
	return res.UserID
}

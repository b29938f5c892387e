// Package server exposes the auth engine and the encrypted notes store over
// a JSON HTTP API built on echo.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	notevault "github.com/MrEthical07/notevault"
	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/MrEthical07/notevault/middleware"
	"github.com/MrEthical07/notevault/password"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Engine is the part of [notevault.Engine] the handlers call.
type Engine interface {
	middleware.Validator
	Signup(ctx context.Context, req notevault.SignupRequest) (*notevault.SignupResult, error)
	VerifyMFA(ctx context.Context, setupToken, code string) (*notevault.VerifyMFAResult, error)
	Login(ctx context.Context, email, password, mfaCode string) (*notevault.LoginResult, error)
	CompleteLoginMFA(ctx context.Context, tempToken, code string) (*notevault.LoginResult, error)
	LoginWithBackupCode(ctx context.Context, tempToken, code string) (*notevault.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*notevault.RefreshResult, error)
	Me(ctx context.Context, userID string) (*notevault.User, error)
	Logout(ctx context.Context, accessToken, refreshToken string)
	SetEncryptionSalt(ctx context.Context, userID, salt string) (*notevault.User, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options configures a Server. Engine and Notes are required.
type Options struct {
	Engine Engine
	Notes  *notes.Service
	Logger *zap.Logger

	// Policy is the password rule behind the strongpassword tag. The zero
	// value falls back to password.DefaultPolicy.
	Policy  password.Policy
	Cookies middleware.CookieOptions
	// AllowedOrigins lists the browser origins allowed to send credentials.
	AllowedOrigins []string

	// Metrics is mounted at GET /metrics when set.
	Metrics      http.Handler
	HealthChecks map[string]HealthCheck

	Now func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	engine  Engine
	notes   *notes.Service
	log     *zap.Logger
	cookies middleware.CookieOptions
	checks  map[string]HealthCheck
	now     func() time.Time

	echo *echo.Echo
}

// New builds a Server and its route table.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if opts.Notes == nil {
		return nil, errors.New("server: notes service is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	policy := opts.Policy
	if policy == (password.Policy{}) {
		policy = password.DefaultPolicy()
	}

	s := &Server{
		engine:  opts.Engine,
		notes:   opts.Notes,
		log:     opts.Logger.Named("http"),
		cookies: opts.Cookies,
		checks:  opts.HealthChecks,
		now:     opts.Now,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	rv, err := newRequestValidator(policy)
	if err != nil {
		return nil, err
	}
	e.Validator = rv
	e.HTTPErrorHandler = s.errorHandler

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := notevault.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	}))
	e.Use(clientContext())
	e.Use(s.requestLogger())
	e.Use(echomw.Recover())
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		XFrameOptions:         "DENY",
		ContentTypeNosniff:    "nosniff",
		XSSProtection:         "1; mode=block",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	}))
	if len(opts.AllowedOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     opts.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	e.Use(echomw.BodyLimit("2M"))

	e.GET("/health", s.health)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	api := e.Group("/api")
	s.bindAuth(api.Group("/auth"))
	s.bindNotes(api.Group("/notes", s.requireAuth()))

	s.echo = e
	return s, nil
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Echo returns the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = "down"
			s.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		checks[name] = "up"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	return c.JSON(status, echo.Map{"status": state, "checks": checks})
}

// Package api exposes classification and workflow retrieval over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xrsl/solvx/pkg/enrich"
	clog "github.com/xrsl/solvx/pkg/log"
	"github.com/xrsl/solvx/pkg/match"
	"github.com/xrsl/solvx/pkg/workflow"
)

// Profile names accepted by the match and enrich endpoints.
const (
	ProfileConversation = "conversation"
	ProfileDocument     = "document"
	ProfileSearch       = "search"
)

// Classifier is satisfied by *classify.Classifier. ClassifyOrDefault bounds
// the provider call by the classifier's timeout.
type Classifier interface {
	ClassifyOrDefault(ctx context.Context, problem string) (workflow.Classification, bool)
}

type Matcher interface {
	Match(ctx context.Context, problem string, domains []workflow.Domain, p match.Profile) []workflow.Match
}

type Enricher interface {
	Enrich(ctx context.Context, problem string, p match.Profile) enrich.Result
}

// Stats is the read-only part of corpus.Store used by the status endpoint.
type Stats interface {
	Count(ctx context.Context) (int, error)
	CountByDomain(ctx context.Context) (map[workflow.Domain]int, error)
	CountEmbedded(ctx context.Context) (int, error)
}

// Deps holds the components served by the API.
type Deps struct {
	Classifier Classifier
	Matcher    Matcher
	Enricher   Enricher
	Stats      Stats
	// Profiles maps profile names to thresholds. Missing entries fall back
	// to the built-in defaults.
	Profiles map[string]match.Profile
	Logger   *slog.Logger
}

// Server holds the dependencies for the API server.
type Server struct {
	Deps
	echo *echo.Echo
}

// DefaultProfiles are the thresholds used when Deps.Profiles omits a name.
func DefaultProfiles() map[string]match.Profile {
	return map[string]match.Profile{
		ProfileConversation: {Threshold: 0.65, Limit: 3},
		ProfileDocument:     {Threshold: 0.65, Limit: 4},
		ProfileSearch:       {Threshold: 0.70, Limit: 3},
	}
}

// NewServer creates a Server and registers its routes.
func NewServer(d Deps) *Server {
	profiles := DefaultProfiles()
	for name, p := range d.Profiles {
		profiles[name] = p
	}
	d.Profiles = profiles
	d.Logger = clog.Component(d.Logger, "api")

	s := &Server{Deps: d, echo: echo.New()}
	s.routes()
	return s
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	if err := rv.v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		switch f.Tag() {
		case "required", "notblank":
			return f.Field() + " is required"
		default:
			return "invalid " + f.Field()
		}
	}
	return err.Error()
}

func (s *Server) routes() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: newValidator()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "request_id", v.RequestID}
			if v.Error != nil {
				s.Logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			s.Logger.Info("request", attrs...)
			return nil
		},
	}))

	e.GET("/health", s.Health)

	g := e.Group("/api")
	g.POST("/classify", s.Classify)
	g.POST("/enrich", s.Enrich)
	g.POST("/workflows/search", s.SearchWorkflows)
	g.POST("/workflows/match", s.MatchWorkflows)
	g.GET("/workflows/status", s.Status)
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.echo,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("server starting", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.Logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

package api

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/xrsl/solvx/pkg/match"
	"github.com/xrsl/solvx/pkg/workflow"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

type problemRequest struct {
	Problem string `json:"problem" validate:"notblank,max=8000"`
}

type searchRequest struct {
	Problem string   `json:"problem" validate:"notblank,max=8000"`
	Domains []string `json:"domains" validate:"omitempty,dive,notblank"`
	Limit   int      `json:"limit" validate:"omitempty,min=1,max=20"`
}

type matchRequest struct {
	Problem string   `json:"problem" validate:"notblank,max=8000"`
	Domains []string `json:"domains" validate:"omitempty,dive,notblank"`
	Profile string   `json:"profile" validate:"omitempty,oneof=conversation document search"`
}

type enrichRequest struct {
	Problem string `json:"problem" validate:"notblank,max=8000"`
	Profile string `json:"profile" validate:"omitempty,oneof=conversation document search"`
}

type classifyResponse struct {
	workflow.Classification
	Fallback bool `json:"fallback"`
}

type workflowsResponse struct {
	Workflows []workflow.Match `json:"workflows"`
	Count     int              `json:"count"`
}

type statusResponse struct {
	Total    int                     `json:"total"`
	ByDomain map[workflow.Domain]int `json:"by_domain"`
	Embedded int                     `json:"embedded"`
	Ready    bool                    `json:"ready"`
	Message  string                  `json:"message"`
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return c.Validate(req)
}

// Health reports liveness
// (GET /health)
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Classify maps a problem onto the taxonomy. A failed or timed out
// classification is answered with the default classification and fallback
// set.
// (POST /api/classify)
func (s *Server) Classify(c echo.Context) error {
	var req problemRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	cls, ok := s.Classifier.ClassifyOrDefault(c.Request().Context(), req.Problem)
	return c.JSON(http.StatusOK, classifyResponse{Classification: cls, Fallback: !ok})
}

// SearchWorkflows runs a direct workflow search with the search profile.
// (POST /api/workflows/search)
func (s *Server) SearchWorkflows(c echo.Context) error {
	var req searchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	domains, err := workflow.ParseDomains(req.Domains)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p := s.Profiles[ProfileSearch]
	if req.Limit > 0 {
		p.Limit = req.Limit
	}
	return s.respondMatches(c, req.Problem, domains, p)
}

// MatchWorkflows finds workflows for a conversation or document.
// (POST /api/workflows/match)
func (s *Server) MatchWorkflows(c echo.Context) error {
	var req matchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	domains, err := workflow.ParseDomains(req.Domains)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return s.respondMatches(c, req.Problem, domains, s.profile(req.Profile, ProfileConversation))
}

func (s *Server) respondMatches(c echo.Context, problem string, domains []workflow.Domain, p match.Profile) error {
	matches := s.Matcher.Match(c.Request().Context(), problem, domains, p)
	return c.JSON(http.StatusOK, workflowsResponse{Workflows: matches, Count: len(matches)})
}

// Enrich classifies a problem and retrieves workflows in its domains.
// (POST /api/enrich)
func (s *Server) Enrich(c echo.Context) error {
	var req enrichRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res := s.Enricher.Enrich(c.Request().Context(), req.Problem, s.profile(req.Profile, ProfileDocument))
	return c.JSON(http.StatusOK, res)
}

// Status reports corpus counts and whether search can return results.
// (GET /api/workflows/status)
func (s *Server) Status(c echo.Context) error {
	ctx := c.Request().Context()

	total, err := s.Stats.Count(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "corpus unavailable")
	}
	byDomain, err := s.Stats.CountByDomain(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "corpus unavailable")
	}
	embedded, err := s.Stats.CountEmbedded(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "corpus unavailable")
	}

	resp := statusResponse{Total: total, ByDomain: byDomain, Embedded: embedded, Ready: embedded > 0}
	switch {
	case total == 0:
		resp.Message = "corpus is empty; run the ingestion pipeline"
	case embedded == 0:
		resp.Message = "no workflow has an embedding; run the embed stage"
	case embedded < total:
		resp.Message = "some workflows have no embedding and will not match"
	default:
		resp.Message = "ready"
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) profile(name, fallback string) match.Profile {
	if name == "" {
		name = fallback
	}
	if p, ok := s.Profiles[name]; ok {
		return p
	}
	return s.Profiles[fallback]
}

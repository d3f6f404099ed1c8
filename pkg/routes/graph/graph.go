package graph

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/laurel/pkg/context"
	graphpkg "github.com/Ramsey-B/laurel/pkg/graph"
)

// Handler handles graph query API endpoints
type Handler struct {
	queryService *graphpkg.QueryService
	logger       ectologger.Logger
}

// NewHandler creates a new graph handler
func NewHandler(queryService *graphpkg.QueryService, logger ectologger.Logger) *Handler {
	return &Handler{
		queryService: queryService,
		logger:       logger,
	}
}

// Register registers the graph routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/query", h.ExecuteQuery)
	g.GET("/cases/:id/network", h.CaseNetwork)
	g.GET("/cases/:id/shared-parties", h.SharedParties)
}

func (h *Handler) requireQueryService(c echo.Context) (*graphpkg.QueryService, error) {
	// Prefer explicitly provided service (useful for tests), but fall back to
	// DI-from-context, the standard pattern used elsewhere.
	if h != nil && h.queryService != nil {
		return h.queryService, nil
	}

	ctx := c.Request().Context()
	_, svc, err := ectoinject.GetContext[*graphpkg.QueryService](ctx)
	if err != nil || svc == nil {
		// 503 because this is an optional dependency (graph DB can be disabled).
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "graph query service unavailable")
	}
	return svc, nil
}

// QueryRequest is the request body for executing a Cypher query
type QueryRequest struct {
	Query  string         `json:"query" validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// ExecuteQuery executes a read-only Cypher query
// @Summary Execute a Cypher query
// @Description Run a read-only OpenCypher query against the graph database
// @Tags Graph
// @Accept json
// @Produce json
// @Param body body QueryRequest true "Query request"
// @Success 200 {object} graphpkg.QueryResult
// @Failure 400 {object} httperror.HTTPError
// @Failure 500 {object} httperror.HTTPError
// @Router /api/v1/graph/query [post]
func (h *Handler) ExecuteQuery(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	qs, err := h.requireQueryService(c)
	if err != nil {
		return err
	}

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Query == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	result, err := qs.ExecuteQuery(ctx, tenantID, req.Query, req.Params)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// CaseNetwork returns a case with all its connected entities
// @Summary Case network
// @Description Return a case node with every party, charge, and evidence item connected to it
// @Tags Graph
// @Produce json
// @Param id path string true "Case ID"
// @Success 200 {object} graphpkg.QueryResult
// @Failure 503 {object} httperror.HTTPError
// @Router /api/v1/graph/cases/{id}/network [get]
func (h *Handler) CaseNetwork(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	qs, err := h.requireQueryService(c)
	if err != nil {
		return err
	}

	caseID := c.Param("id")
	if caseID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "case id is required")
	}

	result, err := qs.CaseNetwork(ctx, tenantID, caseID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// SharedParties finds cases sharing a party with the given case
// @Summary Shared parties
// @Description Find cases that share at least one party with the given case
// @Tags Graph
// @Produce json
// @Param id path string true "Case ID"
// @Success 200 {object} graphpkg.QueryResult
// @Failure 503 {object} httperror.HTTPError
// @Router /api/v1/graph/cases/{id}/shared-parties [get]
func (h *Handler) SharedParties(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	qs, err := h.requireQueryService(c)
	if err != nil {
		return err
	}

	caseID := c.Param("id")
	if caseID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "case id is required")
	}

	result, err := qs.SharedParties(ctx, tenantID, caseID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Package cases exposes the case query API.
package cases

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	caserepo "github.com/Ramsey-B/laurel/internal/repositories/cases"
	"github.com/Ramsey-B/laurel/internal/repositories/canonicalentity"
	"github.com/Ramsey-B/laurel/internal/repositories/caselink"
	"github.com/Ramsey-B/laurel/internal/repositories/doclink"
	"github.com/Ramsey-B/laurel/internal/repositories/mergehistory"
	"github.com/Ramsey-B/laurel/pkg/context"
	"github.com/Ramsey-B/laurel/pkg/models"
)

// Register registers case routes
func Register(g *echo.Group) {
	g.GET("", ListCases)
	g.GET("/:id", GetCase)
	g.GET("/:id/entities", ListCaseEntities)
	g.GET("/:id/documents", ListCaseDocuments)
	g.GET("/:id/history", ListCaseHistory)
	g.PUT("/:id/status", UpdateCaseStatus)
}

// ListCases lists cases with optional is_orphan and status filters. When
// reference_type and reference are given it is an exact lookup instead.
func ListCases(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	if refValue := c.QueryParam("reference"); refValue != "" {
		refType := models.ReferenceType(c.QueryParam("reference_type"))
		switch refType {
		case models.ReferenceTypeCourt, models.ReferenceTypeProsecution,
			models.ReferenceTypePolice, models.ReferenceTypeInternal:
		default:
			return httperror.NewHTTPError(http.StatusBadRequest, "reference_type must be court, prosecution, police, or internal")
		}

		ctx, repo, err := ectoinject.GetContext[*caserepo.Repository](ctx)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
		}

		found, err := repo.FindByReference(ctx, tenantID, refType, refValue)
		if err != nil {
			return err
		}
		if found == nil {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "no case holds %s reference %q", refType, refValue)
		}

		return c.JSON(http.StatusOK, models.CaseListResponse{
			Items:      []models.Case{*found},
			TotalCount: 1,
			Page:       1,
			PageSize:   1,
		})
	}

	var isOrphan *bool
	if raw := c.QueryParam("is_orphan"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "is_orphan must be a boolean")
		}
		isOrphan = &parsed
	}

	var status *string
	if raw := c.QueryParam("status"); raw != "" {
		status = &raw
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	ctx, repo, err := ectoinject.GetContext[*caserepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := repo.List(ctx, tenantID, isOrphan, status, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// CaseDetail is a case with its linked entities
type CaseDetail struct {
	models.Case
	Entities []models.CanonicalEntity `json:"entities"`
	Links    []models.CaseEntityLink  `json:"links"`
}

// GetCase returns a case with its linked entities
func GetCase(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*caserepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	found, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	ctx, entityRepo, err := ectoinject.GetContext[*canonicalentity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	entities, err := entityRepo.ListByCase(ctx, tenantID, id)
	if err != nil {
		return err
	}

	ctx, linkRepo, err := ectoinject.GetContext[*caselink.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	links, err := linkRepo.ListByCase(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, CaseDetail{
		Case:     *found,
		Entities: entities,
		Links:    links,
	})
}

// ListCaseEntities lists the canonical entities linked to a case
func ListCaseEntities(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*canonicalentity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entities, err := repo.ListByCase(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entities)
}

// ListCaseDocuments lists the document attachment audit trail of a case
func ListCaseDocuments(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*doclink.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	links, err := repo.ListByCase(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, links)
}

// ListCaseHistory lists the reference accumulation history of a case
func ListCaseHistory(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*mergehistory.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entries, err := repo.ListByCase(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

// UpdateStatusRequest is the request body for a status change
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateCaseStatus moves a case through its lifecycle
func UpdateCaseStatus(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	id := c.Param("id")

	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	switch req.Status {
	case models.CaseStatusOpen, models.CaseStatusInTrial, models.CaseStatusClosed,
		models.CaseStatusDismissed, models.CaseStatusAppealed:
	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown status %q", req.Status)
	}

	ctx, repo, err := ectoinject.GetContext[*caserepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.UpdateStatus(ctx, tenantID, id, req.Status); err != nil {
		return err
	}

	updated, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

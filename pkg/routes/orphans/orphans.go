// Package orphans exposes the orphan reconciliation API.
package orphans

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/laurel/pkg/context"
	"github.com/Ramsey-B/laurel/pkg/events"
	"github.com/Ramsey-B/laurel/pkg/graph"
	"github.com/Ramsey-B/laurel/pkg/reconciler"
)

// Register registers orphan routes
func Register(g *echo.Group) {
	g.GET("", ListOrphans)
	g.POST("/:id/merge", MergeOrphan)
}

// ListOrphans lists the tenant's orphan cases
func ListOrphans(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	ctx, rec, err := ectoinject.GetContext[*reconciler.Reconciler](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := rec.ListOrphans(ctx, tenantID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// MergeRequest is the request body for merging an orphan into a target case
type MergeRequest struct {
	TargetCaseID string `json:"target_case_id" validate:"required"`
}

// MergeOrphan folds an orphan case into an identified target case
func MergeOrphan(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	orphanID := c.Param("id")

	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TargetCaseID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "target_case_id is required")
	}

	ctx, rec, err := ectoinject.GetContext[*reconciler.Reconciler](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := rec.MergeOrphanInto(ctx, tenantID, orphanID, req.TargetCaseID)
	if err != nil {
		return err
	}

	// The merge is committed; event emission and graph maintenance are best
	// effort from here.
	ctx, emitter, _ := ectoinject.GetContext[*events.Emitter](ctx)
	if emitter != nil {
		if err := emitter.EmitOrphanMerged(ctx, tenantID, result); err != nil {
			ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
			if logger != nil {
				logger.WithContext(ctx).WithError(err).Error("Failed to emit case.orphan_merged event")
			}
		}
	}

	ctx, projector, _ := ectoinject.GetContext[*graph.Projector](ctx)
	if projector != nil {
		if err := projector.FoldCase(ctx, tenantID, orphanID, req.TargetCaseID); err != nil {
			ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
			if logger != nil {
				logger.WithContext(ctx).WithError(err).Error("Failed to fold orphan case in graph")
			}
		}
	}

	return c.JSON(http.StatusOK, result)
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

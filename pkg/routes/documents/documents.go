// Package documents exposes the synchronous resolution API. The Kafka
// consumer is the primary ingestion path; these routes serve backfills and
// integrations without broker access.
package documents

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/laurel/pkg/caseerrors"
	"github.com/Ramsey-B/laurel/pkg/context"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/processor"
)

// Register registers document resolution routes
func Register(g *echo.Group) {
	g.POST("", ProcessDocument)
	g.POST("/batch", ProcessBatch)
}

// ProcessDocument resolves a single document to its owning case
func ProcessDocument(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	var doc models.ExtractedDocument
	if err := c.Bind(&doc); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := proc.ProcessDocument(ctx, tenantID, doc)
	if err != nil {
		var ve *caseerrors.ValidationError
		if errors.As(err, &ve) {
			return ve.ToHTTPError()
		}
		return err
	}

	status := http.StatusOK
	switch result.Action {
	case models.ResolveActionCreated, models.ResolveActionCreatedOrphan:
		status = http.StatusCreated
	case models.ResolveActionConflict:
		status = http.StatusConflict
	}

	return c.JSON(status, result)
}

// BatchRequest is the request body for batch resolution
type BatchRequest struct {
	Documents []models.ExtractedDocument `json:"documents" validate:"required,min=1"`
}

// BatchResponse is the per-document outcome list for a batch
type BatchResponse struct {
	Outcomes []models.DocumentOutcome `json:"outcomes"`
}

// ProcessBatch resolves a batch of documents; one failure never aborts the rest
func ProcessBatch(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "documents is required")
	}

	ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	outcomes := proc.ProcessBatch(ctx, tenantID, req.Documents)
	return c.JSON(http.StatusOK, BatchResponse{Outcomes: outcomes})
}

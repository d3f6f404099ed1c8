// Package docschema exposes document type schema management.
package docschema

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/laurel/internal/repositories/docschema"
	"github.com/Ramsey-B/laurel/pkg/context"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/schema"
)

// Register registers document type schema routes
func Register(g *echo.Group) {
	g.GET("", ListSchemas)
	g.GET("/:document_type", GetSchema)
	g.PUT("/:document_type", UpsertSchema)
}

// ListSchemas lists the tenant's document type schemas
func ListSchemas(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	ctx, repo, err := ectoinject.GetContext[*docschema.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	schemas, err := repo.List(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, schemas)
}

// GetSchema gets the schema for one document type
func GetSchema(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	documentType := c.Param("document_type")

	ctx, repo, err := ectoinject.GetContext[*docschema.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	found, err := repo.GetByType(ctx, tenantID, documentType)
	if err != nil {
		return err
	}
	if found == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "no schema for document type %q", documentType)
	}

	return c.JSON(http.StatusOK, found)
}

// UpsertSchema registers or replaces the schema for a document type
func UpsertSchema(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	documentType := c.Param("document_type")

	var req models.CreateDocumentTypeSchemaRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.DocumentType = documentType
	if len(req.RequiredFields) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "required_fields must not be empty")
	}

	ctx, repo, err := ectoinject.GetContext[*docschema.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	upserted, err := repo.Upsert(ctx, tenantID, req)
	if err != nil {
		return err
	}

	// Drop the cached validator so the new schema takes effect immediately.
	ctx, validation, _ := ectoinject.GetContext[*schema.ValidationService](ctx)
	if validation != nil {
		validation.InvalidateCache(tenantID, documentType)
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"document_type": documentType,
		}).Info("Upserted document type schema")
	}

	return c.JSON(http.StatusOK, upserted)
}

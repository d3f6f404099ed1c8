// Package docschema persists per-document-type validation schemas.
package docschema

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

var schemaColumns = []string{
	"id", "tenant_id", "document_type", "required_fields", "optional_fields", "created_at", "updated_at",
}

// Repository handles document type schema persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new document type schema repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByType retrieves the schema for a document type, or nil when the type
// has no registered schema.
func (r *Repository) GetByType(ctx context.Context, tenantID, documentType string) (*models.DocumentTypeSchema, error) {
	ctx, span := tracing.StartSpan(ctx, "docschema.Repository.GetByType")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(schemaColumns...)
	sb.From("document_type_schemas")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("document_type", documentType),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var schema models.DocumentTypeSchema
	if err := r.db.GetContext(ctx, &schema, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "document_type": documentType}).Error("Failed to get document type schema")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document type schema")
	}
	return &schema, nil
}

// Upsert creates or replaces the schema for a document type.
func (r *Repository) Upsert(ctx context.Context, tenantID string, req models.CreateDocumentTypeSchemaRequest) (*models.DocumentTypeSchema, error) {
	ctx, span := tracing.StartSpan(ctx, "docschema.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	query := `
		WITH upsert AS (
			INSERT INTO document_type_schemas (
				id, tenant_id, document_type, required_fields, optional_fields, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tenant_id, document_type)
			DO UPDATE SET
				required_fields = EXCLUDED.required_fields,
				optional_fields = EXCLUDED.optional_fields,
				updated_at = EXCLUDED.updated_at
			RETURNING ` + strings.Join(schemaColumns, ", ") + `
		)
		SELECT * FROM upsert
	`

	var schema models.DocumentTypeSchema
	err := r.db.GetContext(ctx, &schema, query,
		uuid.New().String(), tenantID, req.DocumentType,
		pq.StringArray(req.RequiredFields), pq.StringArray(req.OptionalFields), now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "document_type": req.DocumentType}).Error("Failed to upsert document type schema")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert document type schema")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"document_type": schema.DocumentType}).Info("Upserted document type schema")
	return &schema, nil
}

// List retrieves all schemas for a tenant.
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.DocumentTypeSchema, error) {
	ctx, span := tracing.StartSpan(ctx, "docschema.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(schemaColumns...)
	sb.From("document_type_schemas")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("document_type")

	query, args := sb.Build()
	var schemas []models.DocumentTypeSchema
	if err := r.db.SelectContext(ctx, &schemas, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list document type schemas")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list document type schemas")
	}
	return schemas, nil
}

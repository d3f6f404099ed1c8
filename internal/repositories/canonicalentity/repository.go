// Package canonicalentity persists deduplicated party, charge, and evidence
// records keyed by signature.
package canonicalentity

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

var entityColumns = []string{
	"id", "tenant_id", "entity_type", "signature", "display_name", "attributes", "created_at", "updated_at",
}

// Repository handles canonical entity persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new canonical entity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertResult contains the result of an upsert operation
type UpsertResult struct {
	Entity *models.CanonicalEntity
	IsNew  bool
}

// Upsert creates or widens a canonical entity keyed by (tenant, type,
// signature). On conflict existing attribute values win and only missing keys
// are filled; the display name is kept once set. A repeat sighting of
// identical data is a no-op beyond updated_at.
func (r *Repository) Upsert(ctx context.Context, tenantID string, req models.UpsertCanonicalEntityRequest) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalentity.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()
	attributes := req.Attributes
	if len(attributes) == 0 {
		attributes = []byte(`{}`)
	}

	// jsonb || keeps the right operand on key collisions, so putting the
	// stored attributes on the right preserves known values and only fills
	// keys the row did not have yet.
	query := `
		WITH upsert AS (
			INSERT INTO canonical_entities (
				id, tenant_id, entity_type, signature, display_name, attributes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tenant_id, entity_type, signature)
			DO UPDATE SET
				display_name = COALESCE(NULLIF(canonical_entities.display_name, ''), EXCLUDED.display_name),
				attributes = EXCLUDED.attributes || canonical_entities.attributes,
				updated_at = EXCLUDED.updated_at
			RETURNING ` + strings.Join(entityColumns, ", ") + `, (xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.CanonicalEntity
		Inserted bool `db:"inserted"`
	}

	err := r.db.GetContext(ctx, &result, query,
		id, tenantID, req.EntityType, req.Signature, req.DisplayName, attributes, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "entity_type": req.EntityType, "signature": req.Signature}).Error("Failed to upsert canonical entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert canonical entity")
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID, "entity_type": result.EntityType}).Debug("Created canonical entity")
	}
	return &UpsertResult{Entity: &result.CanonicalEntity, IsNew: result.Inserted}, nil
}

// Get retrieves a canonical entity by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalentity.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From("canonical_entities")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var entity models.CanonicalEntity
	if err := r.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "canonical entity %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to get canonical entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get canonical entity")
	}
	return &entity, nil
}

// GetBySignature retrieves a canonical entity by its signature, or nil.
func (r *Repository) GetBySignature(ctx context.Context, tenantID string, entityType models.EntityType, signature string) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalentity.Repository.GetBySignature")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From("canonical_entities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("signature", signature),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var entity models.CanonicalEntity
	if err := r.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "entity_type": entityType, "signature": signature}).Error("Failed to get canonical entity by signature")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get canonical entity")
	}
	return &entity, nil
}

// ListByCase retrieves the canonical entities linked to a case.
func (r *Repository) ListByCase(ctx context.Context, tenantID, caseID string) ([]models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalentity.Repository.ListByCase")
	defer span.End()

	query := `
		SELECT DISTINCT ce.id, ce.tenant_id, ce.entity_type, ce.signature, ce.display_name, ce.attributes, ce.created_at, ce.updated_at
		FROM canonical_entities ce
		JOIN case_entity_links cel ON cel.entity_id = ce.id
		WHERE cel.tenant_id = $1 AND cel.case_id = $2
		ORDER BY ce.entity_type, ce.display_name
	`

	var entities []models.CanonicalEntity
	if err := r.db.SelectContext(ctx, &entities, query, tenantID, caseID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "case_id": caseID}).Error("Failed to list canonical entities by case")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list canonical entities")
	}
	return entities, nil
}

// Package caselink persists case-to-entity links. A link is unique per
// (case, entity, role); repeat sightings are no-ops.
package caselink

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

var linkColumns = []string{
	"id", "tenant_id", "case_id", "entity_id", "entity_type", "role",
	"source_document_id", "confidence", "created_at",
}

// Repository handles case entity link persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new case entity link repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Link attaches an entity to a case with a role. Returns true when a new link
// row was written, false when the (case, entity, role) link already existed.
func (r *Repository) Link(ctx context.Context, tenantID string, link models.CaseEntityLink) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "caselink.Repository.Link")
	defer span.End()

	ib := database.NewInsertBuilder().
		InsertInto("case_entity_links").
		Cols(linkColumns...).
		Values(
			uuid.New().String(), tenantID, link.CaseID, link.EntityID, link.EntityType,
			link.Role, link.SourceDocumentID, link.Confidence, time.Now().UTC(),
		).
		OnConflictDoNothing("case_id", "entity_id", "role")

	query, args := ib.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "case_id": link.CaseID, "entity_id": link.EntityID, "role": link.Role}).Error("Failed to link entity to case")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to link entity to case")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListByCase retrieves all entity links for a case.
func (r *Repository) ListByCase(ctx context.Context, tenantID, caseID string) ([]models.CaseEntityLink, error) {
	ctx, span := tracing.StartSpan(ctx, "caselink.Repository.ListByCase")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(linkColumns...)
	sb.From("case_entity_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("case_id", caseID),
	)
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var links []models.CaseEntityLink
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "case_id": caseID}).Error("Failed to list case entity links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list case entity links")
	}
	return links, nil
}

// ListSignaturesByCase returns the distinct entity signatures linked to each
// of the given cases. Used by the similarity linker for overlap scoring.
func (r *Repository) ListSignaturesByCase(ctx context.Context, tenantID string, caseIDs []string) (map[string][]string, error) {
	ctx, span := tracing.StartSpan(ctx, "caselink.Repository.ListSignaturesByCase")
	defer span.End()

	if len(caseIDs) == 0 {
		return map[string][]string{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("cel.case_id", "ce.signature")
	sb.From("case_entity_links cel")
	sb.Join("canonical_entities ce", "ce.id = cel.entity_id")
	sb.Where(
		sb.Equal("cel.tenant_id", tenantID),
		sb.In("cel.case_id", sqlbuilder.Flatten(caseIDs)...),
	)

	query, args := sb.Build()
	var rows []struct {
		CaseID    string `db:"case_id"`
		Signature string `db:"signature"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "case_count": len(caseIDs)}).Error("Failed to list signatures by case")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entity signatures")
	}

	signatures := make(map[string][]string, len(caseIDs))
	for _, row := range rows {
		signatures[row.CaseID] = append(signatures[row.CaseID], row.Signature)
	}
	return signatures, nil
}

// MoveToCase rewrites links from one case to another, skipping rows that
// would collide with an existing (case, entity, role) link on the target.
// Returns how many links moved and how many were skipped. The skipped source
// rows are deleted so the source case ends up with no links.
func (r *Repository) MoveToCase(ctx context.Context, tenantID, fromCaseID, toCaseID string) (moved, skipped int64, err error) {
	ctx, span := tracing.StartSpan(ctx, "caselink.Repository.MoveToCase")
	defer span.End()

	insertQuery := `
		INSERT INTO case_entity_links (
			id, tenant_id, case_id, entity_id, entity_type, role,
			source_document_id, confidence, created_at
		)
		SELECT gen_random_uuid(), tenant_id, $1, entity_id, entity_type, role,
		       source_document_id, confidence, created_at
		FROM case_entity_links
		WHERE tenant_id = $2 AND case_id = $3
		ON CONFLICT (case_id, entity_id, role) DO NOTHING
	`
	insertResult, err := r.db.ExecContext(ctx, insertQuery, toCaseID, tenantID, fromCaseID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_case_id": fromCaseID, "to_case_id": toCaseID}).Error("Failed to move case entity links")
		return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to move case entity links")
	}
	moved, _ = insertResult.RowsAffected()

	deleteQuery := `DELETE FROM case_entity_links WHERE tenant_id = $1 AND case_id = $2`
	deleteResult, err := r.db.ExecContext(ctx, deleteQuery, tenantID, fromCaseID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_case_id": fromCaseID}).Error("Failed to delete moved case entity links")
		return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to move case entity links")
	}
	deleted, _ := deleteResult.RowsAffected()
	skipped = deleted - moved

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"from_case_id": fromCaseID,
		"to_case_id":   toCaseID,
		"moved":        moved,
		"skipped":      skipped,
	}).Info("Moved case entity links")
	return moved, skipped, nil
}

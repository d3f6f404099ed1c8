// Package doclink persists the append-only audit trail of document-to-case
// attachment decisions, including conflict rows that attach to no case.
package doclink

import (
	"context"
	"encoding/json"
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

var docLinkColumns = []string{
	"id", "tenant_id", "document_id", "case_id", "matched_via", "confidence", "detail", "created_at",
}

// Repository handles document case link persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new document case link repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Append writes one attachment decision. Rows are never updated or deleted.
func (r *Repository) Append(ctx context.Context, tenantID string, link models.DocumentCaseLink) (*models.DocumentCaseLink, error) {
	ctx, span := tracing.StartSpan(ctx, "doclink.Repository.Append")
	defer span.End()

	link.ID = uuid.New().String()
	link.TenantID = tenantID
	link.CreatedAt = time.Now().UTC()
	if len(link.Detail) == 0 {
		link.Detail = json.RawMessage(`{}`)
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("document_case_links")
	sb.Cols(docLinkColumns...)
	sb.Values(link.ID, link.TenantID, link.DocumentID, link.CaseID, link.MatchedVia, link.Confidence, []byte(link.Detail), link.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "document_id": link.DocumentID, "matched_via": link.MatchedVia}).Error("Failed to append document case link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record document case link")
	}
	return &link, nil
}

// ListByCase retrieves attachment records for a case, newest first.
func (r *Repository) ListByCase(ctx context.Context, tenantID, caseID string) ([]models.DocumentCaseLink, error) {
	ctx, span := tracing.StartSpan(ctx, "doclink.Repository.ListByCase")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(docLinkColumns...)
	sb.From("document_case_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("case_id", caseID),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var links []models.DocumentCaseLink
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "case_id": caseID}).Error("Failed to list document case links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list document case links")
	}
	return links, nil
}

// ListByDocument retrieves attachment records for a document, newest first.
func (r *Repository) ListByDocument(ctx context.Context, tenantID, documentID string) ([]models.DocumentCaseLink, error) {
	ctx, span := tracing.StartSpan(ctx, "doclink.Repository.ListByDocument")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(docLinkColumns...)
	sb.From("document_case_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("document_id", documentID),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var links []models.DocumentCaseLink
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "document_id": documentID}).Error("Failed to list document case links by document")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list document case links")
	}
	return links, nil
}

// ReassignCase repoints attachment records from one case to another during an
// orphan merge. Returns the number of documents moved.
func (r *Repository) ReassignCase(ctx context.Context, tenantID, fromCaseID, toCaseID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "doclink.Repository.ReassignCase")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("document_case_links")
	sb.Set(sb.Assign("case_id", toCaseID))
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("case_id", fromCaseID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_case_id": fromCaseID, "to_case_id": toCaseID}).Error("Failed to reassign document case links")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign document case links")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

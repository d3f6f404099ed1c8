// Package mergehistory persists the append-only record of reference values
// added to cases. One row per first-time addition; rows never change.
package mergehistory

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

var historyColumns = []string{
	"id", "tenant_id", "case_id", "reference_type", "value", "source_document_id", "created_at",
}

// Repository handles merge history persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge history repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Append records a reference value being added to a case.
func (r *Repository) Append(ctx context.Context, tenantID string, entry models.MergeHistoryEntry) (*models.MergeHistoryEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.Append")
	defer span.End()

	entry.ID = uuid.New().String()
	entry.TenantID = tenantID
	entry.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_history")
	sb.Cols(historyColumns...)
	sb.Values(entry.ID, entry.TenantID, entry.CaseID, entry.ReferenceType, entry.Value, entry.SourceDocumentID, entry.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "case_id": entry.CaseID, "reference_type": entry.ReferenceType}).Error("Failed to append merge history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record merge history")
	}
	return &entry, nil
}

// ListByCase retrieves merge history for a case in insertion order.
func (r *Repository) ListByCase(ctx context.Context, tenantID, caseID string) ([]models.MergeHistoryEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.ListByCase")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(historyColumns...)
	sb.From("merge_history")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("case_id", caseID),
	)
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var entries []models.MergeHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "case_id": caseID}).Error("Failed to list merge history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge history")
	}
	return entries, nil
}

// ReassignCase repoints history rows from one case to another during an
// orphan merge so the audit trail survives the orphan row's deletion.
func (r *Repository) ReassignCase(ctx context.Context, tenantID, fromCaseID, toCaseID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.ReassignCase")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("merge_history")
	sb.Set(sb.Assign("case_id", toCaseID))
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("case_id", fromCaseID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_case_id": fromCaseID, "to_case_id": toCaseID}).Error("Failed to reassign merge history")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign merge history")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

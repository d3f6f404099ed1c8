// Package cases persists logical case rows. Reference columns are append-only
// and guarded by per-tenant partial unique indexes; a duplicate create races
// surface as ConcurrentCreateError for the matcher to retry.
package cases

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/laurel/pkg/caseerrors"
	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

var caseColumns = []string{
	"id", "tenant_id", "court_reference", "prosecution_reference", "police_reference",
	"internal_reference", "is_orphan", "synthetic_reference", "reference_completeness",
	"status", "created_at", "updated_at", "deleted_at",
}

// Repository handles case persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new case repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional operations.
func (r *Repository) DB() database.DB {
	return r.db
}

func referenceColumn(refType models.ReferenceType) (string, error) {
	switch refType {
	case models.ReferenceTypeCourt:
		return "court_reference", nil
	case models.ReferenceTypeProsecution:
		return "prosecution_reference", nil
	case models.ReferenceTypePolice:
		return "police_reference", nil
	case models.ReferenceTypeInternal:
		return "internal_reference", nil
	}
	return "", fmt.Errorf("unknown reference type %q", refType)
}

// FindByReference returns the case holding the given reference value, or nil.
func (r *Repository) FindByReference(ctx context.Context, tenantID string, refType models.ReferenceType, value string) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.FindByReference")
	defer span.End()

	column, err := referenceColumn(refType)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(caseColumns...)
	sb.From("cases")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal(column, value),
		sb.IsNull("deleted_at"),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var c models.Case
	if err := r.db.GetContext(ctx, &c, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "reference_type": refType, "value": value}).Error("Failed to find case by reference")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find case")
	}
	return &c, nil
}

// Get retrieves a case by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(caseColumns...)
	sb.From("cases")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var c models.Case
	if err := r.db.GetContext(ctx, &c, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "case %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to get case")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get case")
	}
	return &c, nil
}

// Create inserts a new case row. A unique violation on any reference column
// means a concurrent writer created the same case first; callers retry their
// lookup in a fresh transaction.
func (r *Repository) Create(ctx context.Context, tenantID string, req models.CreateCaseRequest) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()
	status := req.Status
	if status == "" {
		status = models.CaseStatusOpen
	}

	query := `
		INSERT INTO cases (
			id, tenant_id, court_reference, prosecution_reference, police_reference,
			internal_reference, is_orphan, synthetic_reference, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + strings.Join(caseColumns, ", ")

	var c models.Case
	err := r.db.GetContext(ctx, &c, query,
		id, tenantID, req.References.Court, req.References.Prosecution, req.References.Police,
		req.References.Internal, req.IsOrphan, req.SyntheticReference, status, now, now,
	)
	if err != nil {
		if caseerrors.IsUniqueViolation(err) {
			refType, value := firstReference(req.References)
			r.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenantID, "reference_type": refType}).Warn("Concurrent case create detected")
			return nil, &caseerrors.ConcurrentCreateError{ReferenceType: string(refType), Value: value}
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to create case")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create case")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": c.ID, "is_orphan": c.IsOrphan}).Info("Created case")
	return &c, nil
}

// SetReference fills a reference column that is currently null. Returns false
// when the column already held a value; it is never overwritten. Gaining a
// real reference ends the orphan state, so the synthetic reference is cleared
// in the same statement.
func (r *Repository) SetReference(ctx context.Context, tenantID, caseID string, refType models.ReferenceType, value string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.SetReference")
	defer span.End()

	column, err := referenceColumn(refType)
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`
		UPDATE cases
		SET %s = $1, is_orphan = FALSE, synthetic_reference = NULL, updated_at = $2
		WHERE id = $3 AND tenant_id = $4 AND %s IS NULL AND deleted_at IS NULL
	`, column, column)

	result, err := r.db.ExecContext(ctx, query, value, now, caseID, tenantID)
	if err != nil {
		if caseerrors.IsUniqueViolation(err) {
			return false, &caseerrors.ConcurrentCreateError{ReferenceType: string(refType), Value: value}
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"case_id": caseID, "reference_type": refType}).Error("Failed to set case reference")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to set case reference")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"case_id": caseID, "reference_type": refType}).Info("Added case reference")
	}
	return rows > 0, nil
}

// Touch bumps a case's updated_at. Called when a document attaches so that
// similarity tie-breaks favor recently active cases.
func (r *Repository) Touch(ctx context.Context, tenantID, caseID string) error {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.Touch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("cases")
	sb.Set(sb.Assign("updated_at", time.Now().UTC()))
	sb.Where(
		sb.Equal("id", caseID),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"case_id": caseID}).Error("Failed to touch case")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update case")
	}
	return nil
}

// UpdateStatus moves a case through its lifecycle.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, caseID, status string) error {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.UpdateStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("cases")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", caseID),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"case_id": caseID, "status": status}).Error("Failed to update case status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update case status")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "case %s not found", caseID)
	}
	return nil
}

// List retrieves cases with filtering and pagination
func (r *Repository) List(ctx context.Context, tenantID string, isOrphan *bool, status *string, page, pageSize int) (*models.CaseListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("cases")
	countWhere := []string{
		countSb.Equal("tenant_id", tenantID),
		countSb.IsNull("deleted_at"),
	}
	if isOrphan != nil {
		countWhere = append(countWhere, countSb.Equal("is_orphan", *isOrphan))
	}
	if status != nil {
		countWhere = append(countWhere, countSb.Equal("status", *status))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to count cases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count cases")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(caseColumns...)
	sb.From("cases")
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	}
	if isOrphan != nil {
		where = append(where, sb.Equal("is_orphan", *isOrphan))
	}
	if status != nil {
		where = append(where, sb.Equal("status", *status))
	}
	sb.Where(where...)
	sb.OrderBy("updated_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var items []models.Case
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "page": page, "page_size": pageSize}).Error("Failed to list cases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list cases")
	}

	return &models.CaseListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// NextOrphanSequence draws the next value from the orphan numbering sequence.
func (r *Repository) NextOrphanSequence(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.NextOrphanSequence")
	defer span.End()

	var seq int64
	if err := r.db.GetContext(ctx, &seq, "SELECT nextval('orphan_case_seq')"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get next orphan sequence")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to allocate orphan reference")
	}
	return seq, nil
}

// Delete removes a case row outright. Only used for orphan cases whose
// content has been merged into a real case; everything else is kept.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("cases")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to delete case")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete case")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "case %s not found", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted case")
	return nil
}

func firstReference(refs models.ReferenceSet) (models.ReferenceType, string) {
	for _, refType := range models.ReferencePriority() {
		if v := refs.Get(refType); v != nil {
			return refType, *v
		}
	}
	return "", ""
}

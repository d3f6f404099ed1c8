// Package embeddings persists one representative embedding vector per case.
// The first document to create a case contributes the vector; later documents
// do not overwrite it.
package embeddings

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// Repository handles case embedding persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new case embedding repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// SetIfAbsent stores a case's representative vector unless one already
// exists. Returns true when the vector was stored.
func (r *Repository) SetIfAbsent(ctx context.Context, tenantID, caseID string, vector []float64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "embeddings.Repository.SetIfAbsent")
	defer span.End()

	if len(vector) == 0 {
		return false, nil
	}

	query := `
		INSERT INTO case_embeddings (case_id, tenant_id, vector, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (case_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, caseID, tenantID, pq.Array(vector), time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "case_id": caseID}).Error("Failed to store case embedding")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to store case embedding")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListByTenant loads every case vector for a tenant along with the case's
// last activity, excluding deleted and conflict-frozen cases. The similarity
// linker scans these in memory.
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]models.CaseEmbedding, error) {
	ctx, span := tracing.StartSpan(ctx, "embeddings.Repository.ListByTenant")
	defer span.End()

	query := `
		SELECT ce.case_id, ce.tenant_id, ce.vector, c.updated_at
		FROM case_embeddings ce
		JOIN cases c ON c.id = ce.case_id
		WHERE ce.tenant_id = $1 AND c.deleted_at IS NULL
		ORDER BY c.updated_at DESC
	`

	var rows []struct {
		CaseID    string          `db:"case_id"`
		TenantID  string          `db:"tenant_id"`
		Vector    pq.Float64Array `db:"vector"`
		UpdatedAt time.Time       `db:"updated_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list case embeddings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list case embeddings")
	}

	embeddings := make([]models.CaseEmbedding, 0, len(rows))
	for _, row := range rows {
		embeddings = append(embeddings, models.CaseEmbedding{
			CaseID:    row.CaseID,
			TenantID:  row.TenantID,
			Vector:    []float64(row.Vector),
			UpdatedAt: row.UpdatedAt,
		})
	}
	return embeddings, nil
}

// MoveToCase transfers a vector during an orphan merge. The target's existing
// vector wins; the source row is removed either way.
func (r *Repository) MoveToCase(ctx context.Context, tenantID, fromCaseID, toCaseID string) error {
	ctx, span := tracing.StartSpan(ctx, "embeddings.Repository.MoveToCase")
	defer span.End()

	insertQuery := `
		INSERT INTO case_embeddings (case_id, tenant_id, vector, updated_at)
		SELECT $1, tenant_id, vector, updated_at
		FROM case_embeddings
		WHERE tenant_id = $2 AND case_id = $3
		ON CONFLICT (case_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insertQuery, toCaseID, tenantID, fromCaseID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_case_id": fromCaseID, "to_case_id": toCaseID}).Error("Failed to move case embedding")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to move case embedding")
	}

	deleteQuery := `DELETE FROM case_embeddings WHERE tenant_id = $1 AND case_id = $2`
	if _, err := r.db.ExecContext(ctx, deleteQuery, tenantID, fromCaseID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_case_id": fromCaseID}).Error("Failed to delete moved case embedding")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to move case embedding")
	}
	return nil
}

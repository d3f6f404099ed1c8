// Package reconciler folds orphan cases into fully-identified target cases.
// The merge is one transaction: every dependent row moves (links colliding
// with the target's uniqueness constraints are skipped, not fatal) and the
// orphan row is deleted, or nothing changes.
package reconciler

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// CaseStore is the case repository surface the reconciler needs.
type CaseStore interface {
	DB() database.DB
	Get(ctx context.Context, tenantID, id string) (*models.Case, error)
	Delete(ctx context.Context, tenantID, id string) error
	Touch(ctx context.Context, tenantID, caseID string) error
	List(ctx context.Context, tenantID string, isOrphan *bool, status *string, page, pageSize int) (*models.CaseListResponse, error)
}

// DocumentLinkStore repoints document attachment records.
type DocumentLinkStore interface {
	ReassignCase(ctx context.Context, tenantID, fromCaseID, toCaseID string) (int64, error)
}

// EntityLinkStore moves case-to-entity links, skipping duplicates.
type EntityLinkStore interface {
	MoveToCase(ctx context.Context, tenantID, fromCaseID, toCaseID string) (moved, skipped int64, err error)
}

// HistoryStore moves and appends merge history rows.
type HistoryStore interface {
	ReassignCase(ctx context.Context, tenantID, fromCaseID, toCaseID string) (int64, error)
	Append(ctx context.Context, tenantID string, entry models.MergeHistoryEntry) (*models.MergeHistoryEntry, error)
}

// EmbeddingStore moves case vectors.
type EmbeddingStore interface {
	MoveToCase(ctx context.Context, tenantID, fromCaseID, toCaseID string) error
}

// Reconciler merges orphan cases into identified ones.
type Reconciler struct {
	cases      CaseStore
	docLinks   DocumentLinkStore
	links      EntityLinkStore
	history    HistoryStore
	embeddings EmbeddingStore
	logger     ectologger.Logger
}

// NewReconciler creates a new orphan reconciler
func NewReconciler(cases CaseStore, docLinks DocumentLinkStore, links EntityLinkStore, history HistoryStore, embeddings EmbeddingStore, logger ectologger.Logger) *Reconciler {
	return &Reconciler{
		cases:      cases,
		docLinks:   docLinks,
		links:      links,
		history:    history,
		embeddings: embeddings,
		logger:     logger,
	}
}

// ListOrphans returns the tenant's orphan cases.
func (r *Reconciler) ListOrphans(ctx context.Context, tenantID string, page, pageSize int) (*models.CaseListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciler.Reconciler.ListOrphans")
	defer span.End()

	isOrphan := true
	return r.cases.List(ctx, tenantID, &isOrphan, nil, page, pageSize)
}

// MergeOrphanInto reassigns every document, entity link, and dependent record
// from the orphan case to the target, then deletes the orphan row. Fails
// without side effects when either case is missing, the source is not an
// orphan, or the two ids are equal.
func (r *Reconciler) MergeOrphanInto(ctx context.Context, tenantID, orphanID, targetID string) (*models.OrphanMergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciler.Reconciler.MergeOrphanInto")
	defer span.End()

	if orphanID == targetID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "orphan and target case must differ")
	}

	orphan, err := r.cases.Get(ctx, tenantID, orphanID)
	if err != nil {
		return nil, err
	}
	if !orphan.IsOrphan {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "case %s is not an orphan", orphanID)
	}
	target, err := r.cases.Get(ctx, tenantID, targetID)
	if err != nil {
		return nil, err
	}

	ctxTx, tx, err := r.cases.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	documentsMoved, err := r.docLinks.ReassignCase(ctxTx, tenantID, orphanID, targetID)
	if err != nil {
		return nil, err
	}

	linksMoved, linksSkipped, err := r.links.MoveToCase(ctxTx, tenantID, orphanID, targetID)
	if err != nil {
		return nil, err
	}

	if _, err := r.history.ReassignCase(ctxTx, tenantID, orphanID, targetID); err != nil {
		return nil, err
	}

	if err := r.embeddings.MoveToCase(ctxTx, tenantID, orphanID, targetID); err != nil {
		return nil, err
	}

	syntheticRef := ""
	if orphan.SyntheticReference != nil {
		syntheticRef = *orphan.SyntheticReference
	}
	if _, err := r.history.Append(ctxTx, tenantID, models.MergeHistoryEntry{
		CaseID:           targetID,
		ReferenceType:    models.MatchedViaOrphanMerge,
		Value:            syntheticRef,
		SourceDocumentID: orphanID,
	}); err != nil {
		return nil, err
	}

	if err := r.cases.Delete(ctxTx, tenantID, orphanID); err != nil {
		return nil, err
	}

	if err := r.cases.Touch(ctxTx, tenantID, targetID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":       tenantID,
		"orphan_case_id":  orphanID,
		"target_case_id":  target.ID,
		"documents_moved": documentsMoved,
		"links_moved":     linksMoved,
		"links_skipped":   linksSkipped,
	}).Info("Merged orphan case into target")

	return &models.OrphanMergeResult{
		OrphanCaseID:   orphanID,
		TargetCaseID:   targetID,
		DocumentsMoved: documentsMoved,
		LinksMoved:     linksMoved,
		LinksSkipped:   linksSkipped,
	}, nil
}

// Package matching resolves which case an incoming document belongs to.
// References are tried in priority order (court, prosecution, police,
// internal); when none match, the similarity linker proposes candidates; when
// nothing attaches, a new case is created. The whole decision runs in one
// transaction so a racing duplicate create fails fast on the reference
// uniqueness constraints and is retried.
package matching

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/config"
	"github.com/Ramsey-B/laurel/pkg/caseerrors"
	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// CaseStore is the case repository surface the matcher needs.
type CaseStore interface {
	DB() database.DB
	FindByReference(ctx context.Context, tenantID string, refType models.ReferenceType, value string) (*models.Case, error)
	Create(ctx context.Context, tenantID string, req models.CreateCaseRequest) (*models.Case, error)
	SetReference(ctx context.Context, tenantID, caseID string, refType models.ReferenceType, value string) (bool, error)
	Touch(ctx context.Context, tenantID, caseID string) error
	NextOrphanSequence(ctx context.Context) (int64, error)
	Get(ctx context.Context, tenantID, id string) (*models.Case, error)
}

// AuditStore records document-to-case attachment decisions.
type AuditStore interface {
	Append(ctx context.Context, tenantID string, link models.DocumentCaseLink) (*models.DocumentCaseLink, error)
}

// HistoryStore records reference additions.
type HistoryStore interface {
	Append(ctx context.Context, tenantID string, entry models.MergeHistoryEntry) (*models.MergeHistoryEntry, error)
}

// EmbeddingStore stores representative case vectors.
type EmbeddingStore interface {
	SetIfAbsent(ctx context.Context, tenantID, caseID string, vector []float64) (bool, error)
}

// CandidateFinder proposes similar cases for reference-less documents.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, tenantID string, embedding []float64, docSignatures []string) ([]models.SimilarityCandidate, error)
}

// Matcher finds or creates the owning case for a document.
type Matcher struct {
	cases      CaseStore
	audit      AuditStore
	history    HistoryStore
	embeddings EmbeddingStore
	similarity CandidateFinder
	cfg        *config.Config
	logger     ectologger.Logger
}

// NewMatcher creates a new case matcher
func NewMatcher(cases CaseStore, audit AuditStore, history HistoryStore, embeddings EmbeddingStore, similarity CandidateFinder, cfg *config.Config, logger ectologger.Logger) *Matcher {
	return &Matcher{
		cases:      cases,
		audit:      audit,
		history:    history,
		embeddings: embeddings,
		similarity: similarity,
		cfg:        cfg,
		logger:     logger,
	}
}

// Resolve finds or creates the case for a document's reference set. A
// concurrent duplicate create is retried with a fresh transaction; the
// retried lookup then succeeds against the now-visible row.
func (m *Matcher) Resolve(ctx context.Context, tenantID, documentID string, refs models.ReferenceSet, embedding []float64, docSignatures []string) (*models.ResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Matcher.Resolve")
	defer span.End()

	maxRetries := m.cfg.ResolveMaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := m.resolveOnce(ctx, tenantID, documentID, refs, embedding, docSignatures)
		if err != nil {
			if caseerrors.IsConcurrentCreate(err) {
				m.logger.WithContext(ctx).WithFields(map[string]any{
					"tenant_id":   tenantID,
					"document_id": documentID,
					"attempt":     attempt + 1,
				}).Warn("Retrying case resolution after concurrent create")
				lastErr = err
				continue
			}
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("case resolution exhausted %d retries: %w", maxRetries, lastErr)
}

func (m *Matcher) resolveOnce(ctx context.Context, tenantID, documentID string, refs models.ReferenceSet, embedding []float64, docSignatures []string) (*models.ResolveResult, error) {
	ctxTx, tx, err := m.cases.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	result, err := m.resolveInTx(ctxTx, tenantID, documentID, refs, embedding, docSignatures)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Matcher) resolveInTx(ctx context.Context, tenantID, documentID string, refs models.ReferenceSet, embedding []float64, docSignatures []string) (*models.ResolveResult, error) {
	matched, matchedVia, err := m.lookupByReferences(ctx, tenantID, refs)
	if err != nil {
		return nil, err
	}

	if len(matched) > 1 {
		return m.recordConflict(ctx, tenantID, documentID, caseIDs(matched), "references match distinct cases")
	}

	if len(matched) == 1 {
		return m.attachByReference(ctx, tenantID, documentID, matched[0], matchedVia, refs, embedding)
	}

	// No reference matched anything; try similarity before creating.
	if len(embedding) > 0 {
		result, attached, err := m.attachBySimilarity(ctx, tenantID, documentID, refs, embedding, docSignatures)
		if err != nil {
			return nil, err
		}
		if attached {
			return result, nil
		}
	}

	return m.createCase(ctx, tenantID, documentID, refs, embedding)
}

// lookupByReferences probes every non-null reference in priority order and
// returns the distinct cases found plus the highest-priority type that hit.
func (m *Matcher) lookupByReferences(ctx context.Context, tenantID string, refs models.ReferenceSet) ([]*models.Case, models.ReferenceType, error) {
	var matched []*models.Case
	var matchedVia models.ReferenceType
	seen := map[string]bool{}

	for _, refType := range models.ReferencePriority() {
		value := refs.Get(refType)
		if value == nil {
			continue
		}
		c, err := m.cases.FindByReference(ctx, tenantID, refType, *value)
		if err != nil {
			return nil, "", err
		}
		if c == nil || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		matched = append(matched, c)
		if matchedVia == "" {
			matchedVia = refType
		}
	}
	return matched, matchedVia, nil
}

func (m *Matcher) attachByReference(ctx context.Context, tenantID, documentID string, c *models.Case, matchedVia models.ReferenceType, refs models.ReferenceSet, embedding []float64) (*models.ResolveResult, error) {
	newRefs, conflictType := m.diffReferences(c, refs)
	if conflictType != "" {
		return m.recordConflict(ctx, tenantID, documentID, []string{c.ID},
			fmt.Sprintf("%s reference disagrees with stored value", conflictType))
	}

	for _, refType := range newRefs {
		if err := m.addReference(ctx, tenantID, documentID, c.ID, refType, *refs.Get(refType)); err != nil {
			return nil, err
		}
	}
	if len(newRefs) == 0 {
		if err := m.cases.Touch(ctx, tenantID, c.ID); err != nil {
			return nil, err
		}
	}
	if _, err := m.embeddings.SetIfAbsent(ctx, tenantID, c.ID, embedding); err != nil {
		return nil, err
	}

	if _, err := m.audit.Append(ctx, tenantID, models.DocumentCaseLink{
		DocumentID: documentID,
		CaseID:     &c.ID,
		MatchedVia: string(matchedVia),
		Confidence: 1.0,
	}); err != nil {
		return nil, err
	}

	return &models.ResolveResult{
		CaseID:        c.ID,
		Action:        models.ResolveActionFound,
		MatchedVia:    string(matchedVia),
		Confidence:    1.0,
		NewReferences: newRefs,
	}, nil
}

// diffReferences returns the reference types the document adds to the case,
// and the first type whose stored value disagrees with the document's.
func (m *Matcher) diffReferences(c *models.Case, refs models.ReferenceSet) ([]models.ReferenceType, models.ReferenceType) {
	var newRefs []models.ReferenceType
	for _, refType := range models.ReferencePriority() {
		docValue := refs.Get(refType)
		if docValue == nil {
			continue
		}
		caseValue := c.Reference(refType)
		if caseValue == nil {
			newRefs = append(newRefs, refType)
			continue
		}
		if *caseValue != *docValue {
			return nil, refType
		}
	}
	return newRefs, ""
}

func (m *Matcher) addReference(ctx context.Context, tenantID, documentID, caseID string, refType models.ReferenceType, value string) error {
	added, err := m.cases.SetReference(ctx, tenantID, caseID, refType, value)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	_, err = m.history.Append(ctx, tenantID, models.MergeHistoryEntry{
		CaseID:           caseID,
		ReferenceType:    string(refType),
		Value:            value,
		SourceDocumentID: documentID,
	})
	return err
}

// attachBySimilarity attaches to the single candidate above threshold,
// provided none of the document's references contradict that candidate.
func (m *Matcher) attachBySimilarity(ctx context.Context, tenantID, documentID string, refs models.ReferenceSet, embedding []float64, docSignatures []string) (*models.ResolveResult, bool, error) {
	candidates, err := m.similarity.FindCandidates(ctx, tenantID, embedding, docSignatures)
	if err != nil {
		return nil, false, err
	}
	if len(candidates) != 1 {
		return nil, false, nil
	}
	best := candidates[0]

	c, err := m.cases.Get(ctx, tenantID, best.CaseID)
	if err != nil {
		return nil, false, err
	}
	newRefs, conflictType := m.diffReferences(c, refs)
	if conflictType != "" {
		return nil, false, nil
	}

	for _, refType := range newRefs {
		if err := m.addReference(ctx, tenantID, documentID, c.ID, refType, *refs.Get(refType)); err != nil {
			return nil, false, err
		}
	}
	if len(newRefs) == 0 {
		if err := m.cases.Touch(ctx, tenantID, c.ID); err != nil {
			return nil, false, err
		}
	}

	if _, err := m.audit.Append(ctx, tenantID, models.DocumentCaseLink{
		DocumentID: documentID,
		CaseID:     &c.ID,
		MatchedVia: models.MatchedViaSimilarity,
		Confidence: best.Score,
	}); err != nil {
		return nil, false, err
	}

	return &models.ResolveResult{
		CaseID:        c.ID,
		Action:        models.ResolveActionFound,
		MatchedVia:    models.MatchedViaSimilarity,
		Confidence:    best.Score,
		NewReferences: newRefs,
	}, true, nil
}

func (m *Matcher) createCase(ctx context.Context, tenantID, documentID string, refs models.ReferenceSet, embedding []float64) (*models.ResolveResult, error) {
	isOrphan := refs.IsEmpty()
	req := models.CreateCaseRequest{
		References: refs,
		IsOrphan:   isOrphan,
		Status:     models.CaseStatusOpen,
	}
	action := models.ResolveActionCreated
	matchedVia := models.MatchedViaCreated
	if isOrphan {
		seq, err := m.cases.NextOrphanSequence(ctx)
		if err != nil {
			return nil, err
		}
		synthetic := SyntheticReference(time.Now().UTC().Year(), seq)
		req.SyntheticReference = &synthetic
		action = models.ResolveActionCreatedOrphan
		matchedVia = models.MatchedViaOrphan
	}

	c, err := m.cases.Create(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	for _, refType := range models.ReferencePriority() {
		if value := refs.Get(refType); value != nil {
			if _, err := m.history.Append(ctx, tenantID, models.MergeHistoryEntry{
				CaseID:           c.ID,
				ReferenceType:    string(refType),
				Value:            *value,
				SourceDocumentID: documentID,
			}); err != nil {
				return nil, err
			}
		}
	}

	if _, err := m.embeddings.SetIfAbsent(ctx, tenantID, c.ID, embedding); err != nil {
		return nil, err
	}

	if _, err := m.audit.Append(ctx, tenantID, models.DocumentCaseLink{
		DocumentID: documentID,
		CaseID:     &c.ID,
		MatchedVia: matchedVia,
		Confidence: 1.0,
	}); err != nil {
		return nil, err
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"document_id": documentID,
		"case_id":     c.ID,
		"action":      action,
	}).Info("Created case for document")

	return &models.ResolveResult{
		CaseID:     c.ID,
		Action:     action,
		MatchedVia: matchedVia,
		Confidence: 1.0,
	}, nil
}

// recordConflict persists only the audit note; no case row is created or
// modified. Resolution is left to a human.
func (m *Matcher) recordConflict(ctx context.Context, tenantID, documentID string, candidateIDs []string, reason string) (*models.ResolveResult, error) {
	detail, err := json.Marshal(map[string]any{
		"candidate_case_ids": candidateIDs,
		"reason":             reason,
	})
	if err != nil {
		return nil, err
	}

	if _, err := m.audit.Append(ctx, tenantID, models.DocumentCaseLink{
		DocumentID: documentID,
		CaseID:     nil,
		MatchedVia: models.MatchedViaConflict,
		Detail:     detail,
	}); err != nil {
		return nil, err
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":          tenantID,
		"document_id":        documentID,
		"candidate_case_ids": candidateIDs,
		"reason":             reason,
	}).Warn("Document resolution conflict")

	return &models.ResolveResult{
		Action:           models.ResolveActionConflict,
		MatchedVia:       models.MatchedViaConflict,
		CandidateCaseIDs: candidateIDs,
	}, nil
}

// SyntheticReference formats an orphan case identifier.
func SyntheticReference(year int, seq int64) string {
	return fmt.Sprintf("ORPHAN-%04d-%06d", year, seq)
}

func caseIDs(cases []*models.Case) []string {
	ids := make([]string, 0, len(cases))
	for _, c := range cases {
		ids = append(ids, c.ID)
	}
	return ids
}

package models

// ResolveAction is the outcome of a case resolution.
type ResolveAction string

const (
	ResolveActionFound         ResolveAction = "found"
	ResolveActionCreated       ResolveAction = "created"
	ResolveActionCreatedOrphan ResolveAction = "created_orphan"
	ResolveActionConflict      ResolveAction = "conflict"
)

// ResolveResult is the outcome of matching a document against the case store.
type ResolveResult struct {
	CaseID           string          `json:"case_id,omitempty"`
	Action           ResolveAction   `json:"action"`
	MatchedVia       string          `json:"matched_via,omitempty"`
	Confidence       float64         `json:"confidence,omitempty"`
	NewReferences    []ReferenceType `json:"new_references,omitempty"`
	CandidateCaseIDs []string        `json:"candidate_case_ids,omitempty"`
}

// ProcessDocumentResult is returned to callers per processed document.
type ProcessDocumentResult struct {
	DocumentID       string        `json:"document_id"`
	CaseID           string        `json:"case_id,omitempty"`
	Action           ResolveAction `json:"action"`
	Completeness     int           `json:"completeness"`
	CandidateCaseIDs []string      `json:"candidate_case_ids,omitempty"`
	Warnings         []string      `json:"warnings,omitempty"`
}

// DocumentOutcome is the per-document result in a batch response. A failed
// document carries its error message; it never aborts the batch.
type DocumentOutcome struct {
	DocumentID string                 `json:"document_id"`
	Result     *ProcessDocumentResult `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// SimilarityCandidate is a scored case proposed by the similarity linker.
type SimilarityCandidate struct {
	CaseID        string  `json:"case_id"`
	Score         float64 `json:"score"`
	EntityOverlap float64 `json:"entity_overlap"`
	Cosine        float64 `json:"cosine"`
}

// OrphanMergeResult summarizes a completed orphan reconciliation.
type OrphanMergeResult struct {
	OrphanCaseID   string `json:"orphan_case_id"`
	TargetCaseID   string `json:"target_case_id"`
	DocumentsMoved int64  `json:"documents_moved"`
	LinksMoved     int64  `json:"links_moved"`
	LinksSkipped   int64  `json:"links_skipped"`
}

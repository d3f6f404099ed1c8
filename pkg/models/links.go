package models

import (
	"encoding/json"
	"time"
)

// CaseEntityLink attaches a canonical entity to a case with a role.
// Unique per (case, entity, role); a repeat sighting is a no-op.
type CaseEntityLink struct {
	ID               string    `json:"id" db:"id"`
	TenantID         string    `json:"tenant_id" db:"tenant_id"`
	CaseID           string    `json:"case_id" db:"case_id"`
	EntityID         string    `json:"entity_id" db:"entity_id"`
	EntityType       EntityType `json:"entity_type" db:"entity_type"`
	Role             string    `json:"role" db:"role"`
	SourceDocumentID string    `json:"source_document_id" db:"source_document_id"`
	Confidence       float64   `json:"confidence" db:"confidence"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Attachment decisions recorded in document_case_links.
const (
	MatchedViaCourt       = "court"
	MatchedViaProsecution = "prosecution"
	MatchedViaPolice      = "police"
	MatchedViaInternal    = "internal"
	MatchedViaSimilarity  = "similarity"
	MatchedViaCreated     = "created"
	MatchedViaOrphan      = "created_orphan"
	MatchedViaConflict    = "conflict"
	MatchedViaOrphanMerge = "orphan_merge"
)

// DocumentCaseLink is the append-only audit record of a document-to-case
// attachment decision. CaseID is null for conflict rows, where the candidate
// case ids live in Detail instead.
type DocumentCaseLink struct {
	ID         string          `json:"id" db:"id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	DocumentID string          `json:"document_id" db:"document_id"`
	CaseID     *string         `json:"case_id,omitempty" db:"case_id"`
	MatchedVia string          `json:"matched_via" db:"matched_via"`
	Confidence float64         `json:"confidence" db:"confidence"`
	Detail     json.RawMessage `json:"detail,omitempty" db:"detail"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// MergeHistoryEntry is the append-only record of a reference value being
// added to a case. Written exactly once per first-time addition.
type MergeHistoryEntry struct {
	ID               string    `json:"id" db:"id"`
	TenantID         string    `json:"tenant_id" db:"tenant_id"`
	CaseID           string    `json:"case_id" db:"case_id"`
	ReferenceType    string    `json:"reference_type" db:"reference_type"`
	Value            string    `json:"value" db:"value"`
	SourceDocumentID string    `json:"source_document_id" db:"source_document_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// CaseEmbedding is the representative embedding vector for a case, used by
// the similarity fallback when no reference matches.
type CaseEmbedding struct {
	CaseID    string    `json:"case_id" db:"case_id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Vector    []float64 `json:"vector" db:"-"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

package models

import (
	"time"
)

// ReferenceType is one of the four independent identifier namespaces a case
// may accumulate as it moves through institutions.
type ReferenceType string

const (
	ReferenceTypeCourt       ReferenceType = "court"
	ReferenceTypeProsecution ReferenceType = "prosecution"
	ReferenceTypePolice      ReferenceType = "police"
	ReferenceTypeInternal    ReferenceType = "internal"
)

// ReferencePriority is the fixed lookup order for case resolution.
// Court numbers are the most authoritative, internal numbers the least.
func ReferencePriority() []ReferenceType {
	return []ReferenceType{
		ReferenceTypeCourt,
		ReferenceTypeProsecution,
		ReferenceTypePolice,
		ReferenceTypeInternal,
	}
}

// ReferenceSet holds the normalized reference values of a document or case.
// A nil field means the reference of that type is not (yet) known.
type ReferenceSet struct {
	Court       *string `json:"court,omitempty"`
	Prosecution *string `json:"prosecution,omitempty"`
	Police      *string `json:"police,omitempty"`
	Internal    *string `json:"internal,omitempty"`
}

// Get returns the value for a reference type, or nil.
func (rs *ReferenceSet) Get(refType ReferenceType) *string {
	switch refType {
	case ReferenceTypeCourt:
		return rs.Court
	case ReferenceTypeProsecution:
		return rs.Prosecution
	case ReferenceTypePolice:
		return rs.Police
	case ReferenceTypeInternal:
		return rs.Internal
	}
	return nil
}

// Set assigns the value for a reference type.
func (rs *ReferenceSet) Set(refType ReferenceType, value *string) {
	switch refType {
	case ReferenceTypeCourt:
		rs.Court = value
	case ReferenceTypeProsecution:
		rs.Prosecution = value
	case ReferenceTypePolice:
		rs.Police = value
	case ReferenceTypeInternal:
		rs.Internal = value
	}
}

// IsEmpty reports whether no reference of any type is known.
func (rs *ReferenceSet) IsEmpty() bool {
	return rs.Court == nil && rs.Prosecution == nil && rs.Police == nil && rs.Internal == nil
}

// Completeness is the count of known reference types.
func (rs *ReferenceSet) Completeness() int {
	count := 0
	for _, refType := range ReferencePriority() {
		if rs.Get(refType) != nil {
			count++
		}
	}
	return count
}

// Case statuses, ordered by lifecycle progression.
const (
	CaseStatusOpen      = "open"
	CaseStatusInTrial   = "in_trial"
	CaseStatusClosed    = "closed"
	CaseStatusDismissed = "dismissed"
	CaseStatusAppealed  = "appealed"
)

// Case is a logical legal case assembled from one or more documents.
// Reference columns are append-only: once set they are never cleared or
// overwritten. is_orphan is true iff all four references are null, in which
// case synthetic_reference carries the generated identifier.
type Case struct {
	ID                    string     `json:"id" db:"id"`
	TenantID              string     `json:"tenant_id" db:"tenant_id"`
	CourtReference        *string    `json:"court_reference,omitempty" db:"court_reference"`
	ProsecutionReference  *string    `json:"prosecution_reference,omitempty" db:"prosecution_reference"`
	PoliceReference       *string    `json:"police_reference,omitempty" db:"police_reference"`
	InternalReference     *string    `json:"internal_reference,omitempty" db:"internal_reference"`
	IsOrphan              bool       `json:"is_orphan" db:"is_orphan"`
	SyntheticReference    *string    `json:"synthetic_reference,omitempty" db:"synthetic_reference"`
	ReferenceCompleteness int        `json:"reference_completeness" db:"reference_completeness"`
	Status                string     `json:"status" db:"status"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt             *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// References returns the case's known references as a set.
func (c *Case) References() ReferenceSet {
	return ReferenceSet{
		Court:       c.CourtReference,
		Prosecution: c.ProsecutionReference,
		Police:      c.PoliceReference,
		Internal:    c.InternalReference,
	}
}

// Reference returns the case's value for one reference type.
func (c *Case) Reference(refType ReferenceType) *string {
	refs := c.References()
	return refs.Get(refType)
}

// CreateCaseRequest is the request for creating a case row.
type CreateCaseRequest struct {
	References         ReferenceSet `json:"references"`
	IsOrphan           bool         `json:"is_orphan"`
	SyntheticReference *string      `json:"synthetic_reference,omitempty"`
	Status             string       `json:"status"`
}

// CaseListResponse is the response for listing cases.
type CaseListResponse struct {
	Items      []Case `json:"items"`
	TotalCount int    `json:"total_count"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}

package models

import (
	"encoding/json"
	"time"
)

// EntityType is the kind of canonical entity.
type EntityType string

const (
	EntityTypeParty    EntityType = "party"
	EntityTypeCharge   EntityType = "charge"
	EntityTypeEvidence EntityType = "evidence"
)

// CanonicalEntity is an identity-stable record for a party, charge, or
// evidence item seen across documents. The signature uniquely determines the
// entity: lookups and inserts are upserts keyed by (tenant, type, signature).
type CanonicalEntity struct {
	ID          string          `json:"id" db:"id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	EntityType  EntityType      `json:"entity_type" db:"entity_type"`
	Signature   string          `json:"signature" db:"signature"`
	DisplayName string          `json:"display_name" db:"display_name"`
	Attributes  json.RawMessage `json:"attributes" db:"attributes"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// UpsertCanonicalEntityRequest is the request for a signature-keyed upsert.
// On a repeat sighting, attributes only widen: known values are never
// overwritten, unknown keys are filled in.
type UpsertCanonicalEntityRequest struct {
	EntityType  EntityType      `json:"entity_type" validate:"required"`
	Signature   string          `json:"signature" validate:"required"`
	DisplayName string          `json:"display_name"`
	Attributes  json.RawMessage `json:"attributes"`
}

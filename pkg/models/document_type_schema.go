package models

import (
	"time"

	"github.com/lib/pq"
)

// DocumentTypeSchema declares the required and optional top-level sections of
// an extracted document, keyed by document type. One schema row replaces
// per-type branching: every type is validated generically against its row.
type DocumentTypeSchema struct {
	ID             string         `json:"id" db:"id"`
	TenantID       string         `json:"tenant_id" db:"tenant_id"`
	DocumentType   string         `json:"document_type" db:"document_type"`
	RequiredFields pq.StringArray `json:"required_fields" db:"required_fields"`
	OptionalFields pq.StringArray `json:"optional_fields" db:"optional_fields"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// CreateDocumentTypeSchemaRequest is the request for registering a schema.
type CreateDocumentTypeSchemaRequest struct {
	DocumentType   string   `json:"document_type" validate:"required"`
	RequiredFields []string `json:"required_fields" validate:"required,min=1"`
	OptionalFields []string `json:"optional_fields,omitempty"`
}

// Package caseerrors defines the error taxonomy of the resolution pipeline.
package caseerrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/lib/pq"
)

// ValidationError rejects a document whose entity set is missing required
// shape. No case mutation occurs.
type ValidationError struct {
	DocumentID string
	Fields     []string
	Message    string
}

func NewValidationError(documentID, msg string, fields ...string) *ValidationError {
	return &ValidationError{
		DocumentID: documentID,
		Fields:     fields,
		Message:    msg,
	}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %v", e.Message, e.Fields)
	}
	return e.Message
}

func (e *ValidationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("document_id", e.DocumentID)
}

// ConflictError signals that a document's references point at two distinct
// existing cases, or that a new value contradicts a stored one. Nothing is
// written beyond an audit note; resolution is manual.
type ConflictError struct {
	CandidateCaseIDs []string
	ReferenceType    string
	Message          string
}

func NewConflictError(msg string, candidateCaseIDs ...string) *ConflictError {
	return &ConflictError{
		CandidateCaseIDs: candidateCaseIDs,
		Message:          msg,
	}
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("candidate_case_ids", e.CandidateCaseIDs)
}

// ConcurrentCreateError is transient: a racing writer created the case row
// first. The matcher retries its lookup inside a fresh transaction.
type ConcurrentCreateError struct {
	ReferenceType string
	Value         string
}

func (e *ConcurrentCreateError) Error() string {
	return fmt.Sprintf("concurrent create for %s reference %q", e.ReferenceType, e.Value)
}

// EntityLimitExceeded is non-fatal: extra entities were dropped with a
// warning and processing continued.
type EntityLimitExceeded struct {
	EntityType string
	Limit      int
	Dropped    int
}

func (e *EntityLimitExceeded) Error() string {
	return fmt.Sprintf("dropped %d %s entities over the limit of %d", e.Dropped, e.EntityType, e.Limit)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsConcurrentCreate(err error) bool {
	var cc *ConcurrentCreateError
	return errors.As(err, &cc)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// SchemaGetter interface for fetching document type schemas
type SchemaGetter interface {
	GetByType(ctx context.Context, tenantID, documentType string) (*models.DocumentTypeSchema, error)
}

// ValidationService validates extracted documents against their document type
// schema. Types without a registered schema only get structural validation.
type ValidationService struct {
	schemaGetter SchemaGetter
	logger       ectologger.Logger
	cache        sync.Map // map[tenantID:documentType]*Validator
}

// NewValidationService creates a new validation service
func NewValidationService(getter SchemaGetter, logger ectologger.Logger) *ValidationService {
	return &ValidationService{
		schemaGetter: getter,
		logger:       logger,
	}
}

// ValidateDocument validates a document's structure and, when the type has a
// registered schema, its required sections.
func (s *ValidationService) ValidateDocument(ctx context.Context, tenantID string, doc models.ExtractedDocument) (ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "schema.ValidationService.ValidateDocument")
	defer span.End()

	result := ValidateStructure(doc)
	if !result.Valid {
		return result, nil
	}

	validator, err := s.getValidator(ctx, tenantID, doc.DocumentType)
	if err != nil {
		return ValidationResult{}, err
	}
	if validator == nil {
		return result, nil
	}

	result = validator.Validate(doc)
	if !result.Valid {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"tenant_id":     tenantID,
			"document_id":   doc.DocumentID,
			"document_type": doc.DocumentType,
			"errors":        len(result.Errors),
		}).Debug("Document validation failed")
	}
	return result, nil
}

// getValidator returns a cached validator, or nil when the type has no schema.
func (s *ValidationService) getValidator(ctx context.Context, tenantID, documentType string) (*Validator, error) {
	cacheKey := fmt.Sprintf("%s:%s", tenantID, documentType)

	if cached, ok := s.cache.Load(cacheKey); ok {
		return cached.(*Validator), nil
	}

	schema, err := s.schemaGetter.GetByType(ctx, tenantID, documentType)
	if err != nil {
		return nil, fmt.Errorf("failed to get document type schema: %w", err)
	}
	if schema == nil {
		return nil, nil
	}

	validator := NewValidator(*schema)
	s.cache.Store(cacheKey, validator)
	return validator, nil
}

// InvalidateCache drops the cached validator for a document type after its
// schema changes.
func (s *ValidationService) InvalidateCache(tenantID, documentType string) {
	s.cache.Delete(fmt.Sprintf("%s:%s", tenantID, documentType))
}

// Service is an alias for ValidationService for use by the processor
type Service = ValidationService

// NewService creates a new validation service (alias for NewValidationService)
func NewService(getter SchemaGetter, logger ectologger.Logger) *Service {
	return NewValidationService(getter, logger)
}

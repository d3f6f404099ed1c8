package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/laurel/pkg/models"
)

// Document sections a schema can require.
const (
	SectionCaseNumbers = "case_numbers"
	SectionParties     = "parties"
	SectionCharges     = "charges"
	SectionEvidence    = "evidence"
	SectionEmbedding   = "embedding"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validating a document
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// FieldNames returns the fields that failed validation.
func (r ValidationResult) FieldNames() []string {
	fields := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	// Report errors by json field name so callers see wire-level names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidateStructure checks the document's baseline shape regardless of type:
// document_id and document_type must be present.
func ValidateStructure(doc models.ExtractedDocument) ValidationResult {
	result := ValidationResult{Valid: true}

	if err := structValidator.Struct(doc); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				result.Valid = false
				result.Errors = append(result.Errors, ValidationError{
					Field:   fe.Field(),
					Message: fmt.Sprintf("failed %s validation", fe.Tag()),
				})
			}
		}
	}
	return result
}

// Validator checks a document against a document type schema. Required
// sections must be present and non-empty; optional and unknown sections pass.
type Validator struct {
	schema models.DocumentTypeSchema
}

// NewValidator creates a validator from a parsed schema row.
func NewValidator(schema models.DocumentTypeSchema) *Validator {
	return &Validator{schema: schema}
}

// Validate checks the document's sections against the schema.
func (v *Validator) Validate(doc models.ExtractedDocument) ValidationResult {
	result := ValidationResult{Valid: true}

	for _, required := range v.schema.RequiredFields {
		if sectionEmpty(doc, required) {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   required,
				Message: "required section is missing or empty",
			})
		}
	}
	return result
}

func sectionEmpty(doc models.ExtractedDocument, section string) bool {
	switch section {
	case SectionCaseNumbers:
		return doc.CaseNumbers == models.RawCaseNumbers{}
	case SectionParties:
		return len(doc.Parties) == 0
	case SectionCharges:
		return len(doc.Charges) == 0
	case SectionEvidence:
		return len(doc.Evidence) == 0
	case SectionEmbedding:
		return len(doc.Embedding) == 0
	default:
		// Unknown section names never fail validation.
		return false
	}
}

package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/laurel/config"
	"github.com/Ramsey-B/laurel/pkg/caseerrors"
	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/schema"
)

type fakeValidator struct {
	invalidFields []string
}

func (v *fakeValidator) ValidateDocument(_ context.Context, _ string, _ models.ExtractedDocument) (schema.ValidationResult, error) {
	if len(v.invalidFields) > 0 {
		result := schema.ValidationResult{Valid: false}
		for _, f := range v.invalidFields {
			result.Errors = append(result.Errors, schema.ValidationError{Field: f, Message: "required"})
		}
		return result, nil
	}
	return schema.ValidationResult{Valid: true}, nil
}

type fakeResolver struct {
	mu      sync.Mutex
	results map[string]*models.ResolveResult
	errs    map[string]error
	calls   []string
}

func (r *fakeResolver) Resolve(_ context.Context, _, documentID string, _ models.ReferenceSet, _ []float64, _ []string) (*models.ResolveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, documentID)
	if err, ok := r.errs[documentID]; ok {
		return nil, err
	}
	if result, ok := r.results[documentID]; ok {
		return result, nil
	}
	return &models.ResolveResult{CaseID: "case-1", Action: models.ResolveActionFound, Confidence: 1.0}, nil
}

type fakeLinker struct {
	mu       sync.Mutex
	warnings []string
	linked   []string
}

func (l *fakeLinker) LinkEntities(_ context.Context, _, caseID, _ string, _ models.ExtractedDocument) ([]string, []string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.linked = append(l.linked, caseID)
	return nil, l.warnings, nil
}

type fakeCaseGetter struct {
	completeness int
}

func (g *fakeCaseGetter) Get(_ context.Context, tenantID, id string) (*models.Case, error) {
	return &models.Case{ID: id, TenantID: tenantID, ReferenceCompleteness: g.completeness}, nil
}

type fakeEmitter struct {
	mu      sync.Mutex
	emitted []*models.ResolveResult
	err     error
}

func (e *fakeEmitter) EmitResolveResult(_ context.Context, _, _ string, result *models.ResolveResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitted = append(e.emitted, result)
	return e.err
}

type fixture struct {
	processor *Processor
	validator *fakeValidator
	resolver  *fakeResolver
	linker    *fakeLinker
	emitter   *fakeEmitter
}

func newFixture() *fixture {
	validator := &fakeValidator{}
	resolver := &fakeResolver{results: map[string]*models.ResolveResult{}, errs: map[string]error{}}
	linker := &fakeLinker{}
	emitter := &fakeEmitter{}
	cfg := &config.Config{BatchWorkerCount: 4}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	p := NewProcessor(validator, resolver, linker, &fakeCaseGetter{completeness: 2}, emitter, nil, cfg, logger)
	return &fixture{processor: p, validator: validator, resolver: resolver, linker: linker, emitter: emitter}
}

func testDocument(id string) models.ExtractedDocument {
	return models.ExtractedDocument{
		DocumentID:   id,
		DocumentType: "judgment",
		CaseNumbers:  models.RawCaseNumbers{CourtNumber: "123/2026"},
		Parties:      []models.Party{{NameAr: "أحمد علي", Role: "accused"}},
	}
}

func TestProcessDocument(t *testing.T) {
	f := newFixture()

	result, err := f.processor.ProcessDocument(context.Background(), "tenant-1", testDocument("doc-1"))
	require.NoError(t, err)
	assert.Equal(t, "case-1", result.CaseID)
	assert.Equal(t, models.ResolveActionFound, result.Action)
	assert.Equal(t, 2, result.Completeness)
	assert.Equal(t, []string{"case-1"}, f.linker.linked)
	require.Len(t, f.emitter.emitted, 1)
}

func TestProcessDocumentInvalid(t *testing.T) {
	f := newFixture()
	f.validator.invalidFields = []string{"document_type"}

	_, err := f.processor.ProcessDocument(context.Background(), "tenant-1", testDocument("doc-1"))
	require.Error(t, err)
	assert.True(t, caseerrors.IsValidation(err))
	assert.Empty(t, f.resolver.calls, "invalid documents must not reach resolution")
	assert.Empty(t, f.linker.linked)
}

func TestProcessDocumentConflictSkipsLinking(t *testing.T) {
	f := newFixture()
	f.resolver.results["doc-1"] = &models.ResolveResult{
		Action:           models.ResolveActionConflict,
		CandidateCaseIDs: []string{"case-1", "case-2"},
	}

	result, err := f.processor.ProcessDocument(context.Background(), "tenant-1", testDocument("doc-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionConflict, result.Action)
	assert.Equal(t, []string{"case-1", "case-2"}, result.CandidateCaseIDs)
	assert.Empty(t, f.linker.linked, "conflicting documents must not link entities")
}

func TestProcessDocumentEmitFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.emitter.err = errors.New("broker unavailable")

	result, err := f.processor.ProcessDocument(context.Background(), "tenant-1", testDocument("doc-1"))
	require.NoError(t, err)
	assert.Equal(t, "case-1", result.CaseID)
}

func TestProcessBatch(t *testing.T) {
	f := newFixture()
	f.resolver.errs["doc-2"] = errors.New("boom")

	docs := []models.ExtractedDocument{
		testDocument("doc-1"),
		testDocument("doc-2"),
		testDocument("doc-3"),
	}

	outcomes := f.processor.ProcessBatch(context.Background(), "tenant-1", docs)
	require.Len(t, outcomes, 3)

	// Outcomes keep input order even under concurrent workers.
	assert.Equal(t, "doc-1", outcomes[0].DocumentID)
	assert.Equal(t, "doc-2", outcomes[1].DocumentID)
	assert.Equal(t, "doc-3", outcomes[2].DocumentID)

	assert.NotNil(t, outcomes[0].Result)
	assert.Empty(t, outcomes[0].Error)
	assert.Nil(t, outcomes[1].Result)
	assert.Contains(t, outcomes[1].Error, "boom")
	assert.NotNil(t, outcomes[2].Result)
}

func TestProcessMessage(t *testing.T) {
	f := newFixture()

	msg := &kafka.IncomingMessage{
		Document: &kafka.DocumentMessage{
			TenantID: "tenant-1",
			Document: testDocument("doc-1"),
		},
	}

	err := f.processor.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, f.resolver.calls)
}

func TestProcessMessageMissingTenantSkipped(t *testing.T) {
	f := newFixture()

	raw, _ := json.Marshal(kafka.DocumentMessage{Document: testDocument("doc-1")})
	msg := &kafka.IncomingMessage{Value: raw}
	require.NoError(t, msg.ParseDocument())

	err := f.processor.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Empty(t, f.resolver.calls)
}

func TestProcessMessageValidationSkipped(t *testing.T) {
	f := newFixture()
	f.validator.invalidFields = []string{"document_id"}

	msg := &kafka.IncomingMessage{
		Document: &kafka.DocumentMessage{
			TenantID: "tenant-1",
			Document: testDocument("doc-1"),
		},
	}

	// Invalid documents are skipped, not retried.
	err := f.processor.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
}

func TestProcessMessageRetriableError(t *testing.T) {
	f := newFixture()
	f.resolver.errs["doc-1"] = errors.New("db down")

	msg := &kafka.IncomingMessage{
		Document: &kafka.DocumentMessage{
			TenantID: "tenant-1",
			Document: testDocument("doc-1"),
		},
	}

	err := f.processor.ProcessMessage(context.Background(), msg)
	require.Error(t, err)
}

package matching

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/laurel/config"
	"github.com/Ramsey-B/laurel/pkg/caseerrors"
	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
)

type fakeTx struct {
	database.Tx
}

func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeDB struct {
	database.DB
}

func (f *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, &fakeTx{}, nil
}

type fakeCaseStore struct {
	cases      map[string]*models.Case
	nextID     int
	orphanSeq  int64
	createErrs []error
}

func newFakeCaseStore() *fakeCaseStore {
	return &fakeCaseStore{cases: map[string]*models.Case{}}
}

func (s *fakeCaseStore) DB() database.DB { return &fakeDB{} }

func (s *fakeCaseStore) FindByReference(_ context.Context, _ string, refType models.ReferenceType, value string) (*models.Case, error) {
	for _, c := range s.cases {
		if ref := c.Reference(refType); ref != nil && *ref == value {
			return c, nil
		}
	}
	return nil, nil
}

func (s *fakeCaseStore) Create(_ context.Context, tenantID string, req models.CreateCaseRequest) (*models.Case, error) {
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	for _, refType := range models.ReferencePriority() {
		if value := req.References.Get(refType); value != nil {
			for _, existing := range s.cases {
				if ref := existing.Reference(refType); ref != nil && *ref == *value {
					return nil, &caseerrors.ConcurrentCreateError{ReferenceType: string(refType), Value: *value}
				}
			}
		}
	}
	s.nextID++
	c := &models.Case{
		ID:                   fmt.Sprintf("case-%d", s.nextID),
		TenantID:             tenantID,
		CourtReference:       req.References.Court,
		ProsecutionReference: req.References.Prosecution,
		PoliceReference:      req.References.Police,
		InternalReference:    req.References.Internal,
		IsOrphan:             req.IsOrphan,
		SyntheticReference:   req.SyntheticReference,
		Status:               req.Status,
	}
	s.cases[c.ID] = c
	return c, nil
}

func (s *fakeCaseStore) SetReference(_ context.Context, _ string, caseID string, refType models.ReferenceType, value string) (bool, error) {
	for _, existing := range s.cases {
		if existing.ID == caseID {
			continue
		}
		if ref := existing.Reference(refType); ref != nil && *ref == value {
			return false, &caseerrors.ConcurrentCreateError{ReferenceType: string(refType), Value: value}
		}
	}
	c := s.cases[caseID]
	if c.Reference(refType) != nil {
		return false, nil
	}
	refs := c.References()
	refs.Set(refType, &value)
	c.CourtReference = refs.Court
	c.ProsecutionReference = refs.Prosecution
	c.PoliceReference = refs.Police
	c.InternalReference = refs.Internal
	c.IsOrphan = false
	c.SyntheticReference = nil
	return true, nil
}

func (s *fakeCaseStore) Touch(_ context.Context, _ string, _ string) error { return nil }

func (s *fakeCaseStore) NextOrphanSequence(_ context.Context) (int64, error) {
	s.orphanSeq++
	return s.orphanSeq, nil
}

func (s *fakeCaseStore) Get(_ context.Context, _ string, id string) (*models.Case, error) {
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s not found", id)
	}
	return c, nil
}

type fakeAudit struct {
	links []models.DocumentCaseLink
}

func (a *fakeAudit) Append(_ context.Context, _ string, link models.DocumentCaseLink) (*models.DocumentCaseLink, error) {
	a.links = append(a.links, link)
	return &link, nil
}

type fakeHistory struct {
	entries []models.MergeHistoryEntry
}

func (h *fakeHistory) Append(_ context.Context, _ string, entry models.MergeHistoryEntry) (*models.MergeHistoryEntry, error) {
	h.entries = append(h.entries, entry)
	return &entry, nil
}

type fakeEmbeddingStore struct {
	vectors map[string][]float64
}

func (e *fakeEmbeddingStore) SetIfAbsent(_ context.Context, _ string, caseID string, vector []float64) (bool, error) {
	if e.vectors == nil {
		e.vectors = map[string][]float64{}
	}
	if _, ok := e.vectors[caseID]; ok || len(vector) == 0 {
		return false, nil
	}
	e.vectors[caseID] = vector
	return true, nil
}

type fakeCandidates struct {
	candidates []models.SimilarityCandidate
}

func (f *fakeCandidates) FindCandidates(_ context.Context, _ string, _ []float64, _ []string) ([]models.SimilarityCandidate, error) {
	return f.candidates, nil
}

type matcherFixture struct {
	matcher    *Matcher
	cases      *fakeCaseStore
	audit      *fakeAudit
	history    *fakeHistory
	embeddings *fakeEmbeddingStore
	similarity *fakeCandidates
}

func newFixture() *matcherFixture {
	f := &matcherFixture{
		cases:      newFakeCaseStore(),
		audit:      &fakeAudit{},
		history:    &fakeHistory{},
		embeddings: &fakeEmbeddingStore{},
		similarity: &fakeCandidates{},
	}
	cfg := &config.Config{ResolveMaxRetries: 3}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	f.matcher = NewMatcher(f.cases, f.audit, f.history, f.embeddings, f.similarity, cfg, logger)
	return f
}

func strPtr(s string) *string { return &s }

func refSet(court, prosecution, police, internal string) models.ReferenceSet {
	var set models.ReferenceSet
	if court != "" {
		set.Court = strPtr(court)
	}
	if prosecution != "" {
		set.Prosecution = strPtr(prosecution)
	}
	if police != "" {
		set.Police = strPtr(police)
	}
	if internal != "" {
		set.Internal = strPtr(internal)
	}
	return set
}

func TestResolveCreatesCaseWithReferences(t *testing.T) {
	f := newFixture()

	result, err := f.matcher.Resolve(context.Background(), "tenant-1", "doc-1", refSet("", "", "p-1/2024", ""), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionCreated, result.Action)
	assert.NotEmpty(t, result.CaseID)

	c := f.cases.cases[result.CaseID]
	require.NotNil(t, c)
	assert.False(t, c.IsOrphan)
	assert.Equal(t, "p-1/2024", *c.PoliceReference)

	require.Len(t, f.history.entries, 1)
	assert.Equal(t, "police", f.history.entries[0].ReferenceType)
	require.Len(t, f.audit.links, 1)
	assert.Equal(t, models.MatchedViaCreated, f.audit.links[0].MatchedVia)
}

func TestResolveSameReferenceFindsSameCase(t *testing.T) {
	f := newFixture()

	first, err := f.matcher.Resolve(context.Background(), "tenant-1", "doc-1", refSet("", "", "p-1/2024", ""), nil, nil)
	require.NoError(t, err)
	second, err := f.matcher.Resolve(context.Background(), "tenant-1", "doc-2", refSet("", "", "p-1/2024", ""), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ResolveActionCreated, first.Action)
	assert.Equal(t, models.ResolveActionFound, second.Action)
	assert.Equal(t, first.CaseID, second.CaseID)
	assert.Len(t, f.cases.cases, 1)
}

func TestResolveMergesNewReferencesAppendOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Police report creates the case with completeness 1.
	first, err := f.matcher.Resolve(ctx, "tenant-1", "doc-1", refSet("", "", "p-1/2024", ""), nil, nil)
	require.NoError(t, err)

	// Indictment carries the police number plus a prosecution number.
	second, err := f.matcher.Resolve(ctx, "tenant-1", "doc-2", refSet("", "r-55/2024", "p-1/2024", ""), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionFound, second.Action)
	assert.Equal(t, first.CaseID, second.CaseID)
	assert.Equal(t, []models.ReferenceType{models.ReferenceTypeProsecution}, second.NewReferences)

	// Judgment adds the court number.
	third, err := f.matcher.Resolve(ctx, "tenant-1", "doc-3", refSet("c-7/2024", "r-55/2024", "", ""), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionFound, third.Action)
	assert.Equal(t, first.CaseID, third.CaseID)

	c := f.cases.cases[first.CaseID]
	refs := c.References()
	assert.Equal(t, 3, refs.Completeness())
	assert.Equal(t, "p-1/2024", *c.PoliceReference)
	assert.Equal(t, "r-55/2024", *c.ProsecutionReference)
	assert.Equal(t, "c-7/2024", *c.CourtReference)

	// One history row per reference addition.
	assert.Len(t, f.history.entries, 3)
}

func TestResolveCrossReferenceConflict(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	x, err := f.matcher.Resolve(ctx, "tenant-1", "doc-1", refSet("c-1", "", "", ""), nil, nil)
	require.NoError(t, err)
	y, err := f.matcher.Resolve(ctx, "tenant-1", "doc-2", refSet("", "", "p-9", ""), nil, nil)
	require.NoError(t, err)

	result, err := f.matcher.Resolve(ctx, "tenant-1", "doc-3", refSet("c-1", "", "p-9", ""), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionConflict, result.Action)
	assert.ElementsMatch(t, []string{x.CaseID, y.CaseID}, result.CandidateCaseIDs)
	assert.Empty(t, result.CaseID)

	// No third case was created; the audit note is the only write.
	assert.Len(t, f.cases.cases, 2)
	last := f.audit.links[len(f.audit.links)-1]
	assert.Equal(t, models.MatchedViaConflict, last.MatchedVia)
	assert.Nil(t, last.CaseID)
}

func TestResolveValueDisagreementConflict(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.matcher.Resolve(ctx, "tenant-1", "doc-1", refSet("c-1", "r-5", "", ""), nil, nil)
	require.NoError(t, err)

	// Same prosecution number but a different court number.
	result, err := f.matcher.Resolve(ctx, "tenant-1", "doc-2", refSet("c-9", "r-5", "", ""), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionConflict, result.Action)

	// Stored value is untouched.
	assert.Equal(t, "c-1", *f.cases.cases[first.CaseID].CourtReference)
}

func TestResolveSimilarityAttach(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	seed, err := f.matcher.Resolve(ctx, "tenant-1", "doc-1", refSet("c-1", "", "", ""), []float64{1, 0, 0}, nil)
	require.NoError(t, err)

	f.similarity.candidates = []models.SimilarityCandidate{
		{CaseID: seed.CaseID, Score: 0.91, Cosine: 0.91},
	}

	result, err := f.matcher.Resolve(ctx, "tenant-1", "doc-2", models.ReferenceSet{}, []float64{1, 0.1, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionFound, result.Action)
	assert.Equal(t, seed.CaseID, result.CaseID)
	assert.Equal(t, models.MatchedViaSimilarity, result.MatchedVia)
	assert.InDelta(t, 0.91, result.Confidence, 1e-9)
}

func TestResolveLowSimilarityCreatesOrphan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Linker returns nothing below threshold.
	f.similarity.candidates = nil

	result, err := f.matcher.Resolve(ctx, "tenant-1", "doc-1", models.ReferenceSet{}, []float64{0, 1, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionCreatedOrphan, result.Action)

	c := f.cases.cases[result.CaseID]
	require.NotNil(t, c)
	assert.True(t, c.IsOrphan)
	require.NotNil(t, c.SyntheticReference)
	assert.Regexp(t, regexp.MustCompile(`^ORPHAN-\d{4}-\d{6}$`), *c.SyntheticReference)
}

func TestResolveOrphanGainsReferenceDropsSynthetic(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	orphan, err := f.matcher.Resolve(ctx, "tenant-1", "doc-1", models.ReferenceSet{}, []float64{0, 1, 0}, nil)
	require.NoError(t, err)
	require.Equal(t, models.ResolveActionCreatedOrphan, orphan.Action)

	f.similarity.candidates = []models.SimilarityCandidate{
		{CaseID: orphan.CaseID, Score: 0.92},
	}

	// A document with a real reference matches the orphan; the case leaves
	// the orphan state and the synthetic reference goes with it.
	result, err := f.matcher.Resolve(ctx, "tenant-1", "doc-2", refSet("c-9/2024", "", "", ""), []float64{0, 1, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, orphan.CaseID, result.CaseID)

	c := f.cases.cases[orphan.CaseID]
	require.NotNil(t, c)
	assert.False(t, c.IsOrphan)
	assert.Nil(t, c.SyntheticReference)
	require.NotNil(t, c.CourtReference)
	assert.Equal(t, "c-9/2024", *c.CourtReference)
}

func TestResolveAmbiguousSimilarityCreates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.matcher.Resolve(ctx, "tenant-1", "doc-1", refSet("c-1", "", "", ""), []float64{1, 0, 0}, nil)
	require.NoError(t, err)
	b, err := f.matcher.Resolve(ctx, "tenant-1", "doc-2", refSet("c-2", "", "", ""), []float64{1, 0, 0}, nil)
	require.NoError(t, err)

	// Two candidates above threshold is ambiguous; a new case is created.
	f.similarity.candidates = []models.SimilarityCandidate{
		{CaseID: a.CaseID, Score: 0.9},
		{CaseID: b.CaseID, Score: 0.85},
	}

	result, err := f.matcher.Resolve(ctx, "tenant-1", "doc-3", models.ReferenceSet{}, []float64{1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionCreatedOrphan, result.Action)
	assert.NotEqual(t, a.CaseID, result.CaseID)
	assert.NotEqual(t, b.CaseID, result.CaseID)
}

func TestResolveSimilarityContradictedByReference(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	seed, err := f.matcher.Resolve(ctx, "tenant-1", "doc-1", refSet("c-1", "", "", ""), []float64{1, 0, 0}, nil)
	require.NoError(t, err)

	f.similarity.candidates = []models.SimilarityCandidate{
		{CaseID: seed.CaseID, Score: 0.95},
	}

	// Document carries a court number that disagrees with the candidate's.
	result, err := f.matcher.Resolve(ctx, "tenant-1", "doc-2", refSet("c-other", "", "", ""), []float64{1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionCreated, result.Action)
	assert.NotEqual(t, seed.CaseID, result.CaseID)
}

func TestResolveRetriesOnConcurrentCreate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// First create attempt loses the race; the retry re-runs the whole
	// resolution in a fresh transaction and succeeds.
	f.cases.createErrs = []error{&caseerrors.ConcurrentCreateError{ReferenceType: "police", Value: "p-1"}}

	result, err := f.matcher.Resolve(ctx, "tenant-1", "doc-1", refSet("", "", "p-1", ""), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveActionCreated, result.Action)
	assert.Len(t, f.cases.cases, 1)
}

func TestResolveExhaustedRetries(t *testing.T) {
	f := newFixture()
	f.cases.createErrs = []error{
		&caseerrors.ConcurrentCreateError{},
		&caseerrors.ConcurrentCreateError{},
		&caseerrors.ConcurrentCreateError{},
		&caseerrors.ConcurrentCreateError{},
	}

	// Nothing to find and every create loses: resolution gives up.
	_, err := f.matcher.Resolve(context.Background(), "tenant-1", "doc-1", refSet("c-1", "", "", ""), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
}

func TestSyntheticReferenceFormat(t *testing.T) {
	assert.Equal(t, "ORPHAN-2026-000001", SyntheticReference(2026, 1))
	assert.Equal(t, "ORPHAN-2026-123456", SyntheticReference(2026, 123456))
}

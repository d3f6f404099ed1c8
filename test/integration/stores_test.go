package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/laurel/internal/repositories/canonicalentity"
	"github.com/Ramsey-B/laurel/pkg/caseerrors"
	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
)

// The in-memory stores below stand in for the Postgres repositories so the
// full pipeline (processor, matcher, deduplicator, reconciler) can run
// end-to-end in one process. They enforce the same uniqueness rules the
// schema does.

type memTx struct {
	database.Tx
	committed  bool
	rolledBack bool
}

func (t *memTx) Commit(ctx context.Context) error { t.committed = true; return nil }
func (t *memTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type memDB struct {
	database.DB
}

func (d *memDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, &memTx{}, nil
}

type memCaseStore struct {
	mu        sync.Mutex
	db        *memDB
	cases     map[string]*models.Case
	refIndex  map[string]string // refType:value -> caseID
	orphanSeq int64
}

func newMemCaseStore() *memCaseStore {
	return &memCaseStore{
		db:       &memDB{},
		cases:    map[string]*models.Case{},
		refIndex: map[string]string{},
	}
}

func refKey(refType models.ReferenceType, value string) string {
	return string(refType) + ":" + value
}

func (s *memCaseStore) DB() database.DB { return s.db }

func (s *memCaseStore) FindByReference(_ context.Context, _ string, refType models.ReferenceType, value string) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.refIndex[refKey(refType, value)]; ok {
		copied := *s.cases[id]
		return &copied, nil
	}
	return nil, nil
}

func (s *memCaseStore) Create(_ context.Context, tenantID string, req models.CreateCaseRequest) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, refType := range models.ReferencePriority() {
		if value := req.References.Get(refType); value != nil {
			if _, ok := s.refIndex[refKey(refType, *value)]; ok {
				return nil, &caseerrors.ConcurrentCreateError{ReferenceType: string(refType), Value: *value}
			}
		}
	}

	now := time.Now().UTC()
	c := &models.Case{
		ID:                    uuid.New().String(),
		TenantID:              tenantID,
		CourtReference:        req.References.Court,
		ProsecutionReference:  req.References.Prosecution,
		PoliceReference:       req.References.Police,
		InternalReference:     req.References.Internal,
		IsOrphan:              req.IsOrphan,
		SyntheticReference:    req.SyntheticReference,
		ReferenceCompleteness: req.References.Completeness(),
		Status:                req.Status,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.cases[c.ID] = c
	for _, refType := range models.ReferencePriority() {
		if value := req.References.Get(refType); value != nil {
			s.refIndex[refKey(refType, *value)] = c.ID
		}
	}
	copied := *c
	return &copied, nil
}

func (s *memCaseStore) SetReference(_ context.Context, _ string, caseID string, refType models.ReferenceType, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[caseID]
	if !ok {
		return false, httperror.NewHTTPErrorf(http.StatusNotFound, "case %s not found", caseID)
	}
	if c.Reference(refType) != nil {
		return false, nil
	}
	if existing, ok := s.refIndex[refKey(refType, value)]; ok && existing != caseID {
		return false, &caseerrors.ConcurrentCreateError{ReferenceType: string(refType), Value: value}
	}

	v := value
	refs := c.References()
	refs.Set(refType, &v)
	c.CourtReference = refs.Court
	c.ProsecutionReference = refs.Prosecution
	c.PoliceReference = refs.Police
	c.InternalReference = refs.Internal
	c.IsOrphan = false
	c.SyntheticReference = nil
	c.ReferenceCompleteness = refs.Completeness()
	c.UpdatedAt = time.Now().UTC()
	s.refIndex[refKey(refType, value)] = caseID
	return true, nil
}

func (s *memCaseStore) Touch(_ context.Context, _ string, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cases[caseID]; ok {
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *memCaseStore) NextOrphanSequence(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orphanSeq++
	return s.orphanSeq, nil
}

func (s *memCaseStore) Get(_ context.Context, _ string, id string) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "case %s not found", id)
	}
	copied := *c
	return &copied, nil
}

func (s *memCaseStore) Delete(_ context.Context, _ string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[id]; !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "case %s not found", id)
	}
	for key, owner := range s.refIndex {
		if owner == id {
			delete(s.refIndex, key)
		}
	}
	delete(s.cases, id)
	return nil
}

func (s *memCaseStore) List(_ context.Context, _ string, isOrphan *bool, status *string, page, pageSize int) (*models.CaseListResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Case
	for _, c := range s.cases {
		if isOrphan != nil && c.IsOrphan != *isOrphan {
			continue
		}
		if status != nil && c.Status != *status {
			continue
		}
		items = append(items, *c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return &models.CaseListResponse{Items: items, TotalCount: len(items), Page: page, PageSize: pageSize}, nil
}

type memAuditStore struct {
	mu    sync.Mutex
	links []models.DocumentCaseLink
}

func (s *memAuditStore) Append(_ context.Context, tenantID string, link models.DocumentCaseLink) (*models.DocumentCaseLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link.ID = uuid.New().String()
	link.TenantID = tenantID
	link.CreatedAt = time.Now().UTC()
	s.links = append(s.links, link)
	return &link, nil
}

func (s *memAuditStore) ReassignCase(_ context.Context, _ string, fromCaseID, toCaseID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved int64
	for i := range s.links {
		if s.links[i].CaseID != nil && *s.links[i].CaseID == fromCaseID {
			to := toCaseID
			s.links[i].CaseID = &to
			moved++
		}
	}
	return moved, nil
}

func (s *memAuditStore) byCase(caseID string) []models.DocumentCaseLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DocumentCaseLink
	for _, link := range s.links {
		if link.CaseID != nil && *link.CaseID == caseID {
			out = append(out, link)
		}
	}
	return out
}

func (s *memAuditStore) conflicts() []models.DocumentCaseLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DocumentCaseLink
	for _, link := range s.links {
		if link.MatchedVia == models.MatchedViaConflict {
			out = append(out, link)
		}
	}
	return out
}

type memHistoryStore struct {
	mu      sync.Mutex
	entries []models.MergeHistoryEntry
}

func (s *memHistoryStore) Append(_ context.Context, tenantID string, entry models.MergeHistoryEntry) (*models.MergeHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uuid.New().String()
	entry.TenantID = tenantID
	entry.CreatedAt = time.Now().UTC()
	s.entries = append(s.entries, entry)
	return &entry, nil
}

func (s *memHistoryStore) ReassignCase(_ context.Context, _ string, fromCaseID, toCaseID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved int64
	for i := range s.entries {
		if s.entries[i].CaseID == fromCaseID {
			s.entries[i].CaseID = toCaseID
			moved++
		}
	}
	return moved, nil
}

type memEmbeddingStore struct {
	mu      sync.Mutex
	vectors map[string][]float64
}

func newMemEmbeddingStore() *memEmbeddingStore {
	return &memEmbeddingStore{vectors: map[string][]float64{}}
}

func (s *memEmbeddingStore) SetIfAbsent(_ context.Context, _ string, caseID string, vector []float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(vector) == 0 {
		return false, nil
	}
	if _, ok := s.vectors[caseID]; ok {
		return false, nil
	}
	s.vectors[caseID] = vector
	return true, nil
}

func (s *memEmbeddingStore) MoveToCase(_ context.Context, _ string, fromCaseID, toCaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vector, ok := s.vectors[fromCaseID]; ok {
		if _, exists := s.vectors[toCaseID]; !exists {
			s.vectors[toCaseID] = vector
		}
		delete(s.vectors, fromCaseID)
	}
	return nil
}

type memCandidateFinder struct {
	candidates []models.SimilarityCandidate
}

func (f *memCandidateFinder) FindCandidates(_ context.Context, _ string, _ []float64, _ []string) ([]models.SimilarityCandidate, error) {
	return f.candidates, nil
}

type memEntityStore struct {
	mu       sync.Mutex
	entities map[string]*models.CanonicalEntity // entityType:signature -> entity
	nextID   int
}

func newMemEntityStore() *memEntityStore {
	return &memEntityStore{entities: map[string]*models.CanonicalEntity{}}
}

func (s *memEntityStore) Upsert(_ context.Context, tenantID string, req models.UpsertCanonicalEntityRequest) (*canonicalentity.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(req.EntityType) + ":" + req.Signature
	if existing, ok := s.entities[key]; ok {
		return &canonicalentity.UpsertResult{Entity: existing, IsNew: false}, nil
	}
	s.nextID++
	entity := &models.CanonicalEntity{
		ID:          fmt.Sprintf("entity-%d", s.nextID),
		TenantID:    tenantID,
		EntityType:  req.EntityType,
		Signature:   req.Signature,
		DisplayName: req.DisplayName,
		Attributes:  req.Attributes,
	}
	s.entities[key] = entity
	return &canonicalentity.UpsertResult{Entity: entity, IsNew: true}, nil
}

type memLinkStore struct {
	mu    sync.Mutex
	links map[string]models.CaseEntityLink // caseID:entityID:role
}

func newMemLinkStore() *memLinkStore {
	return &memLinkStore{links: map[string]models.CaseEntityLink{}}
}

func (s *memLinkStore) Link(_ context.Context, _ string, link models.CaseEntityLink) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := link.CaseID + ":" + link.EntityID + ":" + link.Role
	if _, ok := s.links[key]; ok {
		return false, nil
	}
	s.links[key] = link
	return true, nil
}

func (s *memLinkStore) MoveToCase(_ context.Context, _ string, fromCaseID, toCaseID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved, skipped int64
	for key, link := range s.links {
		if link.CaseID != fromCaseID {
			continue
		}
		newKey := toCaseID + ":" + link.EntityID + ":" + link.Role
		if _, exists := s.links[newKey]; exists {
			skipped++
		} else {
			link.CaseID = toCaseID
			s.links[newKey] = link
			moved++
		}
		delete(s.links, key)
	}
	return moved, skipped, nil
}

func (s *memLinkStore) countByCase(caseID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, link := range s.links {
		if link.CaseID == caseID {
			count++
		}
	}
	return count
}

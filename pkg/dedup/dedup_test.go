package dedup

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/laurel/config"
	"github.com/Ramsey-B/laurel/internal/repositories/canonicalentity"
	"github.com/Ramsey-B/laurel/pkg/models"
)

type fakeEntityStore struct {
	entities map[string]*models.CanonicalEntity // keyed by type:signature
	nextID   int
	upserts  int
}

func (s *fakeEntityStore) Upsert(_ context.Context, tenantID string, req models.UpsertCanonicalEntityRequest) (*canonicalentity.UpsertResult, error) {
	s.upserts++
	if s.entities == nil {
		s.entities = map[string]*models.CanonicalEntity{}
	}
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

type fakeLinkStore struct {
	links map[string]models.CaseEntityLink // keyed by case:entity:role
}

func (s *fakeLinkStore) Link(_ context.Context, _ string, link models.CaseEntityLink) (bool, error) {
	if s.links == nil {
		s.links = map[string]models.CaseEntityLink{}
	}
	key := link.CaseID + ":" + link.EntityID + ":" + link.Role
	if _, ok := s.links[key]; ok {
		return false, nil
	}
	s.links[key] = link
	return true, nil
}

type fakeLinkEmitter struct {
	emitted []models.CaseEntityLink
	err     error
}

func (e *fakeLinkEmitter) EmitEntityLinked(_ context.Context, _ string, link models.CaseEntityLink) error {
	if e.err != nil {
		return e.err
	}
	e.emitted = append(e.emitted, link)
	return nil
}

func newTestDeduplicator(entities *fakeEntityStore, links *fakeLinkStore) *Deduplicator {
	cfg := &config.Config{
		MaxPartiesPerDocument:  100,
		MaxChargesPerDocument:  50,
		MaxEvidencePerDocument: 100,
	}
	return NewDeduplicator(entities, links, cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func strPtr(s string) *string { return &s }

func TestLinkEntitiesDeduplicatesBySignature(t *testing.T) {
	entities := &fakeEntityStore{}
	links := &fakeLinkStore{}
	d := newTestDeduplicator(entities, links)

	doc := models.ExtractedDocument{
		DocumentID: "doc-1",
		Parties: []models.Party{
			{NameAr: "أحمد علي", Role: "accused"},
			{NameAr: "أَحمد  علي", Role: "accused"}, // same person, noisier extraction
		},
	}

	signatures, warnings, err := d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-1", doc)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Len(t, signatures, 2)
	assert.Equal(t, signatures[0], signatures[1])
	assert.Len(t, entities.entities, 1)
	assert.Len(t, links.links, 1)
}

func TestLinkEntitiesIdempotent(t *testing.T) {
	entities := &fakeEntityStore{}
	links := &fakeLinkStore{}
	d := newTestDeduplicator(entities, links)

	doc := models.ExtractedDocument{
		DocumentID: "doc-1",
		Parties:    []models.Party{{PersonalID: strPtr("784-1"), NameAr: "أحمد", Role: "accused"}},
		Charges:    []models.Charge{{ArticleNumber: strPtr("399"), DescriptionAr: "احتيال"}},
		Evidence:   []models.Evidence{{Type: "document", DescriptionAr: "عقد"}},
	}

	_, _, err := d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-1", doc)
	require.NoError(t, err)
	_, _, err = d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-1", doc)
	require.NoError(t, err)

	assert.Len(t, entities.entities, 3)
	assert.Len(t, links.links, 3)
}

func TestLinkEntitiesEmitsOnlyNewLinks(t *testing.T) {
	entities := &fakeEntityStore{}
	links := &fakeLinkStore{}
	emitter := &fakeLinkEmitter{}
	d := newTestDeduplicator(entities, links).WithEmitter(emitter)

	doc := models.ExtractedDocument{
		DocumentID: "doc-1",
		Parties:    []models.Party{{PersonalID: strPtr("784-1"), NameAr: "أحمد", Role: "accused"}},
	}

	_, _, err := d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-1", doc)
	require.NoError(t, err)
	_, _, err = d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-1", doc)
	require.NoError(t, err)

	require.Len(t, emitter.emitted, 1)
	assert.Equal(t, "case-1", emitter.emitted[0].CaseID)

	// Emit failures never fail the link.
	emitter.err = fmt.Errorf("broker down")
	doc.Parties[0].Role = "witness"
	_, _, err = d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-1", doc)
	require.NoError(t, err)
}

func TestLinkEntitiesSameEntityDifferentRoles(t *testing.T) {
	entities := &fakeEntityStore{}
	links := &fakeLinkStore{}
	d := newTestDeduplicator(entities, links)

	doc := models.ExtractedDocument{
		DocumentID: "doc-1",
		Parties: []models.Party{
			{PersonalID: strPtr("784-1"), Role: "witness"},
			{PersonalID: strPtr("784-1"), Role: "victim"},
		},
	}

	_, _, err := d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-1", doc)
	require.NoError(t, err)

	assert.Len(t, entities.entities, 1)
	assert.Len(t, links.links, 2)
}

func TestLinkEntitiesSkipsUnidentifiable(t *testing.T) {
	entities := &fakeEntityStore{}
	links := &fakeLinkStore{}
	d := newTestDeduplicator(entities, links)

	doc := models.ExtractedDocument{
		DocumentID: "doc-1",
		Parties:    []models.Party{{Role: "accused"}}, // no id, no names
		Evidence:   []models.Evidence{{Type: "photo"}}, // type alone is not identity
	}

	signatures, warnings, err := d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-1", doc)
	require.NoError(t, err)
	assert.Empty(t, signatures)
	assert.Empty(t, warnings)
	assert.Zero(t, len(links.links))
}

func TestLinkEntitiesTruncatesOverLimit(t *testing.T) {
	entities := &fakeEntityStore{}
	links := &fakeLinkStore{}
	d := NewDeduplicator(entities, links, &config.Config{
		MaxPartiesPerDocument:  2,
		MaxChargesPerDocument:  50,
		MaxEvidencePerDocument: 100,
	}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	doc := models.ExtractedDocument{
		DocumentID: "doc-1",
		Parties: []models.Party{
			{PersonalID: strPtr("id-1"), Role: "accused"},
			{PersonalID: strPtr("id-2"), Role: "accused"},
			{PersonalID: strPtr("id-3"), Role: "accused"},
			{PersonalID: strPtr("id-4"), Role: "accused"},
		},
	}

	signatures, warnings, err := d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-1", doc)
	require.NoError(t, err)
	assert.Len(t, signatures, 2)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "dropped 2 party entities")
	assert.Len(t, links.links, 2)
}

func TestLinkEntitiesWidensAttributes(t *testing.T) {
	entities := &fakeEntityStore{}
	links := &fakeLinkStore{}
	d := newTestDeduplicator(entities, links)

	first := models.ExtractedDocument{
		DocumentID: "doc-1",
		Parties:    []models.Party{{PersonalID: strPtr("784-1"), NameAr: "أحمد", Role: "accused"}},
	}
	_, _, err := d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-1", first)
	require.NoError(t, err)

	// Second sighting of the same person under a different role links again
	// but reuses the canonical entity.
	second := models.ExtractedDocument{
		DocumentID: "doc-2",
		Parties:    []models.Party{{PersonalID: strPtr("784-1"), NameEn: "Ahmed", Nationality: strPtr("AE"), Role: "witness"}},
	}
	_, _, err = d.LinkEntities(context.Background(), "tenant-1", "case-1", "doc-2", second)
	require.NoError(t, err)

	assert.Len(t, entities.entities, 1)
	assert.Len(t, links.links, 2)
	assert.Equal(t, 2, entities.upserts)
}

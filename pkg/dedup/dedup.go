// Package dedup links the parties, charges, and evidence mentioned in a
// document to its resolved case as canonical, signature-keyed entities.
// Re-processing the same document is a no-op: upserts widen attributes and
// link rows are unique per (case, entity, role).
package dedup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/config"
	"github.com/Ramsey-B/laurel/internal/repositories/canonicalentity"
	"github.com/Ramsey-B/laurel/pkg/caseerrors"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/signature"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// Roles for non-party links.
const (
	RoleCharge   = "charge"
	RoleEvidence = "evidence"
)

// EntityStore upserts canonical entities by signature.
type EntityStore interface {
	Upsert(ctx context.Context, tenantID string, req models.UpsertCanonicalEntityRequest) (*canonicalentity.UpsertResult, error)
}

// LinkStore writes case-to-entity links.
type LinkStore interface {
	Link(ctx context.Context, tenantID string, link models.CaseEntityLink) (bool, error)
}

// LinkEmitter publishes entity.linked events for newly written links.
type LinkEmitter interface {
	EmitEntityLinked(ctx context.Context, tenantID string, link models.CaseEntityLink) error
}

// Deduplicator links a document's entity set to its case.
type Deduplicator struct {
	entities EntityStore
	links    LinkStore
	emitter  LinkEmitter
	cfg      *config.Config
	logger   ectologger.Logger
}

// NewDeduplicator creates a new entity deduplicator
func NewDeduplicator(entities EntityStore, links LinkStore, cfg *config.Config, logger ectologger.Logger) *Deduplicator {
	return &Deduplicator{
		entities: entities,
		links:    links,
		cfg:      cfg,
		logger:   logger,
	}
}

// WithEmitter enables entity.linked events for links written after the link
// row commits. Emission is best effort.
func (d *Deduplicator) WithEmitter(emitter LinkEmitter) *Deduplicator {
	d.emitter = emitter
	return d
}

// LinkEntities upserts and links every entity in the document that has a
// usable signature. Entities beyond the per-document limits are dropped with
// a warning; entities without a signature are skipped silently. Returns the
// signatures linked and any warnings.
func (d *Deduplicator) LinkEntities(ctx context.Context, tenantID, caseID, documentID string, doc models.ExtractedDocument) ([]string, []string, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Deduplicator.LinkEntities")
	defer span.End()

	var signatures []string
	var warnings []string

	parties, warning := truncate(doc.Parties, d.cfg.MaxPartiesPerDocument, string(models.EntityTypeParty))
	if warning != nil {
		warnings = append(warnings, warning.Error())
		d.logger.WithContext(ctx).WithFields(map[string]any{"document_id": documentID}).Warn(warning.Error())
	}
	for _, party := range parties {
		sig, ok := signature.Party(party)
		if !ok {
			continue
		}
		role := party.Role
		if role == "" {
			role = "unknown"
		}
		if err := d.linkOne(ctx, tenantID, caseID, documentID, models.UpsertCanonicalEntityRequest{
			EntityType:  models.EntityTypeParty,
			Signature:   sig,
			DisplayName: signature.DisplayName(party.NameAr, party.NameEn),
			Attributes:  partyAttributes(party),
		}, role); err != nil {
			return nil, nil, err
		}
		signatures = append(signatures, sig)
	}

	charges, warning := truncate(doc.Charges, d.cfg.MaxChargesPerDocument, string(models.EntityTypeCharge))
	if warning != nil {
		warnings = append(warnings, warning.Error())
		d.logger.WithContext(ctx).WithFields(map[string]any{"document_id": documentID}).Warn(warning.Error())
	}
	for _, charge := range charges {
		sig, ok := signature.Charge(charge)
		if !ok {
			continue
		}
		if err := d.linkOne(ctx, tenantID, caseID, documentID, models.UpsertCanonicalEntityRequest{
			EntityType:  models.EntityTypeCharge,
			Signature:   sig,
			DisplayName: signature.DisplayName(charge.DescriptionAr, charge.DescriptionEn),
			Attributes:  chargeAttributes(charge),
		}, RoleCharge); err != nil {
			return nil, nil, err
		}
		signatures = append(signatures, sig)
	}

	evidence, warning := truncate(doc.Evidence, d.cfg.MaxEvidencePerDocument, string(models.EntityTypeEvidence))
	if warning != nil {
		warnings = append(warnings, warning.Error())
		d.logger.WithContext(ctx).WithFields(map[string]any{"document_id": documentID}).Warn(warning.Error())
	}
	for _, item := range evidence {
		sig, ok := signature.Evidence(item)
		if !ok {
			continue
		}
		if err := d.linkOne(ctx, tenantID, caseID, documentID, models.UpsertCanonicalEntityRequest{
			EntityType:  models.EntityTypeEvidence,
			Signature:   sig,
			DisplayName: signature.DisplayName(item.DescriptionAr, item.DescriptionEn),
			Attributes:  evidenceAttributes(item),
		}, RoleEvidence); err != nil {
			return nil, nil, err
		}
		signatures = append(signatures, sig)
	}

	return signatures, warnings, nil
}

func (d *Deduplicator) linkOne(ctx context.Context, tenantID, caseID, documentID string, req models.UpsertCanonicalEntityRequest, role string) error {
	result, err := d.entities.Upsert(ctx, tenantID, req)
	if err != nil {
		return err
	}
	link := models.CaseEntityLink{
		CaseID:           caseID,
		EntityID:         result.Entity.ID,
		EntityType:       req.EntityType,
		Role:             role,
		SourceDocumentID: documentID,
		Confidence:       1.0,
	}
	created, err := d.links.Link(ctx, tenantID, link)
	if err != nil {
		return err
	}

	if created && d.emitter != nil {
		if err := d.emitter.EmitEntityLinked(ctx, tenantID, link); err != nil {
			d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"case_id": caseID, "entity_id": link.EntityID}).Error("Failed to emit entity.linked event")
		}
	}
	return nil
}

func truncate[T any](items []T, limit int, entityType string) ([]T, error) {
	if limit <= 0 || len(items) <= limit {
		return items, nil
	}
	return items[:limit], &caseerrors.EntityLimitExceeded{
		EntityType: entityType,
		Limit:      limit,
		Dropped:    len(items) - limit,
	}
}

func partyAttributes(p models.Party) json.RawMessage {
	attrs := map[string]any{}
	if p.PersonalID != nil {
		attrs["personal_id"] = *p.PersonalID
	}
	if p.NameAr != "" {
		attrs["name_ar"] = p.NameAr
	}
	if p.NameEn != "" {
		attrs["name_en"] = p.NameEn
	}
	if p.Nationality != nil {
		attrs["nationality"] = *p.Nationality
	}
	if p.Age != nil {
		attrs["age"] = *p.Age
	}
	return mustMarshal(attrs)
}

func chargeAttributes(c models.Charge) json.RawMessage {
	attrs := map[string]any{}
	if c.ArticleNumber != nil {
		attrs["article_number"] = *c.ArticleNumber
	}
	if c.DescriptionAr != "" {
		attrs["description_ar"] = c.DescriptionAr
	}
	if c.DescriptionEn != "" {
		attrs["description_en"] = c.DescriptionEn
	}
	if c.LawReference != nil {
		attrs["law_reference"] = *c.LawReference
	}
	if c.Status != "" {
		attrs["status"] = c.Status
	}
	return mustMarshal(attrs)
}

func evidenceAttributes(e models.Evidence) json.RawMessage {
	attrs := map[string]any{}
	if e.Type != "" {
		attrs["type"] = e.Type
	}
	if e.DescriptionAr != "" {
		attrs["description_ar"] = e.DescriptionAr
	}
	if e.DescriptionEn != "" {
		attrs["description_en"] = e.DescriptionEn
	}
	return mustMarshal(attrs)
}

func mustMarshal(v map[string]any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal attributes: %v", err))
	}
	return data
}

// Package processor runs the per-document resolution pipeline: validate the
// extracted entity set, normalize its references, resolve the owning case,
// then link the document's entities to that case.
package processor

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/config"
	"github.com/Ramsey-B/laurel/pkg/caseerrors"
	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/references"
	"github.com/Ramsey-B/laurel/pkg/schema"
	"github.com/Ramsey-B/laurel/pkg/signature"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// Resolver finds or creates the owning case for a document.
type Resolver interface {
	Resolve(ctx context.Context, tenantID, documentID string, refs models.ReferenceSet, embedding []float64, docSignatures []string) (*models.ResolveResult, error)
}

// EntityLinker links a document's entity set to its resolved case.
type EntityLinker interface {
	LinkEntities(ctx context.Context, tenantID, caseID, documentID string, doc models.ExtractedDocument) ([]string, []string, error)
}

// DocumentValidator validates a document's structure and tenant schema.
type DocumentValidator interface {
	ValidateDocument(ctx context.Context, tenantID string, doc models.ExtractedDocument) (schema.ValidationResult, error)
}

// CaseGetter loads a case by id.
type CaseGetter interface {
	Get(ctx context.Context, tenantID, id string) (*models.Case, error)
}

// EventEmitter publishes resolution outcomes.
type EventEmitter interface {
	EmitResolveResult(ctx context.Context, tenantID, documentID string, result *models.ResolveResult) error
}

// GraphProjector mirrors resolved documents into the graph read model.
type GraphProjector interface {
	ProjectDocument(ctx context.Context, tenantID, caseID string, doc models.ExtractedDocument) error
}

// Processor handles document processing for the resolution pipeline
type Processor struct {
	schemaService DocumentValidator
	resolver      Resolver
	linker        EntityLinker
	cases         CaseGetter
	emitter       EventEmitter
	projector     GraphProjector
	cfg           *config.Config
	logger        ectologger.Logger
}

// NewProcessor creates a new document processor. emitter and projector are
// optional; pass nil when Kafka or the graph database is disabled.
func NewProcessor(
	schemaService DocumentValidator,
	resolver Resolver,
	linker EntityLinker,
	cases CaseGetter,
	emitter EventEmitter,
	projector GraphProjector,
	cfg *config.Config,
	logger ectologger.Logger,
) *Processor {
	return &Processor{
		schemaService: schemaService,
		resolver:      resolver,
		linker:        linker,
		cases:         cases,
		emitter:       emitter,
		projector:     projector,
		cfg:           cfg,
		logger:        logger,
	}
}

// ProcessDocument validates the document, resolves its case, and links its
// entities. Validation failures return a ValidationError without touching any
// case state. A conflict is a result, not an error: only the audit note was
// persisted.
func (p *Processor) ProcessDocument(ctx context.Context, tenantID string, doc models.ExtractedDocument) (*models.ProcessDocumentResult, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessDocument")
	defer span.End()

	validation, err := p.schemaService.ValidateDocument(ctx, tenantID, doc)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, caseerrors.NewValidationError(doc.DocumentID, "document failed validation", validation.FieldNames()...)
	}

	refs := references.Normalize(doc.CaseNumbers)
	docSignatures := documentSignatures(doc)

	result, err := p.resolver.Resolve(ctx, tenantID, doc.DocumentID, refs, doc.Embedding, docSignatures)
	if err != nil {
		return nil, err
	}

	out := &models.ProcessDocumentResult{
		DocumentID:       doc.DocumentID,
		CaseID:           result.CaseID,
		Action:           result.Action,
		CandidateCaseIDs: result.CandidateCaseIDs,
	}

	if result.Action != models.ResolveActionConflict {
		_, warnings, err := p.linker.LinkEntities(ctx, tenantID, result.CaseID, doc.DocumentID, doc)
		if err != nil {
			return nil, err
		}
		out.Warnings = warnings

		c, err := p.cases.Get(ctx, tenantID, result.CaseID)
		if err != nil {
			return nil, err
		}
		out.Completeness = c.ReferenceCompleteness

		// The graph is a read model; a projection failure must not fail the
		// already-committed resolution.
		if p.projector != nil {
			if err := p.projector.ProjectDocument(ctx, tenantID, result.CaseID, doc); err != nil {
				p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"document_id": doc.DocumentID,
					"case_id":     result.CaseID,
				}).Error("Failed to project document into graph")
			}
		}
	}

	// The resolution is already committed; a failed emit must not push the
	// document back through the pipeline.
	if p.emitter != nil {
		if err := p.emitter.EmitResolveResult(ctx, tenantID, doc.DocumentID, result); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"document_id": doc.DocumentID,
			}).Error("Failed to emit resolution event")
		}
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"document_id": doc.DocumentID,
		"case_id":     result.CaseID,
		"action":      result.Action,
	}).Info("Processed document")

	return out, nil
}

// ProcessBatch resolves every document in the slice with a bounded worker
// pool. One failing document never aborts the batch; its outcome carries the
// error instead. Outcomes are returned in input order.
func (p *Processor) ProcessBatch(ctx context.Context, tenantID string, docs []models.ExtractedDocument) []models.DocumentOutcome {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessBatch")
	defer span.End()

	workers := p.cfg.BatchWorkerCount
	if workers < 1 {
		workers = 1
	}
	if workers > len(docs) {
		workers = len(docs)
	}

	outcomes := make([]models.DocumentOutcome, len(docs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				doc := docs[i]
				result, err := p.ProcessDocument(ctx, tenantID, doc)
				outcome := models.DocumentOutcome{DocumentID: doc.DocumentID}
				if err != nil {
					outcome.Error = err.Error()
				} else {
					outcome.Result = result
				}
				outcomes[i] = outcome
			}
		}()
	}

	for i := range docs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

// ProcessMessage handles one document envelope from Kafka. Returning an error
// leaves the offset uncommitted so the message is retried; malformed or
// invalid documents are logged and skipped.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessMessage")
	defer span.End()

	tenantID := msg.GetTenantID()
	if tenantID == "" {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"document_id": msg.GetDocumentID(),
		}).Error("Document message missing tenant id, skipping")
		return nil
	}

	_, err := p.ProcessDocument(ctx, tenantID, msg.Document.Document)
	if err != nil {
		// Validation failures are permanent; retrying the same payload
		// cannot succeed.
		if caseerrors.IsValidation(err) {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"tenant_id":   tenantID,
				"document_id": msg.GetDocumentID(),
			}).Warn("Skipping invalid document")
			return nil
		}
		return err
	}

	return nil
}

// documentSignatures computes the party and charge signatures the similarity
// linker compares against existing cases.
func documentSignatures(doc models.ExtractedDocument) []string {
	var signatures []string
	for _, party := range doc.Parties {
		if sig, ok := signature.Party(party); ok {
			signatures = append(signatures, sig)
		}
	}
	for _, charge := range doc.Charges {
		if sig, ok := signature.Charge(charge); ok {
			signatures = append(signatures, sig)
		}
	}
	return signatures
}

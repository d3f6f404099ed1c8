// Package events handles event emission for case lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter handles event emission for Laurel
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitResolveResult emits the case event matching a resolution outcome.
func (e *Emitter) EmitResolveResult(ctx context.Context, tenantID, documentID string, result *models.ResolveResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResolveResult")
	defer span.End()

	var eventType EventType
	switch result.Action {
	case models.ResolveActionCreated, models.ResolveActionCreatedOrphan:
		eventType = EventTypeCaseCreated
	case models.ResolveActionFound:
		eventType = EventTypeCaseMatched
	case models.ResolveActionConflict:
		eventType = EventTypeCaseConflict
	default:
		return nil
	}

	data := map[string]any{
		"schema_version": SchemaVersion,
		"action":         result.Action,
	}
	if result.Action == models.ResolveActionConflict {
		data["candidate_case_ids"] = result.CandidateCaseIDs
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.CaseEvent{
		EventType:  string(eventType),
		TenantID:   tenantID,
		CaseID:     result.CaseID,
		DocumentID: documentID,
		MatchedVia: result.MatchedVia,
		Data:       dataJSON,
	}

	if err := e.producer.PublishCaseEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}

// EmitOrphanMerged emits an event after an orphan case is folded into a target
func (e *Emitter) EmitOrphanMerged(ctx context.Context, tenantID string, result *models.OrphanMergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitOrphanMerged")
	defer span.End()

	data := map[string]any{
		"schema_version":  SchemaVersion,
		"orphan_case_id":  result.OrphanCaseID,
		"documents_moved": result.DocumentsMoved,
		"links_moved":     result.LinksMoved,
		"links_skipped":   result.LinksSkipped,
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.CaseEvent{
		EventType: string(EventTypeOrphanMerged),
		TenantID:  tenantID,
		CaseID:    result.TargetCaseID,
		Data:      dataJSON,
	}

	if err := e.producer.PublishCaseEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit case.orphan_merged event")
		return err
	}

	return nil
}

// EmitEntityLinked emits an event for a new case-to-entity link
func (e *Emitter) EmitEntityLinked(ctx context.Context, tenantID string, link models.CaseEntityLink) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityLinked")
	defer span.End()

	event := &kafka.EntityLinkEvent{
		EventType:  string(EventTypeEntityLinked),
		TenantID:   tenantID,
		CaseID:     link.CaseID,
		EntityID:   link.EntityID,
		EntityType: string(link.EntityType),
		Role:       link.Role,
		DocumentID: link.SourceDocumentID,
	}

	if err := e.producer.PublishEntityLinkEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.linked event")
		return err
	}

	return nil
}

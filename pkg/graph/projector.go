package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/signature"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// Projector mirrors resolved cases and their entities into the graph
// database. The projection is a best-effort read model; Postgres remains the
// source of truth.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// ProjectDocument merges the case node and the document's entity nodes into
// the graph, connected by typed relationships keyed on entity signatures.
func (p *Projector) ProjectDocument(ctx context.Context, tenantID, caseID string, doc models.ExtractedDocument) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectDocument")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"case_id":     caseID,
		"document_id": doc.DocumentID,
	})

	parties := make([]map[string]any, 0, len(doc.Parties))
	for _, party := range doc.Parties {
		sig, ok := signature.Party(party)
		if !ok {
			continue
		}
		role := party.Role
		if role == "" {
			role = "unknown"
		}
		parties = append(parties, map[string]any{
			"signature":    sig,
			"display_name": signature.DisplayName(party.NameAr, party.NameEn),
			"role":         role,
		})
	}

	charges := make([]map[string]any, 0, len(doc.Charges))
	for _, charge := range doc.Charges {
		sig, ok := signature.Charge(charge)
		if !ok {
			continue
		}
		charges = append(charges, map[string]any{
			"signature":    sig,
			"display_name": signature.DisplayName(charge.DescriptionAr, charge.DescriptionEn),
		})
	}

	evidence := make([]map[string]any, 0, len(doc.Evidence))
	for _, item := range doc.Evidence {
		sig, ok := signature.Evidence(item)
		if !ok {
			continue
		}
		evidence = append(evidence, map[string]any{
			"signature":    sig,
			"display_name": signature.DisplayName(item.DescriptionAr, item.DescriptionEn),
		})
	}

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (c:Case {id: $case_id, tenant_id: $tenant_id})
		`, map[string]any{"case_id": caseID, "tenant_id": tenantID}); err != nil {
			return nil, err
		}

		if len(parties) > 0 {
			if _, err := tx.Run(ctx, `
				MATCH (c:Case {id: $case_id, tenant_id: $tenant_id})
				UNWIND $batch AS props
				MERGE (p:Party {signature: props.signature, tenant_id: $tenant_id})
				SET p.display_name = props.display_name
				MERGE (p)-[r:PARTY_OF]->(c)
				SET r.role = props.role
			`, map[string]any{"case_id": caseID, "tenant_id": tenantID, "batch": parties}); err != nil {
				return nil, err
			}
		}

		if len(charges) > 0 {
			if _, err := tx.Run(ctx, `
				MATCH (c:Case {id: $case_id, tenant_id: $tenant_id})
				UNWIND $batch AS props
				MERGE (ch:Charge {signature: props.signature, tenant_id: $tenant_id})
				SET ch.display_name = props.display_name
				MERGE (ch)-[:CHARGED_IN]->(c)
			`, map[string]any{"case_id": caseID, "tenant_id": tenantID, "batch": charges}); err != nil {
				return nil, err
			}
		}

		if len(evidence) > 0 {
			if _, err := tx.Run(ctx, `
				MATCH (c:Case {id: $case_id, tenant_id: $tenant_id})
				UNWIND $batch AS props
				MERGE (e:Evidence {signature: props.signature, tenant_id: $tenant_id})
				SET e.display_name = props.display_name
				MERGE (e)-[:EVIDENCE_IN]->(c)
			`, map[string]any{"case_id": caseID, "tenant_id": tenantID, "batch": evidence}); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})

	if err != nil {
		log.WithError(err).Error("Failed to project document into graph")
		return fmt.Errorf("failed to project document into graph: %w", err)
	}

	log.Debug("Projected document into graph")
	return nil
}

// FoldCase repoints every relationship from the orphan's case node to the
// target node and deletes the orphan node. Mirrors an orphan merge.
func (p *Projector) FoldCase(ctx context.Context, tenantID, orphanCaseID, targetCaseID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.FoldCase")
	defer span.End()

	params := map[string]any{
		"orphan_id": orphanCaseID,
		"target_id": targetCaseID,
		"tenant_id": tenantID,
	}

	moves := []string{
		`MATCH (n)-[r:PARTY_OF]->(:Case {id: $orphan_id, tenant_id: $tenant_id})
		 MATCH (target:Case {id: $target_id, tenant_id: $tenant_id})
		 MERGE (n)-[nr:PARTY_OF]->(target)
		 SET nr.role = r.role
		 DELETE r`,
		`MATCH (n)-[r:CHARGED_IN]->(:Case {id: $orphan_id, tenant_id: $tenant_id})
		 MATCH (target:Case {id: $target_id, tenant_id: $tenant_id})
		 MERGE (n)-[:CHARGED_IN]->(target)
		 DELETE r`,
		`MATCH (n)-[r:EVIDENCE_IN]->(:Case {id: $orphan_id, tenant_id: $tenant_id})
		 MATCH (target:Case {id: $target_id, tenant_id: $tenant_id})
		 MERGE (n)-[:EVIDENCE_IN]->(target)
		 DELETE r`,
		`MATCH (orphan:Case {id: $orphan_id, tenant_id: $tenant_id})
		 DETACH DELETE orphan`,
	}

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MERGE (:Case {id: $target_id, tenant_id: $tenant_id})`, params); err != nil {
			return nil, err
		}
		for _, cypher := range moves {
			if _, err := tx.Run(ctx, cypher, params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to fold case in graph")
		return fmt.Errorf("failed to fold case in graph: %w", err)
	}

	return nil
}

// Package similarity proposes candidate cases for documents that carry no
// usable reference number. Candidates are scored by a weighted blend of
// entity signature overlap and embedding cosine similarity.
package similarity

import (
	"context"
	"math"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/config"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// EmbeddingLister loads per-tenant case vectors.
type EmbeddingLister interface {
	ListByTenant(ctx context.Context, tenantID string) ([]models.CaseEmbedding, error)
}

// SignatureLister loads the entity signatures linked to each case.
type SignatureLister interface {
	ListSignaturesByCase(ctx context.Context, tenantID string, caseIDs []string) (map[string][]string, error)
}

// Linker scores cases against a document's embedding and entity signatures.
type Linker struct {
	embeddings EmbeddingLister
	signatures SignatureLister
	cfg        *config.Config
	logger     ectologger.Logger
}

// NewLinker creates a new similarity linker
func NewLinker(embeddings EmbeddingLister, signatures SignatureLister, cfg *config.Config, logger ectologger.Logger) *Linker {
	return &Linker{
		embeddings: embeddings,
		signatures: signatures,
		cfg:        cfg,
		logger:     logger,
	}
}

// FindCandidates returns up to MaxSimilarCases cases scoring at or above
// SimilarityThreshold, best first. When either side has no entity signatures
// the score falls back to pure cosine similarity. Ties break toward the case
// with the most recent activity.
func (l *Linker) FindCandidates(ctx context.Context, tenantID string, embedding []float64, docSignatures []string) ([]models.SimilarityCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "similarity.Linker.FindCandidates")
	defer span.End()

	if len(embedding) == 0 {
		return nil, nil
	}

	caseEmbeddings, err := l.embeddings.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(caseEmbeddings) == 0 {
		return nil, nil
	}

	caseIDs := make([]string, 0, len(caseEmbeddings))
	for _, ce := range caseEmbeddings {
		caseIDs = append(caseIDs, ce.CaseID)
	}
	caseSignatures, err := l.signatures.ListSignaturesByCase(ctx, tenantID, caseIDs)
	if err != nil {
		return nil, err
	}

	docSet := toSet(docSignatures)

	type scored struct {
		candidate models.SimilarityCandidate
		updatedAt int64
	}
	var results []scored
	for _, ce := range caseEmbeddings {
		cosine := Cosine(embedding, ce.Vector)
		overlap := Overlap(docSet, toSet(caseSignatures[ce.CaseID]))

		var score float64
		if len(docSet) == 0 || len(caseSignatures[ce.CaseID]) == 0 {
			score = cosine
		} else {
			score = l.cfg.EntityOverlapWeight*overlap + l.cfg.EmbeddingWeight*cosine
		}

		if score < l.cfg.SimilarityThreshold {
			continue
		}
		results = append(results, scored{
			candidate: models.SimilarityCandidate{
				CaseID:        ce.CaseID,
				Score:         score,
				EntityOverlap: overlap,
				Cosine:        cosine,
			},
			updatedAt: ce.UpdatedAt.UnixNano(),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].candidate.Score != results[j].candidate.Score {
			return results[i].candidate.Score > results[j].candidate.Score
		}
		return results[i].updatedAt > results[j].updatedAt
	})

	limit := l.cfg.MaxSimilarCases
	if limit <= 0 {
		limit = 10
	}
	if len(results) > limit {
		results = results[:limit]
	}

	candidates := make([]models.SimilarityCandidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, r.candidate)
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  tenantID,
		"scanned":    len(caseEmbeddings),
		"candidates": len(candidates),
	}).Debug("Scored similarity candidates")
	return candidates, nil
}

// Cosine computes cosine similarity between two vectors. Mismatched lengths
// and zero vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Overlap computes the Jaccard overlap of two signature sets.
func Overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for sig := range a {
		if _, ok := b[sig]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

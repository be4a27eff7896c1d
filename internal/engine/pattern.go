package engine

import (
	"context"
	"fmt"

	"github.com/banking/fraud-engine/internal/config"
	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/store"
)

// PatternSimilarityEvaluator compares the transaction embedding against the
// catalog of known fraud-pattern embeddings. Only the single nearest match
// matters; an empty catalog contributes zero, not an error.
type PatternSimilarityEvaluator struct {
	cfg config.PatternConfig
}

// NewPatternSimilarityEvaluator creates a pattern similarity evaluator.
func NewPatternSimilarityEvaluator(cfg config.PatternConfig) *PatternSimilarityEvaluator {
	return &PatternSimilarityEvaluator{cfg: cfg}
}

// Evaluate scores the nearest catalog match.
func (e *PatternSimilarityEvaluator) Evaluate(ctx context.Context, tx store.Tx, embedding []float32) (domain.PatternReason, error) {
	match, err := tx.NearestFraudPattern(ctx, embedding)
	if err != nil {
		return domain.PatternReason{}, fmt.Errorf("%w: nearest fraud pattern: %v", ErrSignalUnavailable, err)
	}
	if match == nil {
		return domain.PatternReason{}, nil
	}

	reason := domain.PatternReason{
		Matched:   true,
		PatternID: match.PatternID,
		Severity:  match.Severity,
		Distance:  match.Distance,
	}

	switch {
	case match.Distance < e.cfg.CriticalDistance && match.Severity == domain.SeverityCritical:
		reason.Contribution = e.cfg.CriticalWeight
	case match.Distance < e.cfg.HighDistance && match.Severity == domain.SeverityHigh:
		reason.Contribution = e.cfg.HighWeight
	}
	return reason, nil
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banking/fraud-engine/internal/config"
	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/store"
)

// VelocityEvaluator inspects recent transaction frequency for a user.
// Read-only; the contribution triggers when the count inside the lookback
// window exceeds the configured threshold.
type VelocityEvaluator struct {
	cfg config.VelocityConfig
}

// NewVelocityEvaluator creates a velocity evaluator.
func NewVelocityEvaluator(cfg config.VelocityConfig) *VelocityEvaluator {
	return &VelocityEvaluator{cfg: cfg}
}

// Evaluate counts the user's transactions inside the lookback window.
func (e *VelocityEvaluator) Evaluate(ctx context.Context, tx store.Tx, userID uuid.UUID) (domain.VelocityReason, error) {
	since := time.Now().Add(-e.cfg.Window)

	count, err := tx.CountRecentTransactions(ctx, userID, since)
	if err != nil {
		return domain.VelocityReason{}, fmt.Errorf("%w: count recent transactions: %v", ErrSignalUnavailable, err)
	}

	reason := domain.VelocityReason{RecentCount: count}
	if count > e.cfg.CountThreshold {
		reason.Contribution = e.cfg.Weight
	}
	return reason, nil
}

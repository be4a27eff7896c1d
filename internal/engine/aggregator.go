package engine

import (
	"github.com/banking/fraud-engine/internal/config"
	"github.com/banking/fraud-engine/internal/domain"
)

// RiskAggregator combines evaluator outputs into one score and decision.
// The model is a plain sum — no normalization, no cap — so independent red
// flags compound. Thresholds are configuration.
type RiskAggregator struct {
	cfg config.ThresholdsConfig
}

// NewRiskAggregator creates a risk aggregator.
func NewRiskAggregator(cfg config.ThresholdsConfig) *RiskAggregator {
	return &RiskAggregator{cfg: cfg}
}

// Aggregate sums the contributions and maps the total onto a decision.
func (a *RiskAggregator) Aggregate(reasons domain.DecisionReasons) (float64, domain.Decision) {
	score := reasons.TotalContribution()
	return score, domain.DecideFromScore(score, a.cfg.Review, a.cfg.Block)
}

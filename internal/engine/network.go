package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/banking/fraud-engine/internal/config"
	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/store"
)

// NetworkProximityEvaluator flags proximity to known high-risk actors in
// the relationship graph. The scored check is 1-hop: each directly connected
// account above the risk threshold adds one connection weight, uncapped
// unless a ceiling is configured. The deeper ring-discovery walk is a
// separate investigative report and never feeds the score.
type NetworkProximityEvaluator struct {
	cfg       config.NetworkConfig
	direction domain.TraversalDirection
}

// NewNetworkProximityEvaluator creates a network proximity evaluator.
func NewNetworkProximityEvaluator(cfg config.NetworkConfig) *NetworkProximityEvaluator {
	return &NetworkProximityEvaluator{
		cfg:       cfg,
		direction: domain.ParseTraversalDirection(cfg.Direction),
	}
}

// Evaluate counts directly connected accounts above the risk threshold.
func (e *NetworkProximityEvaluator) Evaluate(ctx context.Context, tx store.Tx, userID uuid.UUID) (domain.NetworkReason, error) {
	conns, err := tx.GetDirectConnections(ctx, userID, e.direction)
	if err != nil {
		return domain.NetworkReason{}, fmt.Errorf("%w: get direct connections: %v", ErrSignalUnavailable, err)
	}

	count := 0
	for _, c := range conns {
		if c.RiskScore > e.cfg.RiskThreshold {
			count++
		}
	}

	contribution := float64(count) * e.cfg.ConnectionWeight
	if e.cfg.MaxContribution > 0 && contribution > e.cfg.MaxContribution {
		contribution = e.cfg.MaxContribution
	}

	return domain.NetworkReason{
		HighRiskConnections: count,
		Contribution:        contribution,
	}, nil
}

// DiscoverRing walks the relationship graph breadth-first to the configured
// ring depth and reports every account reached, annotated with its hop
// distance. Investigative output only.
func (e *NetworkProximityEvaluator) DiscoverRing(ctx context.Context, tx store.Tx, userID uuid.UUID) (*domain.FraudRingReport, error) {
	report := &domain.FraudRingReport{
		UserID:        userID,
		Depth:         e.cfg.RingDepth,
		RiskThreshold: e.cfg.RiskThreshold,
	}

	visited := map[uuid.UUID]bool{userID: true}
	frontier := []uuid.UUID{userID}

	for depth := 1; depth <= e.cfg.RingDepth; depth++ {
		var next []uuid.UUID
		for _, id := range frontier {
			conns, err := tx.GetDirectConnections(ctx, id, e.direction)
			if err != nil {
				return nil, fmt.Errorf("%w: ring discovery at depth %d: %v", ErrSignalUnavailable, depth, err)
			}
			for _, c := range conns {
				if visited[c.ConnectedUserID] {
					continue
				}
				visited[c.ConnectedUserID] = true
				report.Members = append(report.Members, domain.RingMember{
					UserID:    c.ConnectedUserID,
					RiskScore: c.RiskScore,
					Depth:     depth,
				})
				next = append(next, c.ConnectedUserID)
			}
		}
		frontier = next
	}

	return report, nil
}

package domain

import "github.com/google/uuid"

// TraversalDirection controls which relationship edges a graph walk follows.
// Edges are directed; "knows" is effectively symmetric for fraud-proximity
// purposes, but the literal proximity check follows outbound edges only, so
// the direction is configuration with an outbound default.
type TraversalDirection string

const (
	DirectionOutbound TraversalDirection = "outbound"
	DirectionInbound  TraversalDirection = "inbound"
	DirectionBoth     TraversalDirection = "both"
)

// ParseTraversalDirection maps a config string to a direction, defaulting
// to outbound on anything unrecognized.
func ParseTraversalDirection(s string) TraversalDirection {
	switch TraversalDirection(s) {
	case DirectionInbound:
		return DirectionInbound
	case DirectionBoth:
		return DirectionBoth
	default:
		return DirectionOutbound
	}
}

// Connection is one adjacent account in the relationship graph together
// with its upstream-maintained risk score.
type Connection struct {
	ConnectedUserID uuid.UUID `json:"connected_user_id" db:"connected_user_id"`
	RiskScore       float64   `json:"risk_score" db:"risk_score"`
}

// RingMember is one account reached by the bounded-depth ring discovery
// walk, annotated with how many hops away it sits.
type RingMember struct {
	UserID    uuid.UUID `json:"user_id"`
	RiskScore float64   `json:"risk_score"`
	Depth     int       `json:"depth"`
}

// FraudRingReport is the investigative 2-hop neighborhood of a user. It is
// produced for manual review only and never feeds the automated score.
type FraudRingReport struct {
	UserID        uuid.UUID    `json:"user_id"`
	Depth         int          `json:"depth"`
	RiskThreshold float64      `json:"risk_threshold"`
	Members       []RingMember `json:"members"`
}

// HighRiskMembers returns the members whose risk score exceeds the
// report's threshold.
func (r *FraudRingReport) HighRiskMembers() []RingMember {
	var out []RingMember
	for _, m := range r.Members {
		if m.RiskScore > r.RiskThreshold {
			out = append(out, m)
		}
	}
	return out
}

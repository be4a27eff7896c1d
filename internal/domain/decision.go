package domain

import (
	"time"

	"github.com/google/uuid"
)

// Decision represents the outcome of a fraud evaluation
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionReview   Decision = "REVIEW"
	DecisionBlocked  Decision = "BLOCKED"
)

// FraudDecision is the immutable audit record produced by every evaluation.
// Once appended it is never updated or deleted; EntryHash chains each record
// to its predecessor so retroactive edits are detectable.
type FraudDecision struct {
	ID            uuid.UUID `json:"id" db:"id"`
	TransactionID uuid.UUID `json:"transaction_id" db:"transaction_id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`

	Decision  Decision        `json:"decision" db:"decision"`
	RiskScore float64         `json:"risk_score" db:"risk_score"`
	Reasons   DecisionReasons `json:"reasons" db:"reasons"`

	DecidedAt time.Time `json:"decided_at" db:"decided_at"`
	DecidedBy string    `json:"decided_by" db:"decided_by"`

	// Tamper-evidence chain. PrevHash is the EntryHash of the previous
	// record in append order; EntryHash covers every field above plus
	// PrevHash.
	PrevHash  []byte `json:"prev_hash" db:"prev_hash"`
	EntryHash []byte `json:"entry_hash" db:"entry_hash"`
}

// DecisionReasons holds one explanatory block per evaluator. The risk score
// is always the exact sum of the four Contribution fields.
type DecisionReasons struct {
	Velocity VelocityReason `json:"velocity"`
	Device   DeviceReason   `json:"device"`
	Network  NetworkReason  `json:"network"`
	Pattern  PatternReason  `json:"pattern"`
}

// TotalContribution returns the sum of all evaluator contributions.
func (r DecisionReasons) TotalContribution() float64 {
	return r.Velocity.Contribution +
		r.Device.Contribution +
		r.Network.Contribution +
		r.Pattern.Contribution
}

// VelocityReason explains the recent-activity signal.
type VelocityReason struct {
	RecentCount  int     `json:"recent_count"`
	Contribution float64 `json:"contribution"`
}

// DeviceReason explains the device-fingerprint signal.
type DeviceReason struct {
	VPNDetected  bool    `json:"vpn_detected"`
	VMDetected   bool    `json:"vm_detected"`
	NovelDevice  bool    `json:"novel_device"`
	Contribution float64 `json:"contribution"`
}

// NetworkReason explains the account-network proximity signal.
type NetworkReason struct {
	HighRiskConnections int     `json:"high_risk_connections"`
	Contribution        float64 `json:"contribution"`
}

// PatternReason explains the fraud-pattern similarity signal.
type PatternReason struct {
	Matched      bool     `json:"matched"`
	PatternID    string   `json:"pattern_id,omitempty"`
	Severity     Severity `json:"severity,omitempty"`
	Distance     float64  `json:"distance,omitempty"`
	Contribution float64  `json:"contribution"`
}

// DecideFromScore maps a risk score to a decision. Thresholds are
// configuration; the ordering BLOCKED before REVIEW guarantees no overlap
// or gap between the bands.
func DecideFromScore(score, reviewThreshold, blockThreshold float64) Decision {
	switch {
	case score >= blockThreshold:
		return DecisionBlocked
	case score >= reviewThreshold:
		return DecisionReview
	default:
		return DecisionApproved
	}
}

// IsApproved returns true if the transaction may proceed.
func (d *FraudDecision) IsApproved() bool {
	return d.Decision == DecisionApproved
}

// RequiresReview returns true if the decision needs a human in the loop.
func (d *FraudDecision) RequiresReview() bool {
	return d.Decision == DecisionReview
}

// IsBlocked returns true if the transaction was rejected outright.
func (d *FraudDecision) IsBlocked() bool {
	return d.Decision == DecisionBlocked
}

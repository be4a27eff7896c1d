// Package store defines the narrow SignalStore contract the decision engine
// consumes, plus the Postgres and in-memory adapters. The engine never talks
// to persistence except through these interfaces; commit and rollback are
// owned exclusively by the orchestrator.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/banking/fraud-engine/internal/domain"
)

// SignalStore is the transactional signal source and audit sink.
type SignalStore interface {
	// Begin opens a unit of work. All evaluator reads and the decision
	// writes for one invocation go through the returned Tx; the writes
	// commit atomically or not at all.
	Begin(ctx context.Context) (Tx, error)

	// ListFraudDecisions returns the full decision history in append
	// order. Used by audit chain verification, outside any decision
	// transaction.
	ListFraudDecisions(ctx context.Context) ([]domain.FraudDecision, error)
}

// Tx is a single atomic unit of work against the signal store.
type Tx interface {
	// UserExists reports whether the acting user is known.
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)

	// CountRecentTransactions counts transactions initiated by the user
	// at or after since.
	CountRecentTransactions(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// GetDeviceHistory returns the most recent archived context for the
	// user/device pair, or nil when the device has never been seen.
	GetDeviceHistory(ctx context.Context, userID uuid.UUID, deviceID string) (*domain.DeviceContext, error)

	// AppendDeviceContext stages a device history row. Visible only
	// after Commit.
	AppendDeviceContext(ctx context.Context, dc domain.DeviceContext) error

	// GetDirectConnections returns the user's 1-hop neighbors in the
	// relationship graph, following edges per direction.
	GetDirectConnections(ctx context.Context, userID uuid.UUID, direction domain.TraversalDirection) ([]domain.Connection, error)

	// NearestFraudPattern returns the single nearest catalog pattern by
	// cosine distance, or nil when the catalog is empty.
	NearestFraudPattern(ctx context.Context, embedding []float32) (*domain.PatternMatch, error)

	// GetLastDecisionHash returns the entry hash of the newest decision,
	// or nil when the audit log is empty.
	GetLastDecisionHash(ctx context.Context) ([]byte, error)

	// AppendFraudDecision stages the immutable audit record. Visible
	// only after Commit. No update or delete is ever exposed.
	AppendFraudDecision(ctx context.Context, d *domain.FraudDecision) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

package engine

import (
	"context"
	"fmt"

	"github.com/banking/fraud-engine/internal/audit"
	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/store"
)

// DecisionRecorder persists the decision and the device context as one
// atomic pair inside the caller's open transaction: the audit record chained
// to its predecessor, the device context as history. Both writes commit or
// neither does; commit itself stays with the orchestrator.
type DecisionRecorder struct{}

// NewDecisionRecorder creates a decision recorder.
func NewDecisionRecorder() *DecisionRecorder {
	return &DecisionRecorder{}
}

// Record chains and stages the decision plus its device context. The
// decision's PrevHash and EntryHash fields are filled in here.
func (r *DecisionRecorder) Record(ctx context.Context, tx store.Tx, d *domain.FraudDecision, dc domain.DeviceContext) error {
	prev, err := tx.GetLastDecisionHash(ctx)
	if err != nil {
		return fmt.Errorf("%w: read chain head: %v", ErrPersistenceFailure, err)
	}
	d.PrevHash = prev
	d.EntryHash = audit.EntryHash(d)

	if err := tx.AppendFraudDecision(ctx, d); err != nil {
		return fmt.Errorf("%w: append fraud decision: %v", ErrPersistenceFailure, err)
	}

	dc.UserID = d.UserID
	dc.RecordedAt = d.DecidedAt
	if err := tx.AppendDeviceContext(ctx, dc); err != nil {
		return fmt.Errorf("%w: append device context: %v", ErrPersistenceFailure, err)
	}
	return nil
}

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/banking/fraud-engine/internal/config"
	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/store"
)

// DeviceRiskEvaluator inspects the incoming device context for known risk
// indicators and novelty. Flags are additive and independently triggered;
// a missing signal field means false, never an error. The evaluator itself
// never writes — the device context is archived later, atomically with the
// decision.
type DeviceRiskEvaluator struct {
	cfg config.DeviceConfig
}

// NewDeviceRiskEvaluator creates a device risk evaluator.
func NewDeviceRiskEvaluator(cfg config.DeviceConfig) *DeviceRiskEvaluator {
	return &DeviceRiskEvaluator{cfg: cfg}
}

// Evaluate scores the incoming device context against the user's history.
func (e *DeviceRiskEvaluator) Evaluate(ctx context.Context, tx store.Tx, userID uuid.UUID, dc domain.DeviceContext) (domain.DeviceReason, error) {
	reason := domain.DeviceReason{
		VPNDetected: dc.SignalBool(domain.SignalVPNDetected),
		VMDetected:  dc.SignalBool(domain.SignalVMDetected),
	}

	prior, err := tx.GetDeviceHistory(ctx, userID, dc.DeviceID)
	if err != nil {
		return domain.DeviceReason{}, fmt.Errorf("%w: get device history: %v", ErrSignalUnavailable, err)
	}
	reason.NovelDevice = prior == nil

	if reason.VPNDetected {
		reason.Contribution += e.cfg.VPNWeight
	}
	if reason.VMDetected {
		reason.Contribution += e.cfg.VMWeight
	}
	if reason.NovelDevice {
		reason.Contribution += e.cfg.NovelDeviceWeight
	}
	return reason, nil
}

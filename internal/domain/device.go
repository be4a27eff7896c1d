package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Well-known risk signal keys. Device classes differ (mobile, desktop, IoT)
// so the signal set is open; evaluators read named optional keys and treat
// absence as false.
const (
	SignalVPNDetected = "vpnDetected"
	SignalVMDetected  = "vmDetected"
)

// DeviceContext is the schema-flexible record describing the device a
// transaction originated from. Beyond DeviceID and the risk-signals
// sub-object nothing is validated; unrecognized fields ride along in
// Attributes. Lifecycle is append-only: one history row per decision,
// never updated or deleted.
type DeviceContext struct {
	DeviceID    string         `json:"deviceId"`
	RiskSignals map[string]any `json:"riskSignals"`
	Attributes  map[string]any `json:"attributes,omitempty"`

	// Set by the store on append.
	UserID     uuid.UUID `json:"user_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at,omitempty"`
}

// ParseDeviceContext validates a raw document against the minimal contract:
// a non-empty deviceId and a riskSignals sub-object. Everything else is kept
// verbatim under Attributes.
func ParseDeviceContext(raw map[string]any) (DeviceContext, error) {
	dc := DeviceContext{}

	id, ok := raw["deviceId"].(string)
	if !ok || id == "" {
		return dc, fmt.Errorf("device context missing deviceId")
	}
	dc.DeviceID = id

	signals, ok := raw["riskSignals"].(map[string]any)
	if !ok {
		return dc, fmt.Errorf("device context missing riskSignals object")
	}
	dc.RiskSignals = signals

	attrs := make(map[string]any)
	for k, v := range raw {
		if k == "deviceId" || k == "riskSignals" {
			continue
		}
		attrs[k] = v
	}
	if len(attrs) > 0 {
		dc.Attributes = attrs
	}

	return dc, nil
}

// SignalBool reads a boolean risk signal. A missing or non-boolean value
// means false, never an error.
func (dc DeviceContext) SignalBool(key string) bool {
	v, ok := dc.RiskSignals[key].(bool)
	return ok && v
}

package audit_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/fraud-engine/internal/audit"
	"github.com/banking/fraud-engine/internal/domain"
)

func buildChain(t *testing.T, n int) []domain.FraudDecision {
	t.Helper()
	decisions := make([]domain.FraudDecision, 0, n)
	var prev []byte

	for i := 0; i < n; i++ {
		d := domain.FraudDecision{
			ID:            uuid.New(),
			TransactionID: uuid.New(),
			UserID:        uuid.New(),
			Decision:      domain.DecisionApproved,
			RiskScore:     0.1 * float64(i),
			Reasons: domain.DecisionReasons{
				Velocity: domain.VelocityReason{RecentCount: i},
			},
			DecidedAt: time.Now().UTC().Truncate(time.Microsecond),
			DecidedBy: "chain-test",
			PrevHash:  prev,
		}
		d.EntryHash = audit.EntryHash(&d)
		prev = d.EntryHash
		decisions = append(decisions, d)
	}
	return decisions
}

func TestEntryHash_Deterministic(t *testing.T) {
	d := buildChain(t, 1)[0]
	assert.Equal(t, audit.EntryHash(&d), audit.EntryHash(&d))
	assert.Len(t, d.EntryHash, 32)
}

func TestEntryHash_SensitiveToEveryScoredField(t *testing.T) {
	base := buildChain(t, 1)[0]

	mutations := map[string]func(*domain.FraudDecision){
		"decision":       func(d *domain.FraudDecision) { d.Decision = domain.DecisionBlocked },
		"risk score":     func(d *domain.FraudDecision) { d.RiskScore += 0.01 },
		"decided at":     func(d *domain.FraudDecision) { d.DecidedAt = d.DecidedAt.Add(time.Microsecond) },
		"decided by":     func(d *domain.FraudDecision) { d.DecidedBy = "someone-else" },
		"velocity count": func(d *domain.FraudDecision) { d.Reasons.Velocity.RecentCount++ },
		"device flag":    func(d *domain.FraudDecision) { d.Reasons.Device.VPNDetected = true },
		"pattern id":     func(d *domain.FraudDecision) { d.Reasons.Pattern.PatternID = "pat-999" },
		"prev hash":      func(d *domain.FraudDecision) { d.PrevHash = []byte("not-a-real-hash-but-32-bytes!!!!") },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			d := base
			mutate(&d)
			assert.NotEqual(t, base.EntryHash, audit.EntryHash(&d))
		})
	}
}

func TestVerifyChain_IntactChain(t *testing.T) {
	assert.Empty(t, audit.VerifyChain(nil))
	assert.Empty(t, audit.VerifyChain(buildChain(t, 1)))
	assert.Empty(t, audit.VerifyChain(buildChain(t, 5)))
}

func TestVerifyChain_DetectsPayloadEdit(t *testing.T) {
	decisions := buildChain(t, 4)
	decisions[2].RiskScore = 0.0

	corrupted := audit.VerifyChain(decisions)
	require.Len(t, corrupted, 1)
	assert.Equal(t, decisions[2].ID, corrupted[0])
}

func TestVerifyChain_DetectsRecomputedHash(t *testing.T) {
	decisions := buildChain(t, 4)

	// An attacker who edits a record and recomputes its entry hash still
	// breaks the successor's prev link.
	decisions[1].Decision = domain.DecisionApproved
	decisions[1].RiskScore = 0.0
	decisions[1].EntryHash = audit.EntryHash(&decisions[1])

	corrupted := audit.VerifyChain(decisions)
	require.Len(t, corrupted, 1)
	assert.Equal(t, decisions[2].ID, corrupted[0])
}

func TestVerifyChain_DetectsBrokenLink(t *testing.T) {
	decisions := buildChain(t, 3)
	decisions[1].PrevHash = make([]byte, 32)

	corrupted := audit.VerifyChain(decisions)
	require.Len(t, corrupted, 1)
	assert.Equal(t, decisions[1].ID, corrupted[0])
}

func TestVerifyChain_OneBadEntryDoesNotCascade(t *testing.T) {
	decisions := buildChain(t, 6)
	decisions[3].RiskScore = 99

	corrupted := audit.VerifyChain(decisions)
	assert.Len(t, corrupted, 1)
}

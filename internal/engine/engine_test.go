package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/fraud-engine/internal/config"
	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/engine"
	"github.com/banking/fraud-engine/internal/pkg/logger"
	"github.com/banking/fraud-engine/internal/store"
)

const testEmbeddingDim = 4

func testEngineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		EmbeddingDim:     testEmbeddingDim,
		EvaluatorTimeout: 250 * time.Millisecond,
		DecidedBy:        "fraud-engine-test",
		Velocity: config.VelocityConfig{
			Window:         time.Hour,
			CountThreshold: 10,
			Weight:         0.2,
			FailOpen:       true,
		},
		Device: config.DeviceConfig{
			VPNWeight:         0.15,
			VMWeight:          0.10,
			NovelDeviceWeight: 0.10,
			FailOpen:          true,
		},
		Network: config.NetworkConfig{
			RiskThreshold:    0.7,
			ConnectionWeight: 0.15,
			Direction:        "outbound",
			RingDepth:        2,
		},
		Pattern: config.PatternConfig{
			CriticalDistance: 0.20,
			CriticalWeight:   0.40,
			HighDistance:     0.30,
			HighWeight:       0.25,
		},
		Thresholds: config.ThresholdsConfig{
			Review: 0.4,
			Block:  0.7,
		},
	}
}

func newTestEngine(s *store.MemoryStore) *engine.Engine {
	return engine.New(s, testEngineConfig(), logger.NewNop(), nil)
}

func deviceDoc(deviceID string, signals map[string]any) map[string]any {
	return map[string]any{"deviceId": deviceID, "riskSignals": signals}
}

// seedKnownDevice marks a device as previously seen so the novel-device
// penalty does not trigger.
func seedKnownDevice(s *store.MemoryStore, userID uuid.UUID, deviceID string) {
	s.AddDeviceContext(domain.DeviceContext{
		UserID:      userID,
		DeviceID:    deviceID,
		RiskSignals: map[string]any{},
		RecordedAt:  time.Now().Add(-24 * time.Hour),
	})
}

func cleanEmbedding() []float32 {
	// Orthogonal to every test pattern; far from any match threshold.
	return []float32{0, 0, 0, 1}
}

func TestEvaluate_ScenarioA_VelocityOnly(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	seedKnownDevice(s, userID, "dev-1")

	// 11 transactions inside the last hour trips the velocity flag.
	for i := 0; i < 11; i++ {
		s.AddTransaction(domain.Transaction{
			ID:          uuid.New(),
			FromAccount: userID,
			ToAccount:   uuid.New(),
			Amount:      50,
			Timestamp:   time.Now().Add(-10 * time.Minute),
			Status:      domain.TxStatusCompleted,
		})
	}

	eng := newTestEngine(s)
	result, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-1", map[string]any{}), cleanEmbedding())

	require.NoError(t, err)
	assert.InDelta(t, 0.2, result.RiskScore, 1e-9)
	assert.Equal(t, domain.DecisionApproved, result.Decision)
	assert.Equal(t, 11, result.Reasons.Velocity.RecentCount)
}

func TestEvaluate_ScenarioB_DeviceSignals(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)

	eng := newTestEngine(s)
	result, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-new", map[string]any{"vpnDetected": true, "vmDetected": true}),
		cleanEmbedding())

	require.NoError(t, err)
	// vpn 0.15 + vm 0.10 + novel device 0.10: just under the review band.
	assert.InDelta(t, 0.35, result.RiskScore, 1e-9)
	assert.Equal(t, domain.DecisionApproved, result.Decision)
	assert.True(t, result.Reasons.Device.VPNDetected)
	assert.True(t, result.Reasons.Device.VMDetected)
	assert.True(t, result.Reasons.Device.NovelDevice)
}

func TestEvaluate_ScenarioC_NetworkPlusDevice(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)

	for i := 0; i < 2; i++ {
		bad := uuid.New()
		s.AddAccount(bad, 0.85)
		s.AddEdge(userID, bad)
	}

	eng := newTestEngine(s)
	result, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-new", map[string]any{"vpnDetected": true, "vmDetected": true}),
		cleanEmbedding())

	require.NoError(t, err)
	assert.InDelta(t, 0.30, result.Reasons.Network.Contribution, 1e-9)
	assert.InDelta(t, 0.65, result.RiskScore, 1e-9)
	assert.Equal(t, domain.DecisionReview, result.Decision)
}

func TestEvaluate_ScenarioD_PatternMatchBlocks(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)

	for i := 0; i < 2; i++ {
		bad := uuid.New()
		s.AddAccount(bad, 0.85)
		s.AddEdge(userID, bad)
	}

	s.SetPatterns([]domain.FraudPattern{{
		ID:        "pat-001",
		Severity:  domain.SeverityCritical,
		Embedding: []float32{1, 0, 0, 0},
	}})

	// cos distance to the pattern is exactly 1 - 0.85 = 0.15.
	embedding := []float32{0.85, 0.5268, 0, 0}

	eng := newTestEngine(s)
	result, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-new", map[string]any{"vpnDetected": true, "vmDetected": true}),
		embedding)

	require.NoError(t, err)
	assert.True(t, result.Reasons.Pattern.Matched)
	assert.Equal(t, domain.SeverityCritical, result.Reasons.Pattern.Severity)
	assert.InDelta(t, 0.40, result.Reasons.Pattern.Contribution, 1e-9)
	assert.InDelta(t, 1.05, result.RiskScore, 1e-6)
	assert.Equal(t, domain.DecisionBlocked, result.Decision)
}

func TestEvaluate_ScenarioE_AllClean(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	seedKnownDevice(s, userID, "dev-1")

	eng := newTestEngine(s)
	result, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-1", map[string]any{}), cleanEmbedding())

	require.NoError(t, err)
	assert.Zero(t, result.RiskScore)
	assert.Equal(t, domain.DecisionApproved, result.Decision)
}

func TestEvaluate_AdditiveInvariant(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)

	bad := uuid.New()
	s.AddAccount(bad, 0.9)
	s.AddEdge(userID, bad)

	eng := newTestEngine(s)
	result, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-new", map[string]any{"vpnDetected": true}), cleanEmbedding())

	require.NoError(t, err)
	want := result.Reasons.Velocity.Contribution +
		result.Reasons.Device.Contribution +
		result.Reasons.Network.Contribution +
		result.Reasons.Pattern.Contribution
	assert.Equal(t, want, result.RiskScore)
}

func TestEvaluate_PersistsDecisionAndDeviceAtomically(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)

	eng := newTestEngine(s)
	result, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-1", map[string]any{}), cleanEmbedding())
	require.NoError(t, err)

	decisions, err := s.ListFraudDecisions(context.Background())
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, result.DecisionID, decisions[0].ID)
	assert.NotEmpty(t, decisions[0].EntryHash)
	assert.Equal(t, 1, s.DeviceHistoryLen(userID))
}

func TestEvaluate_RollbackWhenDeviceAppendFails(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)

	// The decision append succeeds, the device append fails: neither
	// write may survive.
	s.AppendDeviceErr = errors.New("disk full")

	eng := newTestEngine(s)
	_, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-1", map[string]any{}), cleanEmbedding())

	require.ErrorIs(t, err, engine.ErrPersistenceFailure)

	decisions, listErr := s.ListFraudDecisions(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, decisions)
	assert.Zero(t, s.DeviceHistoryLen(userID))
}

func TestEvaluate_RollbackWhenDecisionAppendFails(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	s.AppendDecisionErr = errors.New("constraint violation")

	eng := newTestEngine(s)
	_, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-1", map[string]any{}), cleanEmbedding())

	require.ErrorIs(t, err, engine.ErrPersistenceFailure)
	assert.Zero(t, s.DeviceHistoryLen(userID))
}

func TestEvaluate_CommitFailureIsPersistenceFailure(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	s.CommitErr = errors.New("connection reset")

	eng := newTestEngine(s)
	_, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-1", map[string]any{}), cleanEmbedding())

	require.ErrorIs(t, err, engine.ErrPersistenceFailure)

	decisions, listErr := s.ListFraudDecisions(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, decisions)
}

func TestEvaluate_VelocityFailsOpen(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	seedKnownDevice(s, userID, "dev-1")
	s.CountErr = errors.New("replica lagging")

	eng := newTestEngine(s)
	result, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-1", map[string]any{}), cleanEmbedding())

	require.NoError(t, err)
	assert.Zero(t, result.Reasons.Velocity.Contribution)
	assert.Equal(t, domain.DecisionApproved, result.Decision)
}

func TestEvaluate_PatternFailsClosed(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	s.NearestErr = errors.New("index offline")

	eng := newTestEngine(s)
	_, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-1", map[string]any{}), cleanEmbedding())

	require.ErrorIs(t, err, engine.ErrSignalUnavailable)

	decisions, listErr := s.ListFraudDecisions(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, decisions)
}

func TestEvaluate_NetworkFailsClosed(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	s.ConnectionsErr = errors.New("graph service down")

	eng := newTestEngine(s)
	_, err := eng.Evaluate(context.Background(), uuid.New(), userID, 100,
		deviceDoc("dev-1", map[string]any{}), cleanEmbedding())

	require.ErrorIs(t, err, engine.ErrSignalUnavailable)
}

func TestEvaluate_InvalidInputs(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	eng := newTestEngine(s)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"nil transaction id", func() error {
			_, err := eng.Evaluate(ctx, uuid.Nil, userID, 100,
				deviceDoc("d", map[string]any{}), cleanEmbedding())
			return err
		}},
		{"negative amount", func() error {
			_, err := eng.Evaluate(ctx, uuid.New(), userID, -5,
				deviceDoc("d", map[string]any{}), cleanEmbedding())
			return err
		}},
		{"missing device id", func() error {
			_, err := eng.Evaluate(ctx, uuid.New(), userID, 100,
				map[string]any{"riskSignals": map[string]any{}}, cleanEmbedding())
			return err
		}},
		{"missing risk signals", func() error {
			_, err := eng.Evaluate(ctx, uuid.New(), userID, 100,
				map[string]any{"deviceId": "d"}, cleanEmbedding())
			return err
		}},
		{"wrong embedding dim", func() error {
			_, err := eng.Evaluate(ctx, uuid.New(), userID, 100,
				deviceDoc("d", map[string]any{}), []float32{1, 2})
			return err
		}},
		{"unknown user", func() error {
			_, err := eng.Evaluate(ctx, uuid.New(), uuid.New(), 100,
				deviceDoc("d", map[string]any{}), cleanEmbedding())
			return err
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.run(), engine.ErrInvalidInput)

			// InvalidInput must surface without side effects.
			decisions, err := s.ListFraudDecisions(ctx)
			require.NoError(t, err)
			assert.Empty(t, decisions)
		})
	}
}

func TestEvaluate_Cancellation(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := newTestEngine(s)
	_, err := eng.Evaluate(ctx, uuid.New(), userID, 100,
		deviceDoc("dev-1", map[string]any{}), cleanEmbedding())

	require.ErrorIs(t, err, engine.ErrCancelled)

	decisions, listErr := s.ListFraudDecisions(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, decisions)
}

func TestEvaluate_HashChainLinksSuccessiveDecisions(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	seedKnownDevice(s, userID, "dev-1")

	eng := newTestEngine(s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := eng.Evaluate(ctx, uuid.New(), userID, 100,
			deviceDoc("dev-1", map[string]any{}), cleanEmbedding())
		require.NoError(t, err)
	}

	decisions, err := s.ListFraudDecisions(ctx)
	require.NoError(t, err)
	require.Len(t, decisions, 3)

	assert.Empty(t, decisions[0].PrevHash)
	assert.Equal(t, decisions[0].EntryHash, decisions[1].PrevHash)
	assert.Equal(t, decisions[1].EntryHash, decisions[2].PrevHash)
}

func TestVerifyAuditChain_DetectsTampering(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	seedKnownDevice(s, userID, "dev-1")

	eng := newTestEngine(s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := eng.Evaluate(ctx, uuid.New(), userID, 100,
			deviceDoc("dev-1", map[string]any{}), cleanEmbedding())
		require.NoError(t, err)
	}

	corrupted, entries, err := eng.VerifyAuditChain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, entries)
	assert.Empty(t, corrupted)

	// Mutate a historical row out of band.
	var tamperedID uuid.UUID
	s.TamperDecision(1, func(d *domain.FraudDecision) {
		tamperedID = d.ID
		d.RiskScore = 0.99
		d.Decision = domain.DecisionBlocked
	})

	corrupted, _, err = eng.VerifyAuditChain(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, corrupted)
	assert.Contains(t, corrupted, tamperedID)
}

func TestDiscoverFraudRing_TwoHops(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	mule := uuid.New()
	kingpin := uuid.New()
	s.AddAccount(userID, 0.1)
	s.AddAccount(mule, 0.5)
	s.AddAccount(kingpin, 0.95)
	s.AddEdge(userID, mule)
	s.AddEdge(mule, kingpin)

	eng := newTestEngine(s)
	report, err := eng.DiscoverFraudRing(context.Background(), userID)
	require.NoError(t, err)

	require.Len(t, report.Members, 2)
	assert.Equal(t, mule, report.Members[0].UserID)
	assert.Equal(t, 1, report.Members[0].Depth)
	assert.Equal(t, kingpin, report.Members[1].UserID)
	assert.Equal(t, 2, report.Members[1].Depth)

	high := report.HighRiskMembers()
	require.Len(t, high, 1)
	assert.Equal(t, kingpin, high[0].UserID)
}

func TestEvaluate_ConcurrentInvocationsSameUser(t *testing.T) {
	s := store.NewMemoryStore()
	userID := uuid.New()
	s.AddAccount(userID, 0.1)
	seedKnownDevice(s, userID, "dev-1")

	eng := newTestEngine(s)
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := eng.Evaluate(ctx, uuid.New(), userID, 100,
				deviceDoc("dev-1", map[string]any{}), cleanEmbedding())
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	decisions, err := s.ListFraudDecisions(ctx)
	require.NoError(t, err)
	assert.Len(t, decisions, n)

	// Overlapping evaluations must still produce one unbroken chain.
	corrupted, entries, err := eng.VerifyAuditChain(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, entries)
	assert.Empty(t, corrupted)
}

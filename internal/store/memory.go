package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/patterns"
)

// Edge is a directed "knows" relationship between two users.
type Edge struct {
	From uuid.UUID
	To   uuid.UUID
}

// MemoryStore is the in-memory SignalStore used by tests and local
// development. Writes staged in a transaction become visible only on
// commit; the exported *Err fields inject failures at specific operations.
type MemoryStore struct {
	mu           sync.RWMutex
	chainMu      sync.Mutex
	accounts     map[uuid.UUID]domain.Account
	transactions []domain.Transaction
	devices      map[uuid.UUID]map[string][]domain.DeviceContext
	edges        []Edge
	patterns     []domain.FraudPattern
	decisions    []domain.FraudDecision

	// Failure injection points.
	BeginErr          error
	CountErr          error
	DeviceHistoryErr  error
	ConnectionsErr    error
	NearestErr        error
	AppendDeviceErr   error
	AppendDecisionErr error
	CommitErr         error
}

var _ SignalStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory signal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]domain.Account),
		devices:  make(map[uuid.UUID]map[string][]domain.DeviceContext),
	}
}

// AddAccount seeds an account with an upstream-maintained risk score.
func (s *MemoryStore) AddAccount(id uuid.UUID, riskScore float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id] = domain.Account{ID: id, RiskScore: riskScore, CreatedAt: time.Now()}
}

// AddTransaction seeds a historical transaction.
func (s *MemoryStore) AddTransaction(tx domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, tx)
}

// AddEdge seeds a directed relationship edge.
func (s *MemoryStore) AddEdge(from, to uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, Edge{From: from, To: to})
}

// AddDeviceContext seeds device history directly, bypassing a transaction.
func (s *MemoryStore) AddDeviceContext(dc domain.DeviceContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendDeviceLocked(dc)
}

// SetPatterns replaces the fraud pattern catalog, sorted by id so ties
// resolve deterministically.
func (s *MemoryStore) SetPatterns(entries []domain.FraudPattern) {
	sorted := make([]domain.FraudPattern, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = sorted
}

// DeviceHistoryLen returns the number of archived contexts for a user,
// across all devices.
func (s *MemoryStore) DeviceHistoryLen(userID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, hist := range s.devices[userID] {
		n += len(hist)
	}
	return n
}

// TamperDecision mutates a historical decision in place. Test support for
// exercising out-of-band tampering; the real store exposes no such path.
func (s *MemoryStore) TamperDecision(i int, mutate func(*domain.FraudDecision)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.decisions[i])
}

// Begin opens a unit of work against the current committed state.
func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if s.BeginErr != nil {
		return nil, s.BeginErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{store: s}, nil
}

// ListFraudDecisions returns a copy of the audit history in append order.
func (s *MemoryStore) ListFraudDecisions(ctx context.Context) ([]domain.FraudDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FraudDecision, len(s.decisions))
	copy(out, s.decisions)
	return out, nil
}

func (s *MemoryStore) appendDeviceLocked(dc domain.DeviceContext) {
	byDevice, ok := s.devices[dc.UserID]
	if !ok {
		byDevice = make(map[string][]domain.DeviceContext)
		s.devices[dc.UserID] = byDevice
	}
	byDevice[dc.DeviceID] = append(byDevice[dc.DeviceID], dc)
}

// memoryTx stages writes until Commit.
type memoryTx struct {
	store           *MemoryStore
	stagedDevices   []domain.DeviceContext
	stagedDecisions []domain.FraudDecision
	finished        bool
	chainHeld       bool
}

var _ Tx = (*memoryTx)(nil)

func (t *memoryTx) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.accounts[userID]
	return ok, nil
}

func (t *memoryTx) CountRecentTransactions(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	if t.store.CountErr != nil {
		return 0, t.store.CountErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	count := 0
	for _, tx := range t.store.transactions {
		if tx.FromAccount == userID && !tx.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) GetDeviceHistory(ctx context.Context, userID uuid.UUID, deviceID string) (*domain.DeviceContext, error) {
	if t.store.DeviceHistoryErr != nil {
		return nil, t.store.DeviceHistoryErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	hist := t.store.devices[userID][deviceID]
	if len(hist) == 0 {
		return nil, nil
	}
	dc := hist[len(hist)-1]
	return &dc, nil
}

func (t *memoryTx) AppendDeviceContext(ctx context.Context, dc domain.DeviceContext) error {
	if t.store.AppendDeviceErr != nil {
		return t.store.AppendDeviceErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.stagedDevices = append(t.stagedDevices, dc)
	return nil
}

func (t *memoryTx) GetDirectConnections(ctx context.Context, userID uuid.UUID, direction domain.TraversalDirection) ([]domain.Connection, error) {
	if t.store.ConnectionsErr != nil {
		return nil, t.store.ConnectionsErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	seen := make(map[uuid.UUID]bool)
	var out []domain.Connection

	add := func(id uuid.UUID) {
		if seen[id] {
			return
		}
		seen[id] = true
		if acct, ok := t.store.accounts[id]; ok {
			out = append(out, domain.Connection{ConnectedUserID: id, RiskScore: acct.RiskScore})
		}
	}

	for _, e := range t.store.edges {
		switch direction {
		case domain.DirectionInbound:
			if e.To == userID {
				add(e.From)
			}
		case domain.DirectionBoth:
			if e.From == userID {
				add(e.To)
			}
			if e.To == userID {
				add(e.From)
			}
		default:
			if e.From == userID {
				add(e.To)
			}
		}
	}
	return out, nil
}

func (t *memoryTx) NearestFraudPattern(ctx context.Context, embedding []float32) (*domain.PatternMatch, error) {
	if t.store.NearestErr != nil {
		return nil, t.store.NearestErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return patterns.NearestMatch(t.store.patterns, embedding), nil
}

func (t *memoryTx) GetLastDecisionHash(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Held until commit or rollback so overlapping transactions cannot
	// read the same chain head and fork the chain.
	if !t.chainHeld {
		t.store.chainMu.Lock()
		t.chainHeld = true
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	if len(t.store.decisions) == 0 {
		return nil, nil
	}
	return t.store.decisions[len(t.store.decisions)-1].EntryHash, nil
}

func (t *memoryTx) AppendFraudDecision(ctx context.Context, d *domain.FraudDecision) error {
	if t.store.AppendDecisionErr != nil {
		return t.store.AppendDecisionErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.stagedDecisions = append(t.stagedDecisions, *d)
	return nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.store.CommitErr != nil {
		return t.store.CommitErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.finished {
		return nil
	}
	t.finished = true

	t.store.mu.Lock()
	for _, dc := range t.stagedDevices {
		t.store.appendDeviceLocked(dc)
	}
	t.store.decisions = append(t.store.decisions, t.stagedDecisions...)
	t.store.mu.Unlock()

	t.releaseChain()
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	t.finished = true
	t.stagedDevices = nil
	t.stagedDecisions = nil
	t.releaseChain()
	return nil
}

func (t *memoryTx) releaseChain() {
	if t.chainHeld {
		t.chainHeld = false
		t.store.chainMu.Unlock()
	}
}

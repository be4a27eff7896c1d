package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/patterns"
	"github.com/banking/fraud-engine/internal/pkg/logger"
)

// PostgresStore is the pgx-backed SignalStore. Nearest-pattern lookups are
// served from the in-memory catalog snapshot rather than the database; the
// catalog is static reference data refreshed out of band.
type PostgresStore struct {
	pool    *pgxpool.Pool
	catalog *patterns.Catalog
	log     *logger.Logger
}

var _ SignalStore = (*PostgresStore)(nil)

// NewPostgresStore creates a Postgres-backed signal store.
func NewPostgresStore(pool *pgxpool.Pool, catalog *patterns.Catalog, log *logger.Logger) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		catalog: catalog,
		log:     log.Named("postgres_store"),
	}
}

// Begin opens a read-committed transaction. Chained audit appends serialize
// on an advisory lock taken at the chain-head read; read committed lets that
// read observe the entry committed by the previous lock holder rather than a
// stale snapshot.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &postgresTx{tx: tx, catalog: s.catalog}, nil
}

// ListFraudDecisions returns the full audit history in append order.
func (s *PostgresStore) ListFraudDecisions(ctx context.Context) ([]domain.FraudDecision, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, transaction_id, user_id, decision, risk_score, reasons,
		       decided_at, decided_by, prev_hash, entry_hash
		FROM fraud_decisions
		ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query fraud decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.FraudDecision
	for rows.Next() {
		var d domain.FraudDecision
		var reasonsRaw []byte
		if err := rows.Scan(&d.ID, &d.TransactionID, &d.UserID, &d.Decision,
			&d.RiskScore, &reasonsRaw, &d.DecidedAt, &d.DecidedBy,
			&d.PrevHash, &d.EntryHash); err != nil {
			return nil, fmt.Errorf("scan fraud decision: %w", err)
		}
		if err := json.Unmarshal(reasonsRaw, &d.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons for decision %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// postgresTx wraps pgx.Tx. A single pgx transaction is bound to one
// connection, so statement execution is serialized with a mutex; the
// evaluators still overlap their non-store work.
type postgresTx struct {
	tx      pgx.Tx
	catalog *patterns.Catalog
	mu      sync.Mutex
}

var _ Tx = (*postgresTx)(nil)

func (t *postgresTx) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user %s: %w", userID, err)
	}
	return exists, nil
}

func (t *postgresTx) CountRecentTransactions(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var count int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM transactions t
		JOIN accounts a ON a.id = t.from_account
		WHERE a.id = $1 AND t.timestamp >= $2`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent transactions for %s: %w", userID, err)
	}
	return count, nil
}

func (t *postgresTx) GetDeviceHistory(ctx context.Context, userID uuid.UUID, deviceID string) (*domain.DeviceContext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var dc domain.DeviceContext
	var signalsRaw, attrsRaw []byte
	err := t.tx.QueryRow(ctx, `
		SELECT device_id, risk_signals, attributes, recorded_at
		FROM device_contexts
		WHERE user_id = $1 AND device_id = $2
		ORDER BY recorded_at DESC
		LIMIT 1`, userID, deviceID).Scan(&dc.DeviceID, &signalsRaw, &attrsRaw, &dc.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device history for %s/%s: %w", userID, deviceID, err)
	}

	if err := json.Unmarshal(signalsRaw, &dc.RiskSignals); err != nil {
		return nil, fmt.Errorf("decode risk signals: %w", err)
	}
	if len(attrsRaw) > 0 {
		if err := json.Unmarshal(attrsRaw, &dc.Attributes); err != nil {
			return nil, fmt.Errorf("decode device attributes: %w", err)
		}
	}
	dc.UserID = userID
	return &dc, nil
}

func (t *postgresTx) AppendDeviceContext(ctx context.Context, dc domain.DeviceContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	signalsRaw, err := json.Marshal(dc.RiskSignals)
	if err != nil {
		return fmt.Errorf("encode risk signals: %w", err)
	}
	var attrsRaw []byte
	if dc.Attributes != nil {
		if attrsRaw, err = json.Marshal(dc.Attributes); err != nil {
			return fmt.Errorf("encode device attributes: %w", err)
		}
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO device_contexts (user_id, device_id, risk_signals, attributes, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
		dc.UserID, dc.DeviceID, signalsRaw, attrsRaw, dc.RecordedAt)
	if err != nil {
		return fmt.Errorf("append device context: %w", err)
	}
	return nil
}

func (t *postgresTx) GetDirectConnections(ctx context.Context, userID uuid.UUID, direction domain.TraversalDirection) ([]domain.Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var query string
	switch direction {
	case domain.DirectionInbound:
		query = `
			SELECT a.id, a.risk_score
			FROM relationship_edges e
			JOIN accounts a ON a.id = e.from_user
			WHERE e.to_user = $1`
	case domain.DirectionBoth:
		query = `
			SELECT a.id, a.risk_score
			FROM relationship_edges e
			JOIN accounts a ON a.id = e.to_user
			WHERE e.from_user = $1
			UNION
			SELECT a.id, a.risk_score
			FROM relationship_edges e
			JOIN accounts a ON a.id = e.from_user
			WHERE e.to_user = $1`
	default:
		query = `
			SELECT a.id, a.risk_score
			FROM relationship_edges e
			JOIN accounts a ON a.id = e.to_user
			WHERE e.from_user = $1`
	}

	rows, err := t.tx.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get direct connections for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.Connection
	for rows.Next() {
		var c domain.Connection
		if err := rows.Scan(&c.ConnectedUserID, &c.RiskScore); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *postgresTx) NearestFraudPattern(ctx context.Context, embedding []float32) (*domain.PatternMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.catalog.Nearest(embedding), nil
}

// auditChainLock is the advisory lock key serializing chained audit appends
// across transactions.
const auditChainLock = 824600

func (t *postgresTx) GetLastDecisionHash(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Transaction-scoped: held until commit or rollback. Without it two
	// overlapping evaluations read the same chain head and fork the chain.
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, auditChainLock); err != nil {
		return nil, fmt.Errorf("lock audit chain: %w", err)
	}

	var hash []byte
	err := t.tx.QueryRow(ctx, `
		SELECT entry_hash FROM fraud_decisions
		ORDER BY seq DESC
		LIMIT 1`).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last decision hash: %w", err)
	}
	return hash, nil
}

func (t *postgresTx) AppendFraudDecision(ctx context.Context, d *domain.FraudDecision) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	reasonsRaw, err := json.Marshal(d.Reasons)
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO fraud_decisions
			(id, transaction_id, user_id, decision, risk_score, reasons,
			 decided_at, decided_by, prev_hash, entry_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.TransactionID, d.UserID, d.Decision, d.RiskScore, reasonsRaw,
		d.DecidedAt, d.DecidedBy, d.PrevHash, d.EntryHash)
	if err != nil {
		return fmt.Errorf("append fraud decision: %w", err)
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tx.Rollback(ctx)
}

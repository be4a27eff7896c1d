package patterns

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/fraud-engine/internal/domain"
)

// PostgresSource reads the pattern catalog from the fraud_patterns table
// the upstream ML pipeline maintains.
type PostgresSource struct {
	pool *pgxpool.Pool
}

var _ Source = (*PostgresSource)(nil)

// NewPostgresSource creates a Postgres-backed catalog source.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// FetchAll loads every catalog entry.
func (s *PostgresSource) FetchAll(ctx context.Context) ([]domain.FraudPattern, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, description, severity, embedding
		FROM fraud_patterns
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query fraud patterns: %w", err)
	}
	defer rows.Close()

	var out []domain.FraudPattern
	for rows.Next() {
		var p domain.FraudPattern
		var severity string
		if err := rows.Scan(&p.ID, &p.Description, &severity, &p.Embedding); err != nil {
			return nil, fmt.Errorf("scan fraud pattern: %w", err)
		}
		p.Severity = domain.Severity(severity)
		out = append(out, p)
	}
	return out, rows.Err()
}

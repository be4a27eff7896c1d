package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus represents the lifecycle state of a payment
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "PENDING"
	TxStatusCompleted TransactionStatus = "COMPLETED"
	TxStatusReversed  TransactionStatus = "REVERSED"
)

// Transaction represents the payment under evaluation. Transactions are
// created by the payment path and are read-only input to this engine.
type Transaction struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	FromAccount uuid.UUID         `json:"from_account" db:"from_account"`
	ToAccount   uuid.UUID         `json:"to_account" db:"to_account"`
	Amount      float64           `json:"amount" db:"amount"`
	Timestamp   time.Time         `json:"timestamp" db:"timestamp"`
	Status      TransactionStatus `json:"status" db:"status"`
}

// Account references an identity-subsystem user. The engine reads RiskScore
// (maintained out-of-band by upstream scoring) and never mutates the rest.
type Account struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RiskScore float64   `json:"risk_score" db:"risk_score"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

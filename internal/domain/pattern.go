package domain

// Severity grades a known fraud pattern
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// FraudPattern is one entry in the static reference catalog of known fraud
// embeddings. The catalog is produced by a separate ML pipeline and is
// read-only here.
type FraudPattern struct {
	ID          string    `json:"id" db:"id"`
	Description string    `json:"description" db:"description"`
	Severity    Severity  `json:"severity" db:"severity"`
	Embedding   []float32 `json:"embedding" db:"embedding"`
}

// PatternMatch is the single nearest catalog entry for a query embedding.
// Lower distance means more similar; ties are broken by lowest pattern id.
type PatternMatch struct {
	PatternID string   `json:"pattern_id"`
	Severity  Severity `json:"severity"`
	Distance  float64  `json:"distance"`
}

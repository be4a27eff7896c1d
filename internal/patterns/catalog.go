// Package patterns maintains the in-memory catalog of known fraud-pattern
// embeddings and the nearest-match similarity search over it. The catalog is
// reference data produced by an upstream ML pipeline; this package only
// loads, caches and queries it.
package patterns

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/pkg/logger"
)

// Source provides the full pattern catalog from some backing system.
type Source interface {
	FetchAll(ctx context.Context) ([]domain.FraudPattern, error)
}

// Catalog holds the current pattern snapshot for lock-free-ish reads.
// Lookups keep working on the last good snapshot if a refresh fails.
type Catalog struct {
	mu      sync.RWMutex
	entries []domain.FraudPattern

	log *logger.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(log *logger.Logger) *Catalog {
	return &Catalog{log: log.Named("pattern_catalog")}
}

// SetEntries replaces the catalog snapshot. Entries are kept sorted by id so
// nearest-match ties resolve to the lowest pattern id deterministically.
func (c *Catalog) SetEntries(entries []domain.FraudPattern) {
	sorted := make([]domain.FraudPattern, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	c.mu.Lock()
	c.entries = sorted
	c.mu.Unlock()
}

// Len returns the number of patterns in the current snapshot.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Nearest returns the single nearest pattern by cosine distance, or nil when
// the catalog is empty.
func (c *Catalog) Nearest(embedding []float32) *domain.PatternMatch {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return NearestMatch(c.entries, embedding)
}

// Refresh reloads the catalog from the source.
func (c *Catalog) Refresh(ctx context.Context, src Source) error {
	entries, err := src.FetchAll(ctx)
	if err != nil {
		return err
	}
	c.SetEntries(entries)
	c.log.PatternCatalogRefreshed(len(entries), "source")
	return nil
}

// RunRefresh reloads the catalog on an interval until ctx is cancelled.
// A failed refresh is logged and the previous snapshot stays in service.
func (c *Catalog) RunRefresh(ctx context.Context, src Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx, src); err != nil {
				c.log.Warn("pattern catalog refresh failed", logger.ErrorField(err))
			}
		}
	}
}

// NearestMatch scans entries (assumed sorted by id) for the single nearest
// pattern by cosine distance. Entries whose embedding dimensionality differs
// from the query are skipped. Returns nil for an empty catalog.
func NearestMatch(entries []domain.FraudPattern, embedding []float32) *domain.PatternMatch {
	var best *domain.PatternMatch
	for _, p := range entries {
		if len(p.Embedding) != len(embedding) {
			continue
		}
		d := CosineDistance(embedding, p.Embedding)
		if best == nil || d < best.Distance {
			best = &domain.PatternMatch{
				PatternID: p.ID,
				Severity:  p.Severity,
				Distance:  d,
			}
		}
	}
	return best
}

// CosineDistance returns 1 - cosine similarity, so lower means more similar.
// A zero-norm vector has no direction and is treated as maximally distant.
func CosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// Package engine implements the fraud decision pipeline: four independent
// signal evaluators run concurrently against one shared store transaction,
// an aggregator folds their contributions into a score and decision, and a
// recorder appends the hash-chained audit record atomically with the device
// context. Each invocation is a one-shot unit of work with no state shared
// between invocations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/banking/fraud-engine/internal/audit"
	"github.com/banking/fraud-engine/internal/config"
	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/pkg/logger"
	"github.com/banking/fraud-engine/internal/store"
)

// DecisionPublisher is notified after a decision has durably committed.
// Publishing is best-effort and can never un-commit a decision.
type DecisionPublisher interface {
	DecisionRecorded(ctx context.Context, d *domain.FraudDecision) error
}

// Result is what Evaluate returns to its caller.
type Result struct {
	DecisionID uuid.UUID              `json:"decision_id"`
	Decision   domain.Decision        `json:"decision"`
	RiskScore  float64                `json:"risk_score"`
	Reasons    domain.DecisionReasons `json:"reasons"`
}

// Engine orchestrates the evaluate-then-persist pipeline and owns the
// transaction boundary.
type Engine struct {
	store     store.SignalStore
	cfg       *config.EngineConfig
	log       *logger.Logger
	tracer    trace.Tracer
	publisher DecisionPublisher

	velocity   *VelocityEvaluator
	device     *DeviceRiskEvaluator
	network    *NetworkProximityEvaluator
	pattern    *PatternSimilarityEvaluator
	aggregator *RiskAggregator
	recorder   *DecisionRecorder
}

// New creates a decision engine. publisher may be nil.
func New(signals store.SignalStore, cfg *config.EngineConfig, log *logger.Logger, publisher DecisionPublisher) *Engine {
	return &Engine{
		store:      signals,
		cfg:        cfg,
		log:        log.Named("decision_engine"),
		tracer:     otel.Tracer("fraud-engine"),
		publisher:  publisher,
		velocity:   NewVelocityEvaluator(cfg.Velocity),
		device:     NewDeviceRiskEvaluator(cfg.Device),
		network:    NewNetworkProximityEvaluator(cfg.Network),
		pattern:    NewPatternSimilarityEvaluator(cfg.Pattern),
		aggregator: NewRiskAggregator(cfg.Thresholds),
		recorder:   NewDecisionRecorder(),
	}
}

// Evaluate runs the full pipeline for one candidate transaction: validate,
// open a transaction, run the four evaluators concurrently through it,
// aggregate, persist decision + device context, commit. Any fatal
// failure rolls everything back; no partial decision is ever persisted.
func (e *Engine) Evaluate(
	ctx context.Context,
	transactionID, userID uuid.UUID,
	amount float64,
	rawDevice map[string]any,
	embedding []float32,
) (*Result, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "fraud.evaluate", trace.WithAttributes(
		attribute.String("transaction_id", transactionID.String()),
		attribute.String("user_id", userID.String()),
		attribute.Float64("amount", amount),
	))
	defer span.End()

	// InvalidInput surfaces immediately, before any side effects.
	if transactionID == uuid.Nil || userID == uuid.Nil {
		return nil, fmt.Errorf("%w: transaction and user ids are required", ErrInvalidInput)
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative amount %.2f", ErrInvalidInput, amount)
	}
	dc, err := domain.ParseDeviceContext(rawDevice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(embedding) != e.cfg.EmbeddingDim {
		return nil, fmt.Errorf("%w: embedding has %d dimensions, want %d",
			ErrInvalidInput, len(embedding), e.cfg.EmbeddingDim)
	}

	e.log.EvaluationStarted(transactionID.String(), userID.String())

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, classify(err, ErrSignalUnavailable)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	known, err := tx.UserExists(ctx, userID)
	if err != nil {
		return nil, classify(err, ErrSignalUnavailable)
	}
	if !known {
		return nil, fmt.Errorf("%w: unknown user %s", ErrInvalidInput, userID)
	}

	// The four evaluators have no data dependency on one another; they
	// synchronize only at aggregation. All read through the same tx.
	var mu sync.Mutex
	var reasons domain.DecisionReasons

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.runEvaluator(gctx, "velocity", transactionID, e.cfg.Velocity.FailOpen, func(c context.Context) error {
			r, err := e.velocity.Evaluate(c, tx, userID)
			if err != nil {
				return err
			}
			mu.Lock()
			reasons.Velocity = r
			mu.Unlock()
			return nil
		})
	})

	g.Go(func() error {
		return e.runEvaluator(gctx, "device_risk", transactionID, e.cfg.Device.FailOpen, func(c context.Context) error {
			r, err := e.device.Evaluate(c, tx, userID, dc)
			if err != nil {
				return err
			}
			mu.Lock()
			reasons.Device = r
			mu.Unlock()
			return nil
		})
	})

	g.Go(func() error {
		return e.runEvaluator(gctx, "network_proximity", transactionID, e.cfg.Network.FailOpen, func(c context.Context) error {
			r, err := e.network.Evaluate(c, tx, userID)
			if err != nil {
				return err
			}
			mu.Lock()
			reasons.Network = r
			mu.Unlock()
			return nil
		})
	})

	g.Go(func() error {
		return e.runEvaluator(gctx, "pattern_similarity", transactionID, e.cfg.Pattern.FailOpen, func(c context.Context) error {
			r, err := e.pattern.Evaluate(c, tx, embedding)
			if err != nil {
				return err
			}
			mu.Lock()
			reasons.Pattern = r
			mu.Unlock()
			return nil
		})
	})

	if err := g.Wait(); err != nil {
		err = classify(err, ErrSignalUnavailable)
		e.log.EvaluationAborted(transactionID.String(), "evaluator", err)
		return nil, err
	}

	score, decision := e.aggregator.Aggregate(reasons)

	d := &domain.FraudDecision{
		ID:            uuid.New(),
		TransactionID: transactionID,
		UserID:        userID,
		Decision:      decision,
		RiskScore:     score,
		Reasons:       reasons,
		DecidedAt:     time.Now().UTC().Truncate(time.Microsecond),
		DecidedBy:     e.cfg.DecidedBy,
	}

	if err := e.recorder.Record(ctx, tx, d, dc); err != nil {
		err = classify(err, ErrPersistenceFailure)
		e.log.EvaluationAborted(transactionID.String(), "recorder", err)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		err = classify(fmt.Errorf("commit: %w", err), ErrPersistenceFailure)
		e.log.EvaluationAborted(transactionID.String(), "commit", err)
		return nil, err
	}
	committed = true

	span.SetAttributes(
		attribute.String("decision", string(decision)),
		attribute.Float64("risk_score", score),
	)
	e.log.DecisionRecorded(d.ID.String(), transactionID.String(), string(decision))
	e.log.EvaluationCompleted(transactionID.String(), string(decision), score, time.Since(start).Milliseconds())

	if e.publisher != nil {
		if err := e.publisher.DecisionRecorded(ctx, d); err != nil {
			e.log.Warn("decision event publish failed", logger.ErrorField(err))
		}
	}

	return &Result{
		DecisionID: d.ID,
		Decision:   decision,
		RiskScore:  score,
		Reasons:    reasons,
	}, nil
}

// runEvaluator applies the per-evaluator timeout and fail-open/fail-closed
// policy around one signal read.
func (e *Engine) runEvaluator(ctx context.Context, name string, txID uuid.UUID, failOpen bool, fn func(context.Context) error) error {
	evalCtx, cancel := context.WithTimeout(ctx, e.cfg.EvaluatorTimeout)
	defer cancel()

	err := fn(evalCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		// The whole evaluation is being torn down; policy does not apply.
		return classify(ctx.Err(), ErrCancelled)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s timed out after %s", ErrSignalUnavailable, name, e.cfg.EvaluatorTimeout)
	}
	e.log.EvaluatorFailed(name, txID.String(), failOpen, err)
	if failOpen {
		return nil
	}
	return err
}

// DiscoverFraudRing produces the investigative bounded-depth neighborhood
// report for a user. Read-only; never part of the automated score.
func (e *Engine) DiscoverFraudRing(ctx context.Context, userID uuid.UUID) (*domain.FraudRingReport, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, classify(err, ErrSignalUnavailable)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	known, err := tx.UserExists(ctx, userID)
	if err != nil {
		return nil, classify(err, ErrSignalUnavailable)
	}
	if !known {
		return nil, fmt.Errorf("%w: unknown user %s", ErrInvalidInput, userID)
	}

	report, err := e.network.DiscoverRing(ctx, tx, userID)
	if err != nil {
		return nil, classify(err, ErrSignalUnavailable)
	}
	return report, nil
}

// VerifyAuditChain recomputes the hash chain over the full decision history
// and returns the ids of corrupted entries plus the number of entries
// checked.
func (e *Engine) VerifyAuditChain(ctx context.Context) ([]uuid.UUID, int, error) {
	decisions, err := e.store.ListFraudDecisions(ctx)
	if err != nil {
		return nil, 0, classify(err, ErrSignalUnavailable)
	}

	corrupted := audit.VerifyChain(decisions)
	e.log.ChainVerified(len(decisions), len(corrupted))
	return corrupted, len(decisions), nil
}

package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with fraud-engine specific functionality
type Logger struct {
	*zap.Logger
	serviceName string
}

// New creates a new logger instance
func New(serviceName, environment string, debug bool) (*Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	// Add service metadata
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     environment,
		"pid":     os.Getpid(),
	}

	zapLogger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger:      zapLogger,
		serviceName: serviceName,
	}, nil
}

// NewNop returns a no-op logger for tests
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), serviceName: "test"}
}

// Named returns a named sub-logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger:      l.Logger.Named(name),
		serviceName: l.serviceName,
	}
}

// EvaluationStarted logs the start of a fraud evaluation
func (l *Logger) EvaluationStarted(txID, userID string) {
	l.Info("evaluation started",
		zap.String("transaction_id", txID),
		zap.String("user_id", userID),
	)
}

// EvaluationCompleted logs the completion of a fraud evaluation
func (l *Logger) EvaluationCompleted(txID string, decision string, riskScore float64, durationMs int64) {
	l.Info("evaluation completed",
		zap.String("transaction_id", txID),
		zap.String("decision", decision),
		zap.Float64("risk_score", riskScore),
		zap.Int64("duration_ms", durationMs),
	)
}

// EvaluatorFailed logs a failed signal read and the policy applied to it.
// Every abort path names the triggering evaluator and the raw error.
func (l *Logger) EvaluatorFailed(evaluator, txID string, failOpen bool, err error) {
	if failOpen {
		l.Warn("evaluator failed, continuing with zero contribution",
			zap.String("evaluator", evaluator),
			zap.String("transaction_id", txID),
			zap.Error(err),
		)
		return
	}
	l.Error("evaluator failed, aborting evaluation",
		zap.String("evaluator", evaluator),
		zap.String("transaction_id", txID),
		zap.Error(err),
	)
}

// EvaluationAborted logs a rolled-back evaluation
func (l *Logger) EvaluationAborted(txID, cause string, err error) {
	l.Error("evaluation aborted, transaction rolled back",
		zap.String("transaction_id", txID),
		zap.String("cause", cause),
		zap.Error(err),
	)
}

// DecisionRecorded logs the durable audit append
func (l *Logger) DecisionRecorded(decisionID, txID string, decision string) {
	l.Info("decision recorded",
		zap.String("decision_id", decisionID),
		zap.String("transaction_id", txID),
		zap.String("decision", decision),
	)
}

// ChainVerified logs the outcome of an audit chain verification run
func (l *Logger) ChainVerified(entries int, corrupted int) {
	if corrupted > 0 {
		l.Error("audit chain verification found corrupted entries",
			zap.Int("entries", entries),
			zap.Int("corrupted", corrupted),
		)
		return
	}
	l.Info("audit chain verified",
		zap.Int("entries", entries),
	)
}

// PatternCatalogRefreshed logs a catalog reload
func (l *Logger) PatternCatalogRefreshed(patterns int, source string) {
	l.Info("fraud pattern catalog refreshed",
		zap.Int("patterns", patterns),
		zap.String("source", source),
	)
}

// Helper field functions

// ErrorField creates an error field
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// StringField creates a string field
func StringField(key, value string) zap.Field {
	return zap.String(key, value)
}

// IntField creates an int field
func IntField(key string, value int) zap.Field {
	return zap.Int(key, value)
}

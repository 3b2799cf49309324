package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// LogSink writes audit records to the structured log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log-backed audit sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the record
func (s *LogSink) Emit(ctx context.Context, record *Record) error {
	s.logger.Info("audit",
		zap.String("actor", record.Actor),
		zap.String("action", record.Action),
		zap.String("target_namespace", record.TargetNamespace),
		zap.Time("timestamp", record.Timestamp),
		zap.Bool("success", record.Success),
		zap.String("detail", record.Detail))
	return nil
}

// PostgresSink appends audit records to the audit_records table
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSink creates a Postgres-backed audit sink sharing a pool
func NewPostgresSink(pool *pgxpool.Pool, logger *zap.Logger) *PostgresSink {
	return &PostgresSink{pool: pool, logger: logger}
}

// Emit inserts the record
func (s *PostgresSink) Emit(ctx context.Context, record *Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_records (actor, action, target_namespace, occurred_at, success, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		record.Actor,
		record.Action,
		record.TargetNamespace,
		record.Timestamp,
		record.Success,
		record.Detail,
	)
	return err
}

// MultiSink fans one record out to several sinks
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMultiSink creates a fan-out sink
func NewMultiSink(logger *zap.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger}
}

// Emit forwards to every sink; a failing sink is logged and skipped so
// the audited operation is never failed by its audit trail
func (s *MultiSink) Emit(ctx context.Context, record *Record) error {
	for _, sink := range s.sinks {
		if err := sink.Emit(ctx, record); err != nil {
			s.logger.Warn("Audit sink emit failed",
				zap.String("action", record.Action),
				zap.Error(err))
		}
	}
	return nil
}

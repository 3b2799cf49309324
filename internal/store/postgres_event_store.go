package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdeck/tenantd/internal/model"
)

// PostgresEventStore implements EventStore over a single append-only
// table. Appends for the same tenant serialize on a per-namespace
// advisory lock so that timestamp order matches commit order.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates an event store sharing an existing pool
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

// Append commits one event. The append is rejected with ErrOutOfOrder if
// its timestamp precedes the latest committed event for the tenant; the
// existing sequence is never mutated.
func (s *PostgresEventStore) Append(ctx context.Context, event *model.StateChangeEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, event.TenantNamespace); err != nil {
		return fmt.Errorf("failed to acquire tenant lock: %w", err)
	}

	var latest time.Time
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(occurred_at), 'epoch'::timestamptz)
		FROM state_change_events
		WHERE tenant_namespace = $1
	`, event.TenantNamespace).Scan(&latest)
	if err != nil {
		return fmt.Errorf("failed to read latest event time: %w", err)
	}

	if err := checkEventOrder(latest, event.OccurredAt); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO state_change_events
			(tenant_namespace, from_status, to_status, caused_by, schedule_id,
			 occurred_at, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		event.TenantNamespace,
		string(event.FromStatus),
		string(event.ToStatus),
		string(event.CausedBy),
		nullIfEmpty(event.ScheduleID),
		event.OccurredAt,
		event.Success,
		nullIfEmpty(event.ErrorMessage),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return tx.Commit(ctx)
}

// checkEventOrder rejects an append whose timestamp precedes the latest
// committed event for the tenant. Equal timestamps are allowed; ties are
// broken by the serial id.
func checkEventOrder(latest, occurredAt time.Time) error {
	if occurredAt.Before(latest) {
		return ErrOutOfOrder
	}
	return nil
}

// LatestAsOf returns the latest event with OccurredAt <= t
func (s *PostgresEventStore) LatestAsOf(ctx context.Context, namespace string, t time.Time) (*model.StateChangeEvent, error) {
	return s.latest(ctx, namespace, `occurred_at <= $2`, t)
}

// LatestBefore returns the latest event with OccurredAt strictly before t
func (s *PostgresEventStore) LatestBefore(ctx context.Context, namespace string, t time.Time) (*model.StateChangeEvent, error) {
	return s.latest(ctx, namespace, `occurred_at < $2`, t)
}

func (s *PostgresEventStore) latest(ctx context.Context, namespace, cond string, t time.Time) (*model.StateChangeEvent, error) {
	query := eventSelect + `
		WHERE tenant_namespace = $1 AND ` + cond + `
		ORDER BY occurred_at DESC, id DESC
		LIMIT 1`

	event, err := scanEvent(s.pool.QueryRow(ctx, query, namespace, t))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest event: %w", err)
	}
	return event, nil
}

// ListBetween returns events with start <= OccurredAt < end, ascending
func (s *PostgresEventStore) ListBetween(ctx context.Context, namespace string, start, end time.Time) ([]*model.StateChangeEvent, error) {
	query := eventSelect + `
		WHERE tenant_namespace = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at, id`

	rows, err := s.pool.Query(ctx, query, namespace, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// History returns up to limit events, most recent first
func (s *PostgresEventStore) History(ctx context.Context, namespace string, limit int) ([]*model.StateChangeEvent, error) {
	query := eventSelect + `
		WHERE tenant_namespace = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, namespace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Ping checks the database connection
func (s *PostgresEventStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is owned by the metadata store
func (s *PostgresEventStore) Close() {}

const eventSelect = `
	SELECT id, tenant_namespace, from_status, to_status, caused_by,
	       COALESCE(schedule_id, ''), occurred_at, success, COALESCE(error_message, '')
	FROM state_change_events`

func scanEvent(row pgx.Row) (*model.StateChangeEvent, error) {
	var event model.StateChangeEvent
	var from, to, cause string
	err := row.Scan(
		&event.ID,
		&event.TenantNamespace,
		&from,
		&to,
		&cause,
		&event.ScheduleID,
		&event.OccurredAt,
		&event.Success,
		&event.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	event.FromStatus = model.TenantStatus(from)
	event.ToStatus = model.TenantStatus(to)
	event.CausedBy = model.EventCause(cause)
	return &event, nil
}

func scanEvents(rows pgx.Rows) ([]*model.StateChangeEvent, error) {
	events := make([]*model.StateChangeEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

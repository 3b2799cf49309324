package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdeck/tenantd/internal/model"
	"go.uber.org/zap"
)

// PostgresMetadataStore implements MetadataStore for PostgreSQL
type PostgresMetadataStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresMetadataStore creates a new PostgreSQL metadata store
func NewPostgresMetadataStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresMetadataStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresMetadataStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// GetPool returns the underlying connection pool for shared use
func (s *PostgresMetadataStore) GetPool() *pgxpool.Pool {
	return s.pool
}

// GetTenant retrieves a tenant record by namespace
func (s *PostgresMetadataStore) GetTenant(ctx context.Context, namespace string) (*model.Tenant, error) {
	query := `
		SELECT namespace, desired_replicas, current_replicas, status,
		       created_at, updated_at, last_scaled_at, last_scaled_by
		FROM tenants
		WHERE namespace = $1
	`

	var tenant model.Tenant
	var status string
	err := s.pool.QueryRow(ctx, query, namespace).Scan(
		&tenant.Namespace,
		&tenant.DesiredReplicas,
		&tenant.CurrentReplicas,
		&status,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
		&tenant.LastScaledAt,
		&tenant.LastScaledBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	tenant.Status = model.TenantStatus(status)
	return &tenant, nil
}

// ListTenants retrieves all tenant records
func (s *PostgresMetadataStore) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	query := `
		SELECT namespace, desired_replicas, current_replicas, status,
		       created_at, updated_at, last_scaled_at, last_scaled_by
		FROM tenants
		ORDER BY namespace
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]*model.Tenant, 0)
	for rows.Next() {
		var tenant model.Tenant
		var status string
		if err := rows.Scan(
			&tenant.Namespace,
			&tenant.DesiredReplicas,
			&tenant.CurrentReplicas,
			&status,
			&tenant.CreatedAt,
			&tenant.UpdatedAt,
			&tenant.LastScaledAt,
			&tenant.LastScaledBy,
		); err != nil {
			return nil, err
		}
		tenant.Status = model.TenantStatus(status)
		tenants = append(tenants, &tenant)
	}

	return tenants, rows.Err()
}

// UpsertTenant creates or refreshes a tenant record. Tenants are
// discovered from the cluster, so there is no separate create path.
func (s *PostgresMetadataStore) UpsertTenant(ctx context.Context, tenant *model.Tenant) error {
	query := `
		INSERT INTO tenants (namespace, desired_replicas, current_replicas, status,
		                     created_at, updated_at, last_scaled_at, last_scaled_by)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), $5, $6)
		ON CONFLICT (namespace) DO UPDATE SET
			desired_replicas = EXCLUDED.desired_replicas,
			current_replicas = EXCLUDED.current_replicas,
			status = EXCLUDED.status,
			updated_at = NOW(),
			last_scaled_at = COALESCE(EXCLUDED.last_scaled_at, tenants.last_scaled_at),
			last_scaled_by = CASE WHEN EXCLUDED.last_scaled_by <> '' THEN EXCLUDED.last_scaled_by ELSE tenants.last_scaled_by END
	`

	_, err := s.pool.Exec(ctx, query,
		tenant.Namespace,
		tenant.DesiredReplicas,
		tenant.CurrentReplicas,
		string(tenant.Status),
		tenant.LastScaledAt,
		tenant.LastScaledBy,
	)
	return err
}

// GetPermission retrieves the current grant row for (subject, namespace)
func (s *PostgresMetadataStore) GetPermission(ctx context.Context, subjectID, namespace string) (*model.NamespacePermission, error) {
	query := `
		SELECT subject_id, namespace, enabled, granted_by, granted_at, revoked_at
		FROM namespace_permissions
		WHERE subject_id = $1 AND namespace = $2
	`

	var perm model.NamespacePermission
	err := s.pool.QueryRow(ctx, query, subjectID, namespace).Scan(
		&perm.SubjectID,
		&perm.Namespace,
		&perm.Enabled,
		&perm.GrantedBy,
		&perm.GrantedAt,
		&perm.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return &perm, nil
}

// ListGrantedNamespaces returns the namespaces with an enabled grant for
// the subject
func (s *PostgresMetadataStore) ListGrantedNamespaces(ctx context.Context, subjectID string) ([]string, error) {
	query := `
		SELECT namespace
		FROM namespace_permissions
		WHERE subject_id = $1 AND enabled = true
		ORDER BY namespace
	`

	rows, err := s.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	namespaces := make([]string, 0)
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}

	return namespaces, rows.Err()
}

// ListPermissions returns all grant rows for a subject, revoked included
func (s *PostgresMetadataStore) ListPermissions(ctx context.Context, subjectID string) ([]*model.NamespacePermission, error) {
	query := `
		SELECT subject_id, namespace, enabled, granted_by, granted_at, revoked_at
		FROM namespace_permissions
		WHERE subject_id = $1
		ORDER BY namespace
	`

	rows, err := s.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := make([]*model.NamespacePermission, 0)
	for rows.Next() {
		var perm model.NamespacePermission
		if err := rows.Scan(
			&perm.SubjectID,
			&perm.Namespace,
			&perm.Enabled,
			&perm.GrantedBy,
			&perm.GrantedAt,
			&perm.RevokedAt,
		); err != nil {
			return nil, err
		}
		perms = append(perms, &perm)
	}

	return perms, rows.Err()
}

// UpsertPermission writes the single current grant row for the
// (subject, namespace) pair. Re-enabling a revoked pair updates the same
// row; rows are never deleted.
func (s *PostgresMetadataStore) UpsertPermission(ctx context.Context, perm *model.NamespacePermission) error {
	query := `
		INSERT INTO namespace_permissions (subject_id, namespace, enabled, granted_by, granted_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject_id, namespace) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at,
			revoked_at = EXCLUDED.revoked_at
	`

	_, err := s.pool.Exec(ctx, query,
		perm.SubjectID,
		perm.Namespace,
		perm.Enabled,
		perm.GrantedBy,
		perm.GrantedAt,
		perm.RevokedAt,
	)
	return err
}

// GetSchedule retrieves a schedule by ID
func (s *PostgresMetadataStore) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	query := scheduleSelect + ` WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	schedule, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}

// ListSchedules retrieves schedules, optionally filtered by namespace
func (s *PostgresMetadataStore) ListSchedules(ctx context.Context, namespace string) ([]*model.Schedule, error) {
	query := scheduleSelect
	args := []interface{}{}
	if namespace != "" {
		query += ` WHERE tenant_namespace = $1`
		args = append(args, namespace)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// ListDueSchedules selects enabled schedules whose next occurrence is at
// or before now
func (s *PostgresMetadataStore) ListDueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	query := scheduleSelect + `
		WHERE enabled = true AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at
	`

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// CreateSchedule creates a new schedule
func (s *PostgresMetadataStore) CreateSchedule(ctx context.Context, schedule *model.Schedule) error {
	query := `
		INSERT INTO schedules (id, tenant_namespace, action, target_replicas, cron_expression,
		                       enabled, description, last_run_at, next_run_at, last_run_status,
		                       created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		schedule.ID,
		schedule.TenantNamespace,
		string(schedule.Action),
		schedule.TargetReplicas,
		schedule.CronExpression,
		schedule.Enabled,
		schedule.Description,
		schedule.LastRunAt,
		schedule.NextRunAt,
		string(schedule.LastRunStatus),
		schedule.CreatedAt,
		schedule.UpdatedAt,
		schedule.CreatedBy,
	)
	return err
}

// UpdateSchedule updates a schedule's definition and bookkeeping fields
func (s *PostgresMetadataStore) UpdateSchedule(ctx context.Context, schedule *model.Schedule) error {
	query := `
		UPDATE schedules
		SET action = $2, target_replicas = $3, cron_expression = $4, enabled = $5,
		    description = $6, next_run_at = $7, updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		schedule.ID,
		string(schedule.Action),
		schedule.TargetReplicas,
		schedule.CronExpression,
		schedule.Enabled,
		schedule.Description,
		schedule.NextRunAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSchedule deletes a schedule
func (s *PostgresMetadataStore) DeleteSchedule(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordScheduleRun writes the outcome of one execution and advances the
// next occurrence
func (s *PostgresMetadataStore) RecordScheduleRun(ctx context.Context, id string, ranAt time.Time, status model.RunStatus, nextRunAt *time.Time) error {
	query := `
		UPDATE schedules
		SET last_run_at = $2, last_run_status = $3, next_run_at = $4, updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query, id, ranAt, string(status), nextRunAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLastRunStatus writes only the run status, used when a due
// schedule is bypassed because a prior run is still in flight
func (s *PostgresMetadataStore) UpdateLastRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	query := `
		UPDATE schedules
		SET last_run_status = $2, updated_at = NOW()
		WHERE id = $1
	`

	_, err := s.pool.Exec(ctx, query, id, string(status))
	return err
}

// Ping checks the database connection
func (s *PostgresMetadataStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresMetadataStore) Close() {
	s.pool.Close()
}

const scheduleSelect = `
	SELECT id, tenant_namespace, action, target_replicas, cron_expression,
	       enabled, description, last_run_at, next_run_at, last_run_status,
	       created_at, updated_at, created_by
	FROM schedules`

func scanSchedule(row pgx.Row) (*model.Schedule, error) {
	var schedule model.Schedule
	var action, runStatus string
	err := row.Scan(
		&schedule.ID,
		&schedule.TenantNamespace,
		&action,
		&schedule.TargetReplicas,
		&schedule.CronExpression,
		&schedule.Enabled,
		&schedule.Description,
		&schedule.LastRunAt,
		&schedule.NextRunAt,
		&runStatus,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
		&schedule.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	schedule.Action = model.ScheduleAction(action)
	schedule.LastRunStatus = model.RunStatus(runStatus)
	return &schedule, nil
}

func scanSchedules(rows pgx.Rows) ([]*model.Schedule, error) {
	schedules := make([]*model.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

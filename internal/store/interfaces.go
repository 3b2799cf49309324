package store

import (
	"context"
	"errors"
	"time"

	"github.com/opsdeck/tenantd/internal/model"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("not found")

// ErrOutOfOrder is returned when an event append would violate the
// per-tenant timestamp ordering of the log
var ErrOutOfOrder = errors.New("event older than latest committed event")

// MetadataStore interface for tenant, permission and schedule operations
type MetadataStore interface {
	// Tenant operations
	GetTenant(ctx context.Context, namespace string) (*model.Tenant, error)
	ListTenants(ctx context.Context) ([]*model.Tenant, error)
	UpsertTenant(ctx context.Context, tenant *model.Tenant) error

	// Permission operations
	GetPermission(ctx context.Context, subjectID, namespace string) (*model.NamespacePermission, error)
	ListGrantedNamespaces(ctx context.Context, subjectID string) ([]string, error)
	ListPermissions(ctx context.Context, subjectID string) ([]*model.NamespacePermission, error)
	UpsertPermission(ctx context.Context, perm *model.NamespacePermission) error

	// Schedule operations
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)
	ListSchedules(ctx context.Context, namespace string) ([]*model.Schedule, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error)
	CreateSchedule(ctx context.Context, schedule *model.Schedule) error
	UpdateSchedule(ctx context.Context, schedule *model.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	RecordScheduleRun(ctx context.Context, id string, ranAt time.Time, status model.RunStatus, nextRunAt *time.Time) error
	UpdateLastRunStatus(ctx context.Context, id string, status model.RunStatus) error

	// Health check
	Ping(ctx context.Context) error
	Close()
}

// EventStore interface for the append-only state change log
type EventStore interface {
	// Append commits one event, serializing per tenant and rejecting
	// timestamps older than the latest committed event for that tenant.
	Append(ctx context.Context, event *model.StateChangeEvent) error

	// LatestAsOf returns the latest event with OccurredAt <= t, or
	// ErrNotFound when no event precedes t.
	LatestAsOf(ctx context.Context, namespace string, t time.Time) (*model.StateChangeEvent, error)

	// LatestBefore returns the latest event with OccurredAt strictly
	// before t, or ErrNotFound.
	LatestBefore(ctx context.Context, namespace string, t time.Time) (*model.StateChangeEvent, error)

	// ListBetween returns events with start <= OccurredAt < end in
	// ascending order.
	ListBetween(ctx context.Context, namespace string, start, end time.Time) ([]*model.StateChangeEvent, error)

	// History returns up to limit events, most recent first.
	History(ctx context.Context, namespace string, limit int) ([]*model.StateChangeEvent, error)

	Ping(ctx context.Context) error
	Close()
}

// Cache interface for keyed values with TTL
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

package service

import (
	"context"
	"time"

	"github.com/opsdeck/tenantd/internal/cluster"
	"github.com/opsdeck/tenantd/internal/model"
	"github.com/stretchr/testify/mock"
)

// MockMetadataStore is a mock of the metadata store
type MockMetadataStore struct {
	mock.Mock
}

func (m *MockMetadataStore) GetTenant(ctx context.Context, namespace string) (*model.Tenant, error) {
	args := m.Called(ctx, namespace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tenant), args.Error(1)
}

func (m *MockMetadataStore) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Tenant), args.Error(1)
}

func (m *MockMetadataStore) UpsertTenant(ctx context.Context, tenant *model.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *MockMetadataStore) GetPermission(ctx context.Context, subjectID, namespace string) (*model.NamespacePermission, error) {
	args := m.Called(ctx, subjectID, namespace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NamespacePermission), args.Error(1)
}

func (m *MockMetadataStore) ListGrantedNamespaces(ctx context.Context, subjectID string) ([]string, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockMetadataStore) ListPermissions(ctx context.Context, subjectID string) ([]*model.NamespacePermission, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.NamespacePermission), args.Error(1)
}

func (m *MockMetadataStore) UpsertPermission(ctx context.Context, perm *model.NamespacePermission) error {
	args := m.Called(ctx, perm)
	return args.Error(0)
}

func (m *MockMetadataStore) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Schedule), args.Error(1)
}

func (m *MockMetadataStore) ListSchedules(ctx context.Context, namespace string) ([]*model.Schedule, error) {
	args := m.Called(ctx, namespace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Schedule), args.Error(1)
}

func (m *MockMetadataStore) ListDueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Schedule), args.Error(1)
}

func (m *MockMetadataStore) CreateSchedule(ctx context.Context, schedule *model.Schedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *MockMetadataStore) UpdateSchedule(ctx context.Context, schedule *model.Schedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *MockMetadataStore) DeleteSchedule(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMetadataStore) RecordScheduleRun(ctx context.Context, id string, ranAt time.Time, status model.RunStatus, nextRunAt *time.Time) error {
	args := m.Called(ctx, id, ranAt, status, nextRunAt)
	return args.Error(0)
}

func (m *MockMetadataStore) UpdateLastRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockMetadataStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockMetadataStore) Close() {
	m.Called()
}

// MockEventStore is a mock of the state change event store
type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) Append(ctx context.Context, event *model.StateChangeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventStore) LatestAsOf(ctx context.Context, namespace string, t time.Time) (*model.StateChangeEvent, error) {
	args := m.Called(ctx, namespace, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StateChangeEvent), args.Error(1)
}

func (m *MockEventStore) LatestBefore(ctx context.Context, namespace string, t time.Time) (*model.StateChangeEvent, error) {
	args := m.Called(ctx, namespace, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StateChangeEvent), args.Error(1)
}

func (m *MockEventStore) ListBetween(ctx context.Context, namespace string, start, end time.Time) ([]*model.StateChangeEvent, error) {
	args := m.Called(ctx, namespace, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.StateChangeEvent), args.Error(1)
}

func (m *MockEventStore) History(ctx context.Context, namespace string, limit int) ([]*model.StateChangeEvent, error) {
	args := m.Called(ctx, namespace, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.StateChangeEvent), args.Error(1)
}

func (m *MockEventStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventStore) Close() {
	m.Called()
}

// MockGateway is a mock of the cluster gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ListNamespaces(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockGateway) GetStatus(ctx context.Context, namespace string) (*cluster.Status, error) {
	args := m.Called(ctx, namespace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cluster.Status), args.Error(1)
}

func (m *MockGateway) Scale(ctx context.Context, namespace string, replicas int32) error {
	args := m.Called(ctx, namespace, replicas)
	return args.Error(0)
}

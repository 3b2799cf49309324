package service

import (
	"context"
	"testing"
	"time"

	"github.com/opsdeck/tenantd/internal/cluster"
	"github.com/opsdeck/tenantd/internal/model"
	"github.com/opsdeck/tenantd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tenantFixture struct {
	metadataStore *MockMetadataStore
	eventStore    *MockEventStore
	gateway       *MockGateway
	service       *TenantService
}

func newTenantFixture() *tenantFixture {
	metadataStore := new(MockMetadataStore)
	eventStore := new(MockEventStore)
	gateway := new(MockGateway)
	cache := store.NewInMemoryCache(100, zap.NewNop())

	return &tenantFixture{
		metadataStore: metadataStore,
		eventStore:    eventStore,
		gateway:       gateway,
		service: NewTenantService(
			metadataStore, eventStore, gateway, cache, time.Minute, nil, nil, zap.NewNop()),
	}
}

func TestGetTenant_DerivesStatusFromCluster(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-a").
		Return(&model.Tenant{Namespace: "ns-a", DesiredReplicas: 3}, nil)
	f.gateway.On("GetStatus", mock.Anything, "ns-a").
		Return(&cluster.Status{Replicas: 3, ReadyReplicas: 2, Workloads: 2}, nil)
	f.metadataStore.On("UpsertTenant", mock.Anything, mock.Anything).Return(nil)

	tenant, err := f.service.GetTenant(context.Background(), "ns-a")

	require.NoError(t, err)
	assert.Equal(t, model.StatusScaling, tenant.Status)
	assert.Equal(t, int32(2), tenant.CurrentReplicas)
	assert.Equal(t, int32(3), tenant.DesiredReplicas)
}

func TestGetTenant_MaterializesUnknownNamespace(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-new").
		Return(nil, store.ErrNotFound)
	f.gateway.On("GetStatus", mock.Anything, "ns-new").
		Return(&cluster.Status{Replicas: 0, ReadyReplicas: 0, Workloads: 1}, nil)
	f.metadataStore.On("UpsertTenant", mock.Anything, mock.MatchedBy(func(tn *model.Tenant) bool {
		return tn.Namespace == "ns-new" && tn.Status == model.StatusStopped
	})).Return(nil)

	tenant, err := f.service.GetTenant(context.Background(), "ns-new")

	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, tenant.Status)
	f.metadataStore.AssertExpectations(t)
}

func TestGetTenant_NotFoundAnywhere(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-x").
		Return(nil, store.ErrNotFound)
	f.gateway.On("GetStatus", mock.Anything, "ns-x").
		Return(nil, cluster.ErrNotFound)

	_, err := f.service.GetTenant(context.Background(), "ns-x")

	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetTenant_ClusterDownFallsBackToStored(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-a").
		Return(&model.Tenant{Namespace: "ns-a", Status: model.StatusRunning}, nil)
	f.gateway.On("GetStatus", mock.Anything, "ns-a").
		Return(nil, cluster.ErrUnavailable)

	tenant, err := f.service.GetTenant(context.Background(), "ns-a")

	require.NoError(t, err)
	assert.Equal(t, model.StatusUnknown, tenant.Status)
}

func TestGetTenant_SecondReadHitsCache(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-a").
		Return(&model.Tenant{Namespace: "ns-a"}, nil).Once()
	f.gateway.On("GetStatus", mock.Anything, "ns-a").
		Return(&cluster.Status{Replicas: 1, ReadyReplicas: 1, Workloads: 1}, nil).Once()
	f.metadataStore.On("UpsertTenant", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.service.GetTenant(context.Background(), "ns-a")
	require.NoError(t, err)
	tenant, err := f.service.GetTenant(context.Background(), "ns-a")
	require.NoError(t, err)

	assert.Equal(t, model.StatusRunning, tenant.Status)
	f.gateway.AssertExpectations(t)
}

func TestGetTenant_CachedSnapshotIsIsolated(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-a").
		Return(&model.Tenant{Namespace: "ns-a"}, nil).Once()
	f.gateway.On("GetStatus", mock.Anything, "ns-a").
		Return(&cluster.Status{Replicas: 1, ReadyReplicas: 1, Workloads: 1}, nil).Once()
	f.metadataStore.On("UpsertTenant", mock.Anything, mock.Anything).Return(nil).Once()

	first, err := f.service.GetTenant(context.Background(), "ns-a")
	require.NoError(t, err)

	// Mutating one caller's snapshot must not bleed into the cache or
	// into other callers
	first.Status = model.StatusError
	first.CurrentReplicas = 99

	second, err := f.service.GetTenant(context.Background(), "ns-a")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, model.StatusRunning, second.Status)
	assert.Equal(t, int32(1), second.CurrentReplicas)
}

func TestStart_DefaultsToOneReplica(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-a").
		Return(&model.Tenant{Namespace: "ns-a"}, nil)
	f.gateway.On("GetStatus", mock.Anything, "ns-a").
		Return(&cluster.Status{Replicas: 0, ReadyReplicas: 0, Workloads: 1}, nil)
	f.metadataStore.On("UpsertTenant", mock.Anything, mock.Anything).Return(nil)
	f.gateway.On("Scale", mock.Anything, "ns-a", int32(1)).Return(nil).Once()
	f.eventStore.On("Append", mock.Anything, mock.MatchedBy(func(e *model.StateChangeEvent) bool {
		return e.FromStatus == model.StatusStopped &&
			e.ToStatus == model.StatusRunning &&
			e.CausedBy == model.CauseManual &&
			e.Success
	})).Return(nil).Once()

	tenant, err := f.service.Start(context.Background(), "ns-a", "u1")

	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, tenant.Status)
	assert.Equal(t, "u1", tenant.LastScaledBy)
	f.gateway.AssertExpectations(t)
	f.eventStore.AssertExpectations(t)
}

func TestStart_RestoresDesiredReplicas(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-a").
		Return(&model.Tenant{Namespace: "ns-a", DesiredReplicas: 5}, nil)
	f.gateway.On("GetStatus", mock.Anything, "ns-a").
		Return(&cluster.Status{Replicas: 0, ReadyReplicas: 0, Workloads: 1}, nil)
	f.metadataStore.On("UpsertTenant", mock.Anything, mock.Anything).Return(nil)
	f.gateway.On("Scale", mock.Anything, "ns-a", int32(5)).Return(nil).Once()
	f.eventStore.On("Append", mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.Start(context.Background(), "ns-a", "u1")

	require.NoError(t, err)
	f.gateway.AssertExpectations(t)
}

func TestStart_AlreadyRunning(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-a").
		Return(&model.Tenant{Namespace: "ns-a", DesiredReplicas: 3}, nil)
	f.gateway.On("GetStatus", mock.Anything, "ns-a").
		Return(&cluster.Status{Replicas: 3, ReadyReplicas: 3, Workloads: 1}, nil)
	f.metadataStore.On("UpsertTenant", mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.Start(context.Background(), "ns-a", "u1")

	assert.ErrorIs(t, err, ErrAlreadyInState)
	f.gateway.AssertNotCalled(t, "Scale", mock.Anything, mock.Anything, mock.Anything)
}

func TestStop_AlreadyStopped(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-a").
		Return(&model.Tenant{Namespace: "ns-a"}, nil)
	f.gateway.On("GetStatus", mock.Anything, "ns-a").
		Return(&cluster.Status{Replicas: 0, ReadyReplicas: 0, Workloads: 1}, nil)
	f.metadataStore.On("UpsertTenant", mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.Stop(context.Background(), "ns-a", "u1")

	assert.ErrorIs(t, err, ErrAlreadyInState)
}

func TestScale_RejectsInvalidReplicas(t *testing.T) {
	f := newTenantFixture()

	_, err := f.service.Scale(context.Background(), "ns-a", -1, "u1")
	assert.ErrorIs(t, err, ErrInvalidReplicas)

	_, err = f.service.Scale(context.Background(), "ns-a", maxReplicas+1, "u1")
	assert.ErrorIs(t, err, ErrInvalidReplicas)
}

func TestScale_FailureRecordsFailedEvent(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-a").
		Return(&model.Tenant{Namespace: "ns-a", DesiredReplicas: 3}, nil)
	f.gateway.On("GetStatus", mock.Anything, "ns-a").
		Return(&cluster.Status{Replicas: 3, ReadyReplicas: 3, Workloads: 1}, nil)
	f.metadataStore.On("UpsertTenant", mock.Anything, mock.Anything).Return(nil)
	f.gateway.On("Scale", mock.Anything, "ns-a", int32(5)).
		Return(cluster.ErrConflict).Once()
	f.eventStore.On("Append", mock.Anything, mock.MatchedBy(func(e *model.StateChangeEvent) bool {
		return !e.Success &&
			e.FromStatus == e.ToStatus &&
			e.ErrorMessage != ""
	})).Return(nil).Once()

	_, err := f.service.Scale(context.Background(), "ns-a", 5, "u1")

	require.Error(t, err)
	assert.ErrorIs(t, err, cluster.ErrConflict)
	f.eventStore.AssertExpectations(t)
}

func TestScale_ToZeroRecordsStopped(t *testing.T) {
	f := newTenantFixture()
	f.metadataStore.On("GetTenant", mock.Anything, "ns-a").
		Return(&model.Tenant{Namespace: "ns-a", DesiredReplicas: 3}, nil)
	f.gateway.On("GetStatus", mock.Anything, "ns-a").
		Return(&cluster.Status{Replicas: 3, ReadyReplicas: 3, Workloads: 1}, nil)
	f.metadataStore.On("UpsertTenant", mock.Anything, mock.Anything).Return(nil)
	f.gateway.On("Scale", mock.Anything, "ns-a", int32(0)).Return(nil).Once()
	f.eventStore.On("Append", mock.Anything, mock.MatchedBy(func(e *model.StateChangeEvent) bool {
		return e.ToStatus == model.StatusStopped && e.Success
	})).Return(nil).Once()

	tenant, err := f.service.Scale(context.Background(), "ns-a", 0, "u1")

	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, tenant.Status)
	// Desired replicas survive a stop so a later start can restore them
	assert.Equal(t, int32(3), tenant.DesiredReplicas)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeck/tenantd/internal/audit"
	"github.com/opsdeck/tenantd/internal/cluster"
	"github.com/opsdeck/tenantd/internal/metrics"
	"github.com/opsdeck/tenantd/internal/model"
	"github.com/opsdeck/tenantd/internal/store"
	"go.uber.org/zap"
)

// ErrAlreadyInState is returned when a start or stop would not change
// the tenant's state
var ErrAlreadyInState = errors.New("tenant already in requested state")

// ErrInvalidReplicas is returned for a scale request outside the
// accepted range
var ErrInvalidReplicas = errors.New("invalid replica count")

// maxReplicas bounds manual and scheduled scale targets
const maxReplicas = 100

// TenantService manages tenant state reads and manual lifecycle actions.
// Every state-changing action appends one event to the log and one audit
// record, whether or not the cluster call succeeded.
type TenantService struct {
	metadataStore store.MetadataStore
	eventStore    store.EventStore
	gateway       cluster.Gateway
	cache         store.Cache
	cacheTTL      time.Duration
	auditSink     audit.Sink
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(
	metadataStore store.MetadataStore,
	eventStore store.EventStore,
	gateway cluster.Gateway,
	cache store.Cache,
	cacheTTL time.Duration,
	auditSink audit.Sink,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TenantService {
	return &TenantService{
		metadataStore: metadataStore,
		eventStore:    eventStore,
		gateway:       gateway,
		cache:         cache,
		cacheTTL:      cacheTTL,
		auditSink:     auditSink,
		metrics:       m,
		logger:        logger,
	}
}

// GetTenant returns the tenant with its status derived from a live
// replica snapshot, using the cache if available. A tenant present in
// the cluster but not yet in the store is materialized on first read.
func (s *TenantService) GetTenant(ctx context.Context, namespace string) (*model.Tenant, error) {
	cacheKey := s.tenantCacheKey(namespace)
	if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
		if tenant, ok := cached.(*model.Tenant); ok {
			s.recordCacheHit("tenant")
			// The cached instance is shared between callers; hand out
			// a copy so nobody mutates it in place
			return tenant.Clone(), nil
		}
	}
	s.recordCacheMiss("tenant")

	tenant, err := s.metadataStore.GetTenant(ctx, namespace)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to fetch tenant from metadata store: %w", err)
	}

	status, statusErr := s.gateway.GetStatus(ctx, namespace)
	if statusErr != nil {
		if errors.Is(statusErr, cluster.ErrNotFound) && tenant == nil {
			return nil, store.ErrNotFound
		}
		if tenant == nil {
			return nil, fmt.Errorf("failed to read cluster status: %w", statusErr)
		}
		// Stale metadata is better than nothing, but its status is not
		// trustworthy while the cluster is unreachable
		s.logger.Warn("Cluster status unavailable, returning stored tenant",
			zap.String("namespace", namespace),
			zap.Error(statusErr))
		tenant.Status = model.StatusUnknown
		return tenant, nil
	}

	now := time.Now().UTC()
	if tenant == nil {
		tenant = &model.Tenant{
			Namespace: namespace,
			CreatedAt: now,
		}
	}
	tenant.CurrentReplicas = status.ReadyReplicas
	if status.Replicas > 0 {
		tenant.DesiredReplicas = status.Replicas
	}
	tenant.Status = model.DeriveStatus(status.Replicas, status.ReadyReplicas)
	tenant.UpdatedAt = now

	if err := s.metadataStore.UpsertTenant(ctx, tenant); err != nil {
		s.logger.Warn("Failed to persist tenant snapshot",
			zap.String("namespace", namespace),
			zap.Error(err))
	}

	if err := s.cache.Set(ctx, cacheKey, tenant.Clone(), s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache tenant",
			zap.String("namespace", namespace),
			zap.Error(err))
	}

	return tenant, nil
}

// ListTenants returns all known tenants from the metadata store. The
// reconciler keeps the store in step with the cluster; list reads do not
// fan out live status calls per namespace.
func (s *TenantService) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	tenants, err := s.metadataStore.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	if s.metrics != nil {
		s.metrics.UpdateTenantsObserved(len(tenants))
	}
	return tenants, nil
}

// Start scales the tenant's workloads back up to its desired replica
// count, defaulting to one replica when none was recorded
func (s *TenantService) Start(ctx context.Context, namespace, actor string) (*model.Tenant, error) {
	tenant, err := s.GetTenant(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if tenant.Status.IsUp() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyInState, namespace, tenant.Status)
	}

	target := tenant.DesiredReplicas
	if target <= 0 {
		target = 1
	}
	return s.executeAction(ctx, tenant, model.ActionStart, target, actor, model.CauseManual, "")
}

// Stop scales every workload in the tenant's namespace to zero
func (s *TenantService) Stop(ctx context.Context, namespace, actor string) (*model.Tenant, error) {
	tenant, err := s.GetTenant(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if tenant.Status.IsDown() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyInState, namespace, tenant.Status)
	}
	return s.executeAction(ctx, tenant, model.ActionStop, 0, actor, model.CauseManual, "")
}

// Scale sets the tenant's workloads to an explicit replica count.
// Scaling to zero is a stop; the last write wins.
func (s *TenantService) Scale(ctx context.Context, namespace string, replicas int32, actor string) (*model.Tenant, error) {
	if replicas < 0 || replicas > maxReplicas {
		return nil, fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidReplicas, replicas, maxReplicas)
	}
	tenant, err := s.GetTenant(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return s.executeAction(ctx, tenant, model.ActionScale, replicas, actor, model.CauseManual, "")
}

// ExecuteScheduled performs a schedule-driven action against the tenant.
// Unlike the manual paths it does not reject no-op transitions; a stop
// schedule firing on an already stopped tenant simply records a
// successful no-change event.
func (s *TenantService) ExecuteScheduled(ctx context.Context, namespace string, action model.ScheduleAction, targetReplicas *int32, scheduleID string) error {
	tenant, err := s.GetTenant(ctx, namespace)
	if err != nil {
		return err
	}

	var target int32
	switch action {
	case model.ActionStart:
		target = tenant.DesiredReplicas
		if target <= 0 {
			target = 1
		}
	case model.ActionStop:
		target = 0
	case model.ActionScale:
		if targetReplicas == nil {
			return fmt.Errorf("%w: scale schedule %s has no target", ErrInvalidReplicas, scheduleID)
		}
		target = *targetReplicas
	default:
		return fmt.Errorf("unknown schedule action %q", action)
	}

	_, err = s.executeAction(ctx, tenant, action, target, "scheduler", model.CauseSchedule, scheduleID)
	return err
}

// executeAction runs one scale mutation and records its outcome in the
// event log, the audit trail and the tenant row. The event is appended
// on failure too, with ToStatus equal to FromStatus.
func (s *TenantService) executeAction(
	ctx context.Context,
	tenant *model.Tenant,
	action model.ScheduleAction,
	target int32,
	actor string,
	cause model.EventCause,
	scheduleID string,
) (*model.Tenant, error) {
	fromStatus := tenant.Status
	started := time.Now()

	scaleErr := s.gateway.Scale(ctx, tenant.Namespace, target)
	duration := time.Since(started).Seconds()

	event := &model.StateChangeEvent{
		TenantNamespace: tenant.Namespace,
		FromStatus:      fromStatus,
		ToStatus:        fromStatus,
		CausedBy:        cause,
		ScheduleID:      scheduleID,
		OccurredAt:      time.Now().UTC(),
		Success:         scaleErr == nil,
	}
	if scaleErr == nil {
		if target == 0 {
			event.ToStatus = model.StatusStopped
		} else {
			event.ToStatus = model.StatusRunning
		}
	} else {
		event.ErrorMessage = scaleErr.Error()
	}

	if err := s.eventStore.Append(ctx, event); err != nil {
		s.logger.Error("Failed to append state change event",
			zap.String("namespace", tenant.Namespace),
			zap.String("action", string(action)),
			zap.Error(err))
	} else if s.metrics != nil {
		s.metrics.RecordEventAppended(string(cause))
	}

	s.emitAudit(ctx, actor, auditAction(action), tenant.Namespace, scaleErr == nil,
		fmt.Sprintf("target_replicas=%d", target))

	if s.metrics != nil {
		status := "success"
		if scaleErr != nil {
			status = "failure"
		}
		s.metrics.RecordAction(string(action), string(cause), status, duration)
	}

	if scaleErr != nil {
		return nil, fmt.Errorf("failed to %s tenant %s: %w", action, tenant.Namespace, scaleErr)
	}

	now := time.Now().UTC()
	tenant.Status = event.ToStatus
	tenant.CurrentReplicas = target
	if target > 0 {
		tenant.DesiredReplicas = target
	}
	tenant.LastScaledAt = &now
	tenant.LastScaledBy = actor
	tenant.UpdatedAt = now

	if err := s.metadataStore.UpsertTenant(ctx, tenant); err != nil {
		s.logger.Warn("Failed to persist tenant after action",
			zap.String("namespace", tenant.Namespace),
			zap.Error(err))
	}
	s.invalidateTenant(ctx, tenant.Namespace)

	s.logger.Info("Executed tenant action",
		zap.String("namespace", tenant.Namespace),
		zap.String("action", string(action)),
		zap.Int32("target_replicas", target),
		zap.String("actor", actor),
		zap.String("cause", string(cause)))

	return tenant, nil
}

func (s *TenantService) invalidateTenant(ctx context.Context, namespace string) {
	if err := s.cache.Delete(ctx, s.tenantCacheKey(namespace)); err != nil {
		s.logger.Warn("Failed to invalidate tenant cache",
			zap.String("namespace", namespace),
			zap.Error(err))
	}
}

func (s *TenantService) emitAudit(ctx context.Context, actor, action, namespace string, success bool, detail string) {
	if s.auditSink == nil {
		return
	}
	_ = s.auditSink.Emit(ctx, &audit.Record{
		Actor:           actor,
		Action:          action,
		TargetNamespace: namespace,
		Timestamp:       time.Now().UTC(),
		Success:         success,
		Detail:          detail,
	})
}

func (s *TenantService) recordCacheHit(cacheType string) {
	if s.metrics != nil {
		s.metrics.RecordCacheHit(cacheType)
	}
}

func (s *TenantService) recordCacheMiss(cacheType string) {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(cacheType)
	}
}

// tenantCacheKey generates a cache key for a tenant snapshot
func (s *TenantService) tenantCacheKey(namespace string) string {
	return fmt.Sprintf("tenant:status:%s", namespace)
}

func auditAction(action model.ScheduleAction) string {
	switch action {
	case model.ActionStart:
		return audit.ActionTenantStart
	case model.ActionStop:
		return audit.ActionTenantStop
	default:
		return audit.ActionTenantScale
	}
}

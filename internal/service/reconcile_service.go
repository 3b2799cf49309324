package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opsdeck/tenantd/internal/audit"
	"github.com/opsdeck/tenantd/internal/cluster"
	"github.com/opsdeck/tenantd/internal/metrics"
	"github.com/opsdeck/tenantd/internal/model"
	"github.com/opsdeck/tenantd/internal/store"
	"go.uber.org/zap"
)

// ReconcileService periodically observes the cluster and keeps the
// tenant store and the event log in step with reality. It discovers
// namespaces created outside this system, and when a tenant's observed
// state disagrees with the log's latest state it appends a system-caused
// event recording the drift.
type ReconcileService struct {
	metadataStore store.MetadataStore
	eventStore    store.EventStore
	gateway       cluster.Gateway
	interval      time.Duration
	auditSink     audit.Sink
	metrics       *metrics.Metrics
	logger        *zap.Logger

	now func() time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(
	metadataStore store.MetadataStore,
	eventStore store.EventStore,
	gateway cluster.Gateway,
	interval time.Duration,
	auditSink audit.Sink,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReconcileService {
	if interval == 0 {
		interval = time.Minute
	}
	return &ReconcileService{
		metadataStore: metadataStore,
		eventStore:    eventStore,
		gateway:       gateway,
		interval:      interval,
		auditSink:     auditSink,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// Start launches the reconciliation loop in a background goroutine
func (s *ReconcileService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("Starting reconciler", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Reconciler stopped")
				return
			case <-ticker.C:
				if err := s.ReconcileOnce(ctx); err != nil {
					s.logger.Error("Reconciliation pass failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop cancels the reconciliation loop and waits for the current pass
func (s *ReconcileService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// ReconcileOnce runs a single reconciliation pass over all namespaces
func (s *ReconcileService) ReconcileOnce(ctx context.Context) error {
	namespaces, err := s.gateway.ListNamespaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to list namespaces: %w", err)
	}

	if s.metrics != nil {
		s.metrics.UpdateTenantsObserved(len(namespaces))
	}

	for _, namespace := range namespaces {
		if err := s.reconcileNamespace(ctx, namespace); err != nil {
			s.logger.Warn("Failed to reconcile namespace",
				zap.String("namespace", namespace),
				zap.Error(err))
		}
	}

	return nil
}

// reconcileNamespace refreshes one tenant row and records drift against
// the event log
func (s *ReconcileService) reconcileNamespace(ctx context.Context, namespace string) error {
	status, err := s.gateway.GetStatus(ctx, namespace)
	if err != nil {
		return fmt.Errorf("failed to read cluster status: %w", err)
	}

	observed := model.DeriveStatus(status.Replicas, status.ReadyReplicas)
	now := s.now().UTC()

	tenant, err := s.metadataStore.GetTenant(ctx, namespace)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to load tenant: %w", err)
		}
		if status.Workloads == 0 {
			// Nothing scalable in this namespace; not a tenant
			return nil
		}
		tenant = &model.Tenant{
			Namespace: namespace,
			CreatedAt: now,
		}
		s.logger.Info("Discovered tenant namespace", zap.String("namespace", namespace))
	}

	// The log's view of the tenant right now
	logged := model.StatusUnknown
	if latest, err := s.eventStore.LatestAsOf(ctx, namespace, now); err == nil {
		logged = latest.ToStatus
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to read latest event: %w", err)
	}

	if observed != logged && observed != model.StatusScaling {
		// Scaling is transient while an action converges; recording it
		// would flood the log on every pass during rollout
		event := &model.StateChangeEvent{
			TenantNamespace: namespace,
			FromStatus:      logged,
			ToStatus:        observed,
			CausedBy:        model.CauseSystem,
			OccurredAt:      now,
			Success:         true,
		}
		if err := s.eventStore.Append(ctx, event); err != nil {
			s.logger.Error("Failed to append drift event",
				zap.String("namespace", namespace),
				zap.Error(err))
		} else {
			if s.metrics != nil {
				s.metrics.RecordDrift(namespace)
				s.metrics.RecordEventAppended(string(model.CauseSystem))
			}
			s.emitAudit(ctx, namespace, fmt.Sprintf("from=%s to=%s", logged, observed))
			s.logger.Info("Recorded state drift",
				zap.String("namespace", namespace),
				zap.String("from", string(logged)),
				zap.String("to", string(observed)))
		}
	}

	tenant.CurrentReplicas = status.ReadyReplicas
	if status.Replicas > 0 {
		tenant.DesiredReplicas = status.Replicas
	}
	tenant.Status = observed
	tenant.UpdatedAt = now

	if err := s.metadataStore.UpsertTenant(ctx, tenant); err != nil {
		return fmt.Errorf("failed to persist tenant: %w", err)
	}

	return nil
}

func (s *ReconcileService) emitAudit(ctx context.Context, namespace, detail string) {
	if s.auditSink == nil {
		return
	}
	_ = s.auditSink.Emit(ctx, &audit.Record{
		Actor:           "reconciler",
		Action:          audit.ActionStateObserved,
		TargetNamespace: namespace,
		Timestamp:       time.Now().UTC(),
		Success:         true,
		Detail:          detail,
	})
}

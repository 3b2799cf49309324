package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeck/tenantd/internal/audit"
	"github.com/opsdeck/tenantd/internal/model"
	"github.com/opsdeck/tenantd/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrInvalidCron is returned for a cron expression that does not parse
// as a standard five-field expression
var ErrInvalidCron = errors.New("invalid cron expression")

// ErrInvalidSchedule is returned for a schedule whose fields are
// inconsistent, such as a scale action without a target
var ErrInvalidSchedule = errors.New("invalid schedule")

// cronParser accepts the standard five-field format plus the @every and
// @hourly style descriptors
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ScheduleService manages schedule definitions. Run bookkeeping
// (LastRunAt, NextRunAt, LastRunStatus) belongs to the schedule engine;
// this service only sets NextRunAt when a schedule is created or its
// cron expression or enabled flag changes.
type ScheduleService struct {
	metadataStore store.MetadataStore
	auditSink     audit.Sink
	logger        *zap.Logger
}

// NewScheduleService creates a new schedule service
func NewScheduleService(metadataStore store.MetadataStore, auditSink audit.Sink, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{
		metadataStore: metadataStore,
		auditSink:     auditSink,
		logger:        logger,
	}
}

// GetSchedule retrieves one schedule by ID
func (s *ScheduleService) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	return s.metadataStore.GetSchedule(ctx, id)
}

// ListSchedules returns schedules, optionally filtered by tenant
// namespace (empty string means all)
func (s *ScheduleService) ListSchedules(ctx context.Context, namespace string) ([]*model.Schedule, error) {
	return s.metadataStore.ListSchedules(ctx, namespace)
}

// CreateSchedule validates and persists a new schedule
func (s *ScheduleService) CreateSchedule(ctx context.Context, schedule *model.Schedule) (*model.Schedule, error) {
	if err := s.validate(schedule); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	schedule.ID = uuid.New().String()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	schedule.LastRunAt = nil
	schedule.LastRunStatus = model.RunNever
	schedule.NextRunAt = s.computeNextRun(schedule, now)

	err := s.metadataStore.CreateSchedule(ctx, schedule)
	s.emitAudit(ctx, schedule.CreatedBy, audit.ActionScheduleCreate, schedule.TenantNamespace, err == nil,
		fmt.Sprintf("schedule_id=%s action=%s cron=%q", schedule.ID, schedule.Action, schedule.CronExpression))
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.logger.Info("Created schedule",
		zap.String("schedule_id", schedule.ID),
		zap.String("namespace", schedule.TenantNamespace),
		zap.String("action", string(schedule.Action)),
		zap.String("cron", schedule.CronExpression))

	return schedule, nil
}

// UpdateSchedule validates and persists changes to an existing schedule.
// The mutable fields are action, target replicas, cron expression,
// enabled flag and description; run bookkeeping is preserved.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, id string, updated *model.Schedule, actor string) (*model.Schedule, error) {
	schedule, err := s.metadataStore.GetSchedule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	schedule.Action = updated.Action
	schedule.TargetReplicas = updated.TargetReplicas
	schedule.CronExpression = updated.CronExpression
	schedule.Enabled = updated.Enabled
	schedule.Description = updated.Description
	if err := s.validate(schedule); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	schedule.UpdatedAt = now
	schedule.NextRunAt = s.computeNextRun(schedule, now)

	err = s.metadataStore.UpdateSchedule(ctx, schedule)
	s.emitAudit(ctx, actor, audit.ActionScheduleUpdate, schedule.TenantNamespace, err == nil,
		fmt.Sprintf("schedule_id=%s enabled=%t", schedule.ID, schedule.Enabled))
	if err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	s.logger.Info("Updated schedule",
		zap.String("schedule_id", schedule.ID),
		zap.String("namespace", schedule.TenantNamespace),
		zap.Bool("enabled", schedule.Enabled))

	return schedule, nil
}

// DeleteSchedule removes a schedule permanently
func (s *ScheduleService) DeleteSchedule(ctx context.Context, id, actor string) error {
	schedule, err := s.metadataStore.GetSchedule(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get schedule: %w", err)
	}

	err = s.metadataStore.DeleteSchedule(ctx, id)
	s.emitAudit(ctx, actor, audit.ActionScheduleDelete, schedule.TenantNamespace, err == nil,
		fmt.Sprintf("schedule_id=%s", id))
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	s.logger.Info("Deleted schedule",
		zap.String("schedule_id", id),
		zap.String("namespace", schedule.TenantNamespace))

	return nil
}

// validate checks the schedule's fields for consistency
func (s *ScheduleService) validate(schedule *model.Schedule) error {
	if schedule.TenantNamespace == "" {
		return fmt.Errorf("%w: tenant namespace is required", ErrInvalidSchedule)
	}

	switch schedule.Action {
	case model.ActionStart, model.ActionStop:
		if schedule.TargetReplicas != nil {
			return fmt.Errorf("%w: %s schedules do not take a replica target", ErrInvalidSchedule, schedule.Action)
		}
	case model.ActionScale:
		if schedule.TargetReplicas == nil {
			return fmt.Errorf("%w: scale schedules require a replica target", ErrInvalidSchedule)
		}
		if *schedule.TargetReplicas < 0 || *schedule.TargetReplicas > maxReplicas {
			return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidReplicas, *schedule.TargetReplicas, maxReplicas)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidSchedule, schedule.Action)
	}

	if _, err := cronParser.Parse(schedule.CronExpression); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCron, schedule.CronExpression, err)
	}

	return nil
}

// computeNextRun returns the next fire time after now, or nil for a
// disabled schedule
func (s *ScheduleService) computeNextRun(schedule *model.Schedule, now time.Time) *time.Time {
	if !schedule.Enabled {
		return nil
	}
	spec, err := cronParser.Parse(schedule.CronExpression)
	if err != nil {
		return nil
	}
	next := spec.Next(now)
	return &next
}

func (s *ScheduleService) emitAudit(ctx context.Context, actor, action, namespace string, success bool, detail string) {
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

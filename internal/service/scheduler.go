package service

import (
	"context"
	"sync"
	"time"

	"github.com/opsdeck/tenantd/internal/metrics"
	"github.com/opsdeck/tenantd/internal/model"
	"github.com/opsdeck/tenantd/internal/store"
	"go.uber.org/zap"
)

// Scheduler polls for due schedules and executes their actions. At most
// one evaluation of a given schedule runs at a time; a poll that finds a
// schedule still executing records a skipped run instead of piling on.
// Missed occurrences (downtime, slow polls) collapse into a single
// catch-up run: the next fire time is always recomputed from now, never
// replayed occurrence by occurrence.
type Scheduler struct {
	metadataStore store.MetadataStore
	tenantService *TenantService
	pollInterval  time.Duration
	actionTimeout time.Duration
	metrics       *metrics.Metrics
	logger        *zap.Logger

	// now is swappable for tests
	now func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewScheduler creates a new scheduler
func NewScheduler(
	metadataStore store.MetadataStore,
	tenantService *TenantService,
	pollInterval time.Duration,
	actionTimeout time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Scheduler {
	if pollInterval == 0 {
		pollInterval = 30 * time.Second
	}
	if actionTimeout == 0 {
		actionTimeout = 2 * time.Minute
	}
	return &Scheduler{
		metadataStore: metadataStore,
		tenantService: tenantService,
		pollInterval:  pollInterval,
		actionTimeout: actionTimeout,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
		inFlight:      make(map[string]bool),
	}
}

// Start launches the polling loop in a background goroutine
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("Starting scheduler",
		zap.Duration("poll_interval", s.pollInterval),
		zap.Duration("action_timeout", s.actionTimeout))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Scheduler stopped")
				return
			case <-ticker.C:
				s.PollOnce(ctx)
			}
		}
	}()
}

// Stop cancels the polling loop and waits for in-flight actions
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// PollOnce selects all schedules due as of now and dispatches each on
// its own goroutine. It does not wait for the actions to finish.
func (s *Scheduler) PollOnce(ctx context.Context) {
	now := s.now().UTC()

	due, err := s.metadataStore.ListDueSchedules(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list due schedules", zap.Error(err))
		return
	}

	for _, schedule := range due {
		if !s.claim(schedule.ID) {
			// Previous evaluation still running; record the skip
			// without touching next_run_at. The in-flight run advances
			// it on completion, collapsing the skipped occurrence.
			if err := s.metadataStore.UpdateLastRunStatus(ctx, schedule.ID, model.RunSkipped); err != nil {
				s.logger.Error("Failed to record skipped run",
					zap.String("schedule_id", schedule.ID),
					zap.Error(err))
			}
			if s.metrics != nil {
				s.metrics.RecordScheduleRun(string(model.RunSkipped))
			}
			s.logger.Warn("Skipped schedule, previous run still in flight",
				zap.String("schedule_id", schedule.ID),
				zap.String("namespace", schedule.TenantNamespace))
			continue
		}

		s.wg.Add(1)
		go s.execute(ctx, schedule)
	}
}

// execute runs one due schedule to completion and records the outcome
func (s *Scheduler) execute(ctx context.Context, schedule *model.Schedule) {
	defer s.wg.Done()
	defer s.release(schedule.ID)

	if s.metrics != nil {
		s.metrics.SchedulesInFlight.Inc()
		defer s.metrics.SchedulesInFlight.Dec()
	}

	actionCtx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()

	s.logger.Info("Executing schedule",
		zap.String("schedule_id", schedule.ID),
		zap.String("namespace", schedule.TenantNamespace),
		zap.String("action", string(schedule.Action)))

	err := s.tenantService.ExecuteScheduled(actionCtx,
		schedule.TenantNamespace, schedule.Action, schedule.TargetReplicas, schedule.ID)

	ranAt := s.now().UTC()
	status := model.RunSuccess
	if err != nil {
		status = model.RunFailed
		s.logger.Error("Schedule execution failed",
			zap.String("schedule_id", schedule.ID),
			zap.String("namespace", schedule.TenantNamespace),
			zap.Error(err))
	}

	// Advance past the occurrence regardless of outcome; a failed run
	// waits for the next fire time rather than retrying immediately
	s.recordRun(ctx, schedule, ranAt, status)
}

// recordRun persists the run outcome and the next fire time computed
// from ranAt, collapsing any occurrences missed before it
func (s *Scheduler) recordRun(ctx context.Context, schedule *model.Schedule, ranAt time.Time, status model.RunStatus) {
	var nextRunAt *time.Time
	if schedule.Enabled {
		if spec, err := cronParser.Parse(schedule.CronExpression); err == nil {
			next := spec.Next(ranAt)
			nextRunAt = &next
		} else {
			s.logger.Error("Stored schedule has unparseable cron expression",
				zap.String("schedule_id", schedule.ID),
				zap.String("cron", schedule.CronExpression),
				zap.Error(err))
		}
	}

	if err := s.metadataStore.RecordScheduleRun(ctx, schedule.ID, ranAt, status, nextRunAt); err != nil {
		s.logger.Error("Failed to record schedule run",
			zap.String("schedule_id", schedule.ID),
			zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RecordScheduleRun(string(status))
	}
}

// claim marks the schedule as executing; it returns false when another
// evaluation already holds it
func (s *Scheduler) claim(scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[scheduleID] {
		return false
	}
	s.inFlight[scheduleID] = true
	return true
}

func (s *Scheduler) release(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, scheduleID)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeck/tenantd/internal/model"
	"github.com/opsdeck/tenantd/internal/store"
	"go.uber.org/zap"
)

// StateDuration reports how long a tenant has been in its current state
type StateDuration struct {
	Namespace string
	Status    model.TenantStatus
	Since     *time.Time
	Duration  time.Duration
	Formatted string
}

// MonthlyMetrics is the uptime accounting for one calendar month. The
// three buckets always sum to the exact length of the month: time before
// the first known state, and months with no events at all, land in
// UnknownSeconds.
type MonthlyMetrics struct {
	Namespace       string
	Year            int
	Month           time.Month
	UptimeSeconds   int64
	DowntimeSeconds int64
	UnknownSeconds  int64
	Transitions     int
}

// MetricsService derives uptime figures from the state change log. The
// log is a step function: between events the state is the ToStatus of
// the latest preceding event, and unknown before the first one.
type MetricsService struct {
	eventStore store.EventStore
	logger     *zap.Logger
}

// NewMetricsService creates a new metrics service
func NewMetricsService(eventStore store.EventStore, logger *zap.Logger) *MetricsService {
	return &MetricsService{
		eventStore: eventStore,
		logger:     logger,
	}
}

// CurrentStateDuration reports the tenant's state as of the given
// instant and how long it has been in it. With no event at or before
// asOf the state is unknown with no start point.
func (s *MetricsService) CurrentStateDuration(ctx context.Context, namespace string, asOf time.Time) (*StateDuration, error) {
	event, err := s.eventStore.LatestAsOf(ctx, namespace, asOf)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &StateDuration{
				Namespace: namespace,
				Status:    model.StatusUnknown,
				Formatted: "unknown",
			}, nil
		}
		return nil, fmt.Errorf("failed to read latest event: %w", err)
	}

	duration := asOf.Sub(event.OccurredAt)
	return &StateDuration{
		Namespace: namespace,
		Status:    event.ToStatus,
		Since:     &event.OccurredAt,
		Duration:  duration,
		Formatted: formatDuration(duration),
	}, nil
}

// ComputeMonthlyMetrics buckets one calendar month of a tenant's history
// into uptime, downtime and unknown seconds
func (s *MetricsService) ComputeMonthlyMetrics(ctx context.Context, namespace string, year int, month time.Month) (*MonthlyMetrics, error) {
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	// State carried into the month from the last event before it
	carried := model.StatusUnknown
	if prev, err := s.eventStore.LatestBefore(ctx, namespace, monthStart); err == nil {
		carried = prev.ToStatus
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to read carry-over event: %w", err)
	}

	events, err := s.eventStore.ListBetween(ctx, namespace, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	m := &MonthlyMetrics{
		Namespace: namespace,
		Year:      year,
		Month:     month,
	}

	// Walk the step function across the month: each event closes the
	// segment that started at the previous boundary
	var up, down, unknown time.Duration
	cursor := monthStart
	state := carried
	for _, event := range events {
		accumulate(&up, &down, &unknown, state, event.OccurredAt.Sub(cursor))
		cursor = event.OccurredAt
		state = event.ToStatus
		m.Transitions++
	}
	accumulate(&up, &down, &unknown, state, monthEnd.Sub(cursor))

	// Truncating each bucket independently would lose fractional
	// seconds from sub-second event timestamps; the unknown bucket is
	// derived as the remainder so the three always sum to the exact
	// month length.
	monthSeconds := int64(monthEnd.Sub(monthStart) / time.Second)
	m.UptimeSeconds = int64(up / time.Second)
	m.DowntimeSeconds = int64(down / time.Second)
	m.UnknownSeconds = monthSeconds - m.UptimeSeconds - m.DowntimeSeconds

	return m, nil
}

// History returns up to limit recent events for a tenant, newest first
func (s *MetricsService) History(ctx context.Context, namespace string, limit int) ([]*model.StateChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	events, err := s.eventStore.History(ctx, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read event history: %w", err)
	}
	return events, nil
}

func accumulate(up, down, unknown *time.Duration, state model.TenantStatus, d time.Duration) {
	switch {
	case state.IsUp():
		*up += d
	case state.IsDown():
		*down += d
	default:
		*unknown += d
	}
}

// formatDuration renders a duration as "2d 4h 13m" style text, dropping
// leading zero units
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

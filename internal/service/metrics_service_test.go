package service

import (
	"context"
	"testing"
	"time"

	"github.com/opsdeck/tenantd/internal/model"
	"github.com/opsdeck/tenantd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func day(year int, month time.Month, d, hour, min int) time.Time {
	return time.Date(year, month, d, hour, min, 0, 0, time.UTC)
}

func event(toStatus model.TenantStatus, at time.Time) *model.StateChangeEvent {
	return &model.StateChangeEvent{
		TenantNamespace: "ns-a",
		ToStatus:        toStatus,
		CausedBy:        model.CauseManual,
		OccurredAt:      at,
		Success:         true,
	}
}

func TestCurrentStateDuration_NoEvents(t *testing.T) {
	eventStore := new(MockEventStore)
	eventStore.On("LatestAsOf", mock.Anything, "ns-a", mock.Anything).
		Return(nil, store.ErrNotFound)
	svc := NewMetricsService(eventStore, zap.NewNop())

	sd, err := svc.CurrentStateDuration(context.Background(), "ns-a", time.Now())

	require.NoError(t, err)
	assert.Equal(t, model.StatusUnknown, sd.Status)
	assert.Nil(t, sd.Since)
	assert.Equal(t, "unknown", sd.Formatted)
}

func TestCurrentStateDuration_RunningSince(t *testing.T) {
	asOf := day(2026, time.March, 5, 14, 30)
	since := day(2026, time.March, 5, 13, 0)
	eventStore := new(MockEventStore)
	eventStore.On("LatestAsOf", mock.Anything, "ns-a", asOf).
		Return(event(model.StatusRunning, since), nil)
	svc := NewMetricsService(eventStore, zap.NewNop())

	sd, err := svc.CurrentStateDuration(context.Background(), "ns-a", asOf)

	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, sd.Status)
	assert.Equal(t, 90*time.Minute, sd.Duration)
	assert.Equal(t, "1h 30m", sd.Formatted)
}

func TestMonthlyMetrics_EmptyMonth(t *testing.T) {
	eventStore := new(MockEventStore)
	eventStore.On("LatestBefore", mock.Anything, "ns-a", mock.Anything).
		Return(nil, store.ErrNotFound)
	eventStore.On("ListBetween", mock.Anything, "ns-a", mock.Anything, mock.Anything).
		Return([]*model.StateChangeEvent{}, nil)
	svc := NewMetricsService(eventStore, zap.NewNop())

	m, err := svc.ComputeMonthlyMetrics(context.Background(), "ns-a", 2026, time.February)

	require.NoError(t, err)
	// February 2026 has 28 days
	assert.Equal(t, int64(28*86400), m.UnknownSeconds)
	assert.Zero(t, m.UptimeSeconds)
	assert.Zero(t, m.DowntimeSeconds)
	assert.Zero(t, m.Transitions)
}

func TestMonthlyMetrics_CarryOverFillsWholeMonth(t *testing.T) {
	eventStore := new(MockEventStore)
	eventStore.On("LatestBefore", mock.Anything, "ns-a", mock.Anything).
		Return(event(model.StatusRunning, day(2025, time.December, 20, 0, 0)), nil)
	eventStore.On("ListBetween", mock.Anything, "ns-a", mock.Anything, mock.Anything).
		Return([]*model.StateChangeEvent{}, nil)
	svc := NewMetricsService(eventStore, zap.NewNop())

	m, err := svc.ComputeMonthlyMetrics(context.Background(), "ns-a", 2026, time.January)

	require.NoError(t, err)
	assert.Equal(t, int64(31*86400), m.UptimeSeconds)
	assert.Zero(t, m.DowntimeSeconds)
	assert.Zero(t, m.UnknownSeconds)
}

func TestMonthlyMetrics_TransitionsWithinMonth(t *testing.T) {
	eventStore := new(MockEventStore)
	eventStore.On("LatestBefore", mock.Anything, "ns-a", mock.Anything).
		Return(event(model.StatusStopped, day(2025, time.December, 31, 18, 0)), nil)
	eventStore.On("ListBetween", mock.Anything, "ns-a", mock.Anything, mock.Anything).
		Return([]*model.StateChangeEvent{
			event(model.StatusRunning, day(2026, time.January, 10, 0, 0)),
			event(model.StatusStopped, day(2026, time.January, 20, 12, 0)),
		}, nil)
	svc := NewMetricsService(eventStore, zap.NewNop())

	m, err := svc.ComputeMonthlyMetrics(context.Background(), "ns-a", 2026, time.January)

	require.NoError(t, err)
	// Running from Jan 10 00:00 through Jan 20 12:00 is 10.5 days
	assert.Equal(t, int64(907200), m.UptimeSeconds)
	// Stopped the first 9 days and the last 11.5 days
	assert.Equal(t, int64(31*86400-907200), m.DowntimeSeconds)
	assert.Zero(t, m.UnknownSeconds)
	assert.Equal(t, 2, m.Transitions)
}

func TestMonthlyMetrics_UptimeDowntimeSplitDay(t *testing.T) {
	// One day split 10h running / 14h stopped, the rest of the month stopped
	eventStore := new(MockEventStore)
	eventStore.On("LatestBefore", mock.Anything, "ns-a", mock.Anything).
		Return(event(model.StatusStopped, day(2026, time.March, 31, 0, 0)), nil)
	eventStore.On("ListBetween", mock.Anything, "ns-a", mock.Anything, mock.Anything).
		Return([]*model.StateChangeEvent{
			event(model.StatusRunning, day(2026, time.April, 1, 0, 0)),
			event(model.StatusStopped, day(2026, time.April, 1, 10, 0)),
		}, nil)
	svc := NewMetricsService(eventStore, zap.NewNop())

	m, err := svc.ComputeMonthlyMetrics(context.Background(), "ns-a", 2026, time.April)

	require.NoError(t, err)
	assert.Equal(t, int64(36000), m.UptimeSeconds)
	assert.Equal(t, int64(30*86400-36000), m.DowntimeSeconds)
}

func TestMonthlyMetrics_ScalingCountsAsUptime(t *testing.T) {
	eventStore := new(MockEventStore)
	eventStore.On("LatestBefore", mock.Anything, "ns-a", mock.Anything).
		Return(nil, store.ErrNotFound)
	eventStore.On("ListBetween", mock.Anything, "ns-a", mock.Anything, mock.Anything).
		Return([]*model.StateChangeEvent{
			event(model.StatusScaling, day(2026, time.January, 1, 0, 0)),
			event(model.StatusRunning, day(2026, time.January, 1, 1, 0)),
		}, nil)
	svc := NewMetricsService(eventStore, zap.NewNop())

	m, err := svc.ComputeMonthlyMetrics(context.Background(), "ns-a", 2026, time.January)

	require.NoError(t, err)
	assert.Equal(t, int64(31*86400), m.UptimeSeconds)
	assert.Zero(t, m.UnknownSeconds)
}

func TestMonthlyMetrics_FailedActionDoesNotShiftState(t *testing.T) {
	// A failed stop records ToStatus equal to the prior state, so the
	// bucket accounting is unchanged by it
	failed := event(model.StatusRunning, day(2026, time.January, 15, 0, 0))
	failed.Success = false
	failed.ErrorMessage = "cluster unavailable"

	eventStore := new(MockEventStore)
	eventStore.On("LatestBefore", mock.Anything, "ns-a", mock.Anything).
		Return(event(model.StatusRunning, day(2025, time.December, 1, 0, 0)), nil)
	eventStore.On("ListBetween", mock.Anything, "ns-a", mock.Anything, mock.Anything).
		Return([]*model.StateChangeEvent{failed}, nil)
	svc := NewMetricsService(eventStore, zap.NewNop())

	m, err := svc.ComputeMonthlyMetrics(context.Background(), "ns-a", 2026, time.January)

	require.NoError(t, err)
	assert.Equal(t, int64(31*86400), m.UptimeSeconds)
	assert.Equal(t, 1, m.Transitions)
}

func TestMonthlyMetrics_BucketsSumToMonth(t *testing.T) {
	eventStore := new(MockEventStore)
	eventStore.On("LatestBefore", mock.Anything, "ns-a", mock.Anything).
		Return(nil, store.ErrNotFound)
	eventStore.On("ListBetween", mock.Anything, "ns-a", mock.Anything, mock.Anything).
		Return([]*model.StateChangeEvent{
			event(model.StatusRunning, day(2026, time.January, 3, 7, 19)),
			event(model.StatusStopped, day(2026, time.January, 11, 23, 58)),
			event(model.StatusRunning, day(2026, time.January, 25, 4, 1)),
		}, nil)
	svc := NewMetricsService(eventStore, zap.NewNop())

	m, err := svc.ComputeMonthlyMetrics(context.Background(), "ns-a", 2026, time.January)

	require.NoError(t, err)
	total := m.UptimeSeconds + m.DowntimeSeconds + m.UnknownSeconds
	assert.Equal(t, int64(31*86400), total)
	assert.Equal(t, 3, m.Transitions)
}

func TestMonthlyMetrics_SubSecondTimestampsSumToMonth(t *testing.T) {
	// Event timestamps carry sub-second precision in production;
	// truncation must not leak seconds out of the month total.
	eventStore := new(MockEventStore)
	eventStore.On("LatestBefore", mock.Anything, "ns-a", mock.Anything).
		Return(nil, store.ErrNotFound)
	eventStore.On("ListBetween", mock.Anything, "ns-a", mock.Anything, mock.Anything).
		Return([]*model.StateChangeEvent{
			event(model.StatusRunning, day(2026, time.April, 1, 10, 0).Add(500*time.Millisecond)),
			event(model.StatusStopped, day(2026, time.April, 1, 20, 0).Add(400*time.Millisecond)),
		}, nil)
	svc := NewMetricsService(eventStore, zap.NewNop())

	m, err := svc.ComputeMonthlyMetrics(context.Background(), "ns-a", 2026, time.April)

	require.NoError(t, err)
	total := m.UptimeSeconds + m.DowntimeSeconds + m.UnknownSeconds
	assert.Equal(t, int64(30*86400), total)
	assert.Equal(t, int64(35999), m.UptimeSeconds)
	assert.Equal(t, int64(2519999), m.DowntimeSeconds)
}

func TestHistory_DefaultLimit(t *testing.T) {
	eventStore := new(MockEventStore)
	eventStore.On("History", mock.Anything, "ns-a", 50).
		Return([]*model.StateChangeEvent{}, nil)
	svc := NewMetricsService(eventStore, zap.NewNop())

	_, err := svc.History(context.Background(), "ns-a", 0)

	require.NoError(t, err)
	eventStore.AssertExpectations(t)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "2d 4h 13m", formatDuration(52*time.Hour+13*time.Minute))
	assert.Equal(t, "1h 30m", formatDuration(90*time.Minute))
	assert.Equal(t, "5m", formatDuration(5*time.Minute+12*time.Second))
	assert.Equal(t, "0m", formatDuration(-time.Minute))
}

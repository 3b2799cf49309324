package service

import (
	"context"
	"testing"
	"time"

	"github.com/opsdeck/tenantd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func int32Ptr(v int32) *int32 { return &v }

func newScheduleService(metadataStore *MockMetadataStore) *ScheduleService {
	return NewScheduleService(metadataStore, nil, zap.NewNop())
}

func TestCreateSchedule_SetsNextRun(t *testing.T) {
	metadataStore := new(MockMetadataStore)
	metadataStore.On("CreateSchedule", mock.Anything, mock.Anything).Return(nil)
	svc := newScheduleService(metadataStore)

	created, err := svc.CreateSchedule(context.Background(), &model.Schedule{
		TenantNamespace: "ns-a",
		Action:          model.ActionStop,
		CronExpression:  "0 19 * * 1-5",
		Enabled:         true,
		CreatedBy:       "u1",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.RunNever, created.LastRunStatus)
	require.NotNil(t, created.NextRunAt)
	assert.True(t, created.NextRunAt.After(time.Now()))
}

func TestCreateSchedule_DisabledHasNoNextRun(t *testing.T) {
	metadataStore := new(MockMetadataStore)
	metadataStore.On("CreateSchedule", mock.Anything, mock.Anything).Return(nil)
	svc := newScheduleService(metadataStore)

	created, err := svc.CreateSchedule(context.Background(), &model.Schedule{
		TenantNamespace: "ns-a",
		Action:          model.ActionStart,
		CronExpression:  "0 7 * * *",
		Enabled:         false,
	})

	require.NoError(t, err)
	assert.Nil(t, created.NextRunAt)
}

func TestCreateSchedule_RejectsBadCron(t *testing.T) {
	svc := newScheduleService(new(MockMetadataStore))

	_, err := svc.CreateSchedule(context.Background(), &model.Schedule{
		TenantNamespace: "ns-a",
		Action:          model.ActionStop,
		CronExpression:  "every day at noon",
		Enabled:         true,
	})

	assert.ErrorIs(t, err, ErrInvalidCron)
}

func TestCreateSchedule_ScaleRequiresTarget(t *testing.T) {
	svc := newScheduleService(new(MockMetadataStore))

	_, err := svc.CreateSchedule(context.Background(), &model.Schedule{
		TenantNamespace: "ns-a",
		Action:          model.ActionScale,
		CronExpression:  "0 7 * * *",
		Enabled:         true,
	})

	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestCreateSchedule_StopRejectsTarget(t *testing.T) {
	svc := newScheduleService(new(MockMetadataStore))

	_, err := svc.CreateSchedule(context.Background(), &model.Schedule{
		TenantNamespace: "ns-a",
		Action:          model.ActionStop,
		TargetReplicas:  int32Ptr(3),
		CronExpression:  "0 19 * * *",
		Enabled:         true,
	})

	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestCreateSchedule_RequiresNamespace(t *testing.T) {
	svc := newScheduleService(new(MockMetadataStore))

	_, err := svc.CreateSchedule(context.Background(), &model.Schedule{
		Action:         model.ActionStop,
		CronExpression: "0 19 * * *",
		Enabled:        true,
	})

	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestUpdateSchedule_DisableClearsNextRun(t *testing.T) {
	next := time.Now().Add(time.Hour)
	metadataStore := new(MockMetadataStore)
	metadataStore.On("GetSchedule", mock.Anything, "sched-1").
		Return(&model.Schedule{
			ID:              "sched-1",
			TenantNamespace: "ns-a",
			Action:          model.ActionStop,
			CronExpression:  "0 19 * * *",
			Enabled:         true,
			NextRunAt:       &next,
		}, nil)
	metadataStore.On("UpdateSchedule", mock.Anything, mock.MatchedBy(func(s *model.Schedule) bool {
		return !s.Enabled && s.NextRunAt == nil
	})).Return(nil)
	svc := newScheduleService(metadataStore)

	updated, err := svc.UpdateSchedule(context.Background(), "sched-1", &model.Schedule{
		Action:         model.ActionStop,
		CronExpression: "0 19 * * *",
		Enabled:        false,
	}, "u1")

	require.NoError(t, err)
	assert.Nil(t, updated.NextRunAt)
	metadataStore.AssertExpectations(t)
}

func TestUpdateSchedule_NewCronRecomputesNextRun(t *testing.T) {
	metadataStore := new(MockMetadataStore)
	metadataStore.On("GetSchedule", mock.Anything, "sched-1").
		Return(&model.Schedule{
			ID:              "sched-1",
			TenantNamespace: "ns-a",
			Action:          model.ActionStart,
			CronExpression:  "0 7 * * *",
			Enabled:         true,
		}, nil)
	metadataStore.On("UpdateSchedule", mock.Anything, mock.Anything).Return(nil)
	svc := newScheduleService(metadataStore)

	updated, err := svc.UpdateSchedule(context.Background(), "sched-1", &model.Schedule{
		Action:         model.ActionStart,
		CronExpression: "30 6 * * 1-5",
		Enabled:        true,
	}, "u1")

	require.NoError(t, err)
	require.NotNil(t, updated.NextRunAt)
	assert.Equal(t, 30, updated.NextRunAt.Minute())
}

func TestDeleteSchedule(t *testing.T) {
	metadataStore := new(MockMetadataStore)
	metadataStore.On("GetSchedule", mock.Anything, "sched-1").
		Return(&model.Schedule{ID: "sched-1", TenantNamespace: "ns-a"}, nil)
	metadataStore.On("DeleteSchedule", mock.Anything, "sched-1").Return(nil)
	svc := newScheduleService(metadataStore)

	err := svc.DeleteSchedule(context.Background(), "sched-1", "u1")

	require.NoError(t, err)
	metadataStore.AssertExpectations(t)
}

package model

import "time"

// ScheduleAction is the cluster action a schedule performs when due.
type ScheduleAction string

const (
	ActionStart ScheduleAction = "start"
	ActionStop  ScheduleAction = "stop"
	ActionScale ScheduleAction = "scale"
)

// RunStatus is the outcome of a schedule's most recent evaluation.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
	RunNever   RunStatus = "never"
)

// Schedule binds a recurring cron action to a tenant. LastRunAt,
// LastRunStatus and NextRunAt are written exclusively by the schedule
// engine; a disabled schedule has NextRunAt nil and is never selected.
type Schedule struct {
	ID              string
	TenantNamespace string
	Action          ScheduleAction
	TargetReplicas  *int32 // set only for ActionScale
	CronExpression  string
	Enabled         bool
	Description     string
	LastRunAt       *time.Time
	NextRunAt       *time.Time
	LastRunStatus   RunStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CreatedBy       string
}

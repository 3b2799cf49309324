package model

import "time"

// EventCause identifies which actor produced a state change event.
type EventCause string

const (
	CauseManual   EventCause = "manual"
	CauseSchedule EventCause = "schedule"
	CauseSystem   EventCause = "system"
)

// StateChangeEvent is one immutable record of a tenant transition. Events
// for a tenant are totally ordered by OccurredAt (the store enforces
// this at append time); ID is a monotonic sequence assigned by the store.
//
// The sequence of (OccurredAt, ToStatus) pairs forms a step function over
// time: at any instant the tenant's state is the ToStatus of the latest
// event at or before that instant, or StatusUnknown if none precedes it.
// A failed action records ToStatus equal to FromStatus, so the step
// function is unaffected by attempts that changed nothing.
type StateChangeEvent struct {
	ID              int64
	TenantNamespace string
	FromStatus      TenantStatus
	ToStatus        TenantStatus
	CausedBy        EventCause
	ScheduleID      string // set when CausedBy == CauseSchedule
	OccurredAt      time.Time
	Success         bool
	ErrorMessage    string
}

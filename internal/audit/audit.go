// Package audit defines the audit record shape and the sinks that
// receive one record per grant/revoke and per state-changing action.
package audit

import (
	"context"
	"time"
)

// Action names for audit records
const (
	ActionTenantStart      = "tenant_start"
	ActionTenantStop       = "tenant_stop"
	ActionTenantScale      = "tenant_scale"
	ActionScheduleCreate   = "schedule_create"
	ActionScheduleUpdate   = "schedule_update"
	ActionScheduleDelete   = "schedule_delete"
	ActionScheduleExecute  = "schedule_execute"
	ActionPermissionGrant  = "permission_grant"
	ActionPermissionRevoke = "permission_revoke"
	ActionStateObserved    = "state_observed"
)

// Record is one append-only audit entry
type Record struct {
	Actor           string
	Action          string
	TargetNamespace string
	Timestamp       time.Time
	Success         bool
	Detail          string
}

// Sink receives audit records. Sinks are append-only; failures to emit
// must never fail the audited operation.
type Sink interface {
	Emit(ctx context.Context, record *Record) error
}

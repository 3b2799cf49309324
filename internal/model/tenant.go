package model

import "time"

// TenantStatus is the derived state of a tenant's workloads. It is never
// set by a client; it is recomputed from the latest replica observation
// and the latest state change event.
type TenantStatus string

const (
	StatusRunning TenantStatus = "running"
	StatusStopped TenantStatus = "stopped"
	StatusScaling TenantStatus = "scaling"
	StatusUnknown TenantStatus = "unknown"
	StatusError   TenantStatus = "error"
)

// Tenant represents one namespace-scoped workload group.
type Tenant struct {
	Namespace       string
	DesiredReplicas int32
	CurrentReplicas int32
	Status          TenantStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastScaledAt    *time.Time
	LastScaledBy    string
}

// Clone returns an independent copy. Tenants are shared through caches,
// so callers that mutate must work on their own copy.
func (t *Tenant) Clone() *Tenant {
	clone := *t
	if t.LastScaledAt != nil {
		at := *t.LastScaledAt
		clone.LastScaledAt = &at
	}
	return &clone
}

// DeriveStatus computes tenant status from an observed replica snapshot.
func DeriveStatus(desired, ready int32) TenantStatus {
	switch {
	case desired == 0:
		return StatusStopped
	case ready == desired:
		return StatusRunning
	case ready < desired:
		return StatusScaling
	default:
		return StatusUnknown
	}
}

// IsUp reports whether a status counts toward uptime. Scaling tenants have
// workloads coming up, so they are billed as up.
func (s TenantStatus) IsUp() bool {
	return s == StatusRunning || s == StatusScaling
}

// IsDown reports whether a status counts toward downtime.
func (s TenantStatus) IsDown() bool {
	return s == StatusStopped
}

// Package handler provides HTTP request handlers for the tenant API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/opsdeck/tenantd/internal/access"
	"github.com/opsdeck/tenantd/internal/cluster"
	"github.com/opsdeck/tenantd/internal/model"
	"github.com/opsdeck/tenantd/internal/service"
	"github.com/opsdeck/tenantd/internal/store"
)

var errInvalidYearMonth = errors.New("year and month must be valid integers")

// ErrorResponse is the JSON shape of every error reply
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// TenantResponse is the JSON shape of a tenant
type TenantResponse struct {
	Namespace       string     `json:"namespace"`
	DesiredReplicas int32      `json:"desired_replicas"`
	CurrentReplicas int32      `json:"current_replicas"`
	Status          string     `json:"status"`
	LastScaledAt    *time.Time `json:"last_scaled_at,omitempty"`
	LastScaledBy    string     `json:"last_scaled_by,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ScheduleResponse is the JSON shape of a schedule
type ScheduleResponse struct {
	ID              string     `json:"id"`
	TenantNamespace string     `json:"tenant_namespace"`
	Action          string     `json:"action"`
	TargetReplicas  *int32     `json:"target_replicas,omitempty"`
	CronExpression  string     `json:"cron_expression"`
	Enabled         bool       `json:"enabled"`
	Description     string     `json:"description,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus   string     `json:"last_run_status"`
	CreatedBy       string     `json:"created_by,omitempty"`
}

// EventResponse is the JSON shape of one state change event
type EventResponse struct {
	ID           int64     `json:"id"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	CausedBy     string    `json:"caused_by"`
	ScheduleID   string    `json:"schedule_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// UptimeResponse is the JSON shape of a current-state query
type UptimeResponse struct {
	Namespace string     `json:"namespace"`
	Status    string     `json:"status"`
	Since     *time.Time `json:"since,omitempty"`
	Seconds   int64      `json:"seconds"`
	Formatted string     `json:"formatted"`
}

// MonthlyMetricsResponse is the JSON shape of a monthly uptime report
type MonthlyMetricsResponse struct {
	Namespace       string `json:"namespace"`
	Year            int    `json:"year"`
	Month           int    `json:"month"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	DowntimeSeconds int64  `json:"downtime_seconds"`
	UnknownSeconds  int64  `json:"unknown_seconds"`
	Transitions     int    `json:"transitions"`
}

// PermissionResponse is the JSON shape of one namespace grant
type PermissionResponse struct {
	SubjectID string     `json:"subject_id"`
	Namespace string     `json:"namespace"`
	Enabled   bool       `json:"enabled"`
	GrantedBy string     `json:"granted_by"`
	GrantedAt time.Time  `json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func tenantResponse(t *model.Tenant) *TenantResponse {
	return &TenantResponse{
		Namespace:       t.Namespace,
		DesiredReplicas: t.DesiredReplicas,
		CurrentReplicas: t.CurrentReplicas,
		Status:          string(t.Status),
		LastScaledAt:    t.LastScaledAt,
		LastScaledBy:    t.LastScaledBy,
		UpdatedAt:       t.UpdatedAt,
	}
}

func scheduleResponse(s *model.Schedule) *ScheduleResponse {
	return &ScheduleResponse{
		ID:              s.ID,
		TenantNamespace: s.TenantNamespace,
		Action:          string(s.Action),
		TargetReplicas:  s.TargetReplicas,
		CronExpression:  s.CronExpression,
		Enabled:         s.Enabled,
		Description:     s.Description,
		LastRunAt:       s.LastRunAt,
		NextRunAt:       s.NextRunAt,
		LastRunStatus:   string(s.LastRunStatus),
		CreatedBy:       s.CreatedBy,
	}
}

func eventResponse(e *model.StateChangeEvent) *EventResponse {
	return &EventResponse{
		ID:           e.ID,
		FromStatus:   string(e.FromStatus),
		ToStatus:     string(e.ToStatus),
		CausedBy:     string(e.CausedBy),
		ScheduleID:   e.ScheduleID,
		OccurredAt:   e.OccurredAt,
		Success:      e.Success,
		ErrorMessage: e.ErrorMessage,
	}
}

func permissionResponse(p *model.NamespacePermission) *PermissionResponse {
	return &PermissionResponse{
		SubjectID: p.SubjectID,
		Namespace: p.Namespace,
		Enabled:   p.Enabled,
		GrantedBy: p.GrantedBy,
		GrantedAt: p.GrantedAt,
		RevokedAt: p.RevokedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, &ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: r.Header.Get("X-Request-ID"),
	})
}

// writeServiceError maps domain errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, cluster.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrAlreadyInState):
		writeError(w, r, http.StatusConflict, "already_in_state", err.Error())
	case errors.Is(err, cluster.ErrConflict), errors.Is(err, store.ErrOutOfOrder):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrInvalidReplicas),
		errors.Is(err, service.ErrInvalidCron),
		errors.Is(err, service.ErrInvalidSchedule):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, cluster.ErrUnavailable):
		writeError(w, r, http.StatusBadGateway, "cluster_unavailable", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// writeDenied maps an authorization denial onto a 403 with its reason
func writeDenied(w http.ResponseWriter, r *http.Request, decision access.Decision) {
	message := "access denied"
	switch decision.Reason {
	case access.ReasonNoRole:
		message = "no recognized role"
	case access.ReasonNotGranted:
		message = "namespace not granted"
	case access.ReasonReadOnly:
		message = "role is read-only"
	}
	writeError(w, r, http.StatusForbidden, string(decision.Reason), message)
}

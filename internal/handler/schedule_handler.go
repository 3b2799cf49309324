package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/opsdeck/tenantd/internal/access"
	"github.com/opsdeck/tenantd/internal/identity"
	"github.com/opsdeck/tenantd/internal/metrics"
	"github.com/opsdeck/tenantd/internal/middleware"
	"github.com/opsdeck/tenantd/internal/model"
	"github.com/opsdeck/tenantd/internal/service"
	"go.uber.org/zap"
)

// ScheduleHandler handles schedule CRUD. A schedule is bound to one
// tenant namespace, so every route authorizes against that namespace;
// creating or changing a schedule is a mutation.
type ScheduleHandler struct {
	scheduleService *service.ScheduleService
	resolver        *access.Resolver
	metrics         *metrics.Metrics
	logger          *zap.Logger
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(
	scheduleService *service.ScheduleService,
	resolver *access.Resolver,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
		resolver:        resolver,
		metrics:         m,
		logger:          logger,
	}
}

type scheduleRequest struct {
	Action         string `json:"action"`
	TargetReplicas *int32 `json:"target_replicas,omitempty"`
	CronExpression string `json:"cron_expression"`
	Enabled        bool   `json:"enabled"`
	Description    string `json:"description,omitempty"`
}

// ListSchedules handles GET /v1/tenants/{namespace}/schedules
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	if _, ok := h.authorize(w, r, namespace, access.ActionView); !ok {
		return
	}

	schedules, err := h.scheduleService.ListSchedules(r.Context(), namespace)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]*ScheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, scheduleResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateSchedule handles POST /v1/tenants/{namespace}/schedules
func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	subject, ok := h.authorize(w, r, namespace, access.ActionMutate)
	if !ok {
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	created, err := h.scheduleService.CreateSchedule(r.Context(), &model.Schedule{
		TenantNamespace: namespace,
		Action:          model.ScheduleAction(req.Action),
		TargetReplicas:  req.TargetReplicas,
		CronExpression:  req.CronExpression,
		Enabled:         req.Enabled,
		Description:     req.Description,
		CreatedBy:       subject.ID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, scheduleResponse(created))
}

// GetSchedule handles GET /v1/tenants/{namespace}/schedules/{id}
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	namespace := vars["namespace"]
	if _, ok := h.authorize(w, r, namespace, access.ActionView); !ok {
		return
	}

	schedule, err := h.loadScheduleInNamespace(w, r, vars["id"], namespace)
	if schedule == nil || err != nil {
		return
	}

	writeJSON(w, http.StatusOK, scheduleResponse(schedule))
}

// UpdateSchedule handles PUT /v1/tenants/{namespace}/schedules/{id}
func (h *ScheduleHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	namespace := vars["namespace"]
	subject, ok := h.authorize(w, r, namespace, access.ActionMutate)
	if !ok {
		return
	}

	existing, err := h.loadScheduleInNamespace(w, r, vars["id"], namespace)
	if existing == nil || err != nil {
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	updated, err := h.scheduleService.UpdateSchedule(r.Context(), existing.ID, &model.Schedule{
		Action:         model.ScheduleAction(req.Action),
		TargetReplicas: req.TargetReplicas,
		CronExpression: req.CronExpression,
		Enabled:        req.Enabled,
		Description:    req.Description,
	}, subject.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, scheduleResponse(updated))
}

// DeleteSchedule handles DELETE /v1/tenants/{namespace}/schedules/{id}
func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	namespace := vars["namespace"]
	subject, ok := h.authorize(w, r, namespace, access.ActionMutate)
	if !ok {
		return
	}

	existing, err := h.loadScheduleInNamespace(w, r, vars["id"], namespace)
	if existing == nil || err != nil {
		return
	}

	if err := h.scheduleService.DeleteSchedule(r.Context(), existing.ID, subject.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// loadScheduleInNamespace fetches the schedule and rejects IDs that
// belong to a different tenant than the route claims
func (h *ScheduleHandler) loadScheduleInNamespace(w http.ResponseWriter, r *http.Request, id, namespace string) (*model.Schedule, error) {
	schedule, err := h.scheduleService.GetSchedule(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, err
	}
	if schedule.TenantNamespace != namespace {
		writeError(w, r, http.StatusNotFound, "not_found", "schedule not found in namespace")
		return nil, nil
	}
	return schedule, nil
}

func (h *ScheduleHandler) authorize(w http.ResponseWriter, r *http.Request, namespace string, action access.Action) (*identity.Subject, bool) {
	subject, ok := middleware.SubjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "no subject in request")
		return nil, false
	}

	decision, err := h.resolver.Authorize(r.Context(), subject, namespace, action)
	if err != nil {
		h.logger.Error("Authorization failed",
			zap.String("namespace", namespace),
			zap.String("subject_id", subject.ID),
			zap.Error(err))
		writeServiceError(w, r, err)
		return nil, false
	}
	if h.metrics != nil {
		h.metrics.RecordAuthzDecision(decision.Allowed, string(decision.Reason))
	}
	if !decision.Allowed {
		writeDenied(w, r, decision)
		return nil, false
	}

	return subject, true
}

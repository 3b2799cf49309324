package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/opsdeck/tenantd/internal/access"
	"github.com/opsdeck/tenantd/internal/identity"
	"github.com/opsdeck/tenantd/internal/metrics"
	"github.com/opsdeck/tenantd/internal/middleware"
	"github.com/opsdeck/tenantd/internal/service"
	"go.uber.org/zap"
)

// TenantHandler handles tenant state reads and lifecycle actions
type TenantHandler struct {
	tenantService  *service.TenantService
	metricsService *service.MetricsService
	resolver       *access.Resolver
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(
	tenantService *service.TenantService,
	metricsService *service.MetricsService,
	resolver *access.Resolver,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TenantHandler {
	return &TenantHandler{
		tenantService:  tenantService,
		metricsService: metricsService,
		resolver:       resolver,
		metrics:        m,
		logger:         logger,
	}
}

type scaleRequest struct {
	Replicas *int32 `json:"replicas"`
}

// ListTenants handles GET /v1/tenants, returning only tenants inside
// the caller's scope
func (h *TenantHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "no subject in request")
		return
	}

	resolution, err := h.resolver.ResolveScope(r.Context(), subject)
	if err != nil {
		h.logger.Error("Failed to resolve scope", zap.Error(err))
		writeServiceError(w, r, err)
		return
	}
	if !resolution.CanView {
		h.recordAuthz(access.Deny(access.ReasonNoRole))
		writeDenied(w, r, access.Deny(access.ReasonNoRole))
		return
	}
	h.recordAuthz(access.Allow)

	tenants, err := h.tenantService.ListTenants(r.Context())
	if err != nil {
		h.logger.Error("Failed to list tenants", zap.Error(err))
		writeServiceError(w, r, err)
		return
	}

	visible := make([]*TenantResponse, 0, len(tenants))
	for _, tenant := range tenants {
		if resolution.Scope.Contains(tenant.Namespace) {
			visible = append(visible, tenantResponse(tenant))
		}
	}

	writeJSON(w, http.StatusOK, visible)
}

// GetTenant handles GET /v1/tenants/{namespace}
func (h *TenantHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	if _, _, ok := h.authorize(w, r, namespace, access.ActionView); !ok {
		return
	}

	tenant, err := h.tenantService.GetTenant(r.Context(), namespace)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tenantResponse(tenant))
}

// StartTenant handles POST /v1/tenants/{namespace}/start
func (h *TenantHandler) StartTenant(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	subject, _, ok := h.authorize(w, r, namespace, access.ActionMutate)
	if !ok {
		return
	}

	tenant, err := h.tenantService.Start(r.Context(), namespace, subject.ID)
	if err != nil {
		h.logger.Warn("Start failed",
			zap.String("namespace", namespace),
			zap.String("subject_id", subject.ID),
			zap.Error(err))
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, tenantResponse(tenant))
}

// StopTenant handles POST /v1/tenants/{namespace}/stop
func (h *TenantHandler) StopTenant(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	subject, _, ok := h.authorize(w, r, namespace, access.ActionMutate)
	if !ok {
		return
	}

	tenant, err := h.tenantService.Stop(r.Context(), namespace, subject.ID)
	if err != nil {
		h.logger.Warn("Stop failed",
			zap.String("namespace", namespace),
			zap.String("subject_id", subject.ID),
			zap.Error(err))
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, tenantResponse(tenant))
}

// ScaleTenant handles POST /v1/tenants/{namespace}/scale
func (h *TenantHandler) ScaleTenant(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	subject, _, ok := h.authorize(w, r, namespace, access.ActionMutate)
	if !ok {
		return
	}

	var req scaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Replicas == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "replicas is required")
		return
	}

	tenant, err := h.tenantService.Scale(r.Context(), namespace, *req.Replicas, subject.ID)
	if err != nil {
		h.logger.Warn("Scale failed",
			zap.String("namespace", namespace),
			zap.String("subject_id", subject.ID),
			zap.Error(err))
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, tenantResponse(tenant))
}

// GetUptime handles GET /v1/tenants/{namespace}/uptime
func (h *TenantHandler) GetUptime(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	if _, _, ok := h.authorize(w, r, namespace, access.ActionView); !ok {
		return
	}

	sd, err := h.metricsService.CurrentStateDuration(r.Context(), namespace, time.Now().UTC())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &UptimeResponse{
		Namespace: sd.Namespace,
		Status:    string(sd.Status),
		Since:     sd.Since,
		Seconds:   int64(sd.Duration.Seconds()),
		Formatted: sd.Formatted,
	})
}

// GetMonthlyMetrics handles GET /v1/tenants/{namespace}/metrics
func (h *TenantHandler) GetMonthlyMetrics(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	if _, _, ok := h.authorize(w, r, namespace, access.ActionView); !ok {
		return
	}

	now := time.Now().UTC()
	year, month, err := parseYearMonth(r, now)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	m, err := h.metricsService.ComputeMonthlyMetrics(r.Context(), namespace, year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &MonthlyMetricsResponse{
		Namespace:       m.Namespace,
		Year:            m.Year,
		Month:           int(m.Month),
		UptimeSeconds:   m.UptimeSeconds,
		DowntimeSeconds: m.DowntimeSeconds,
		UnknownSeconds:  m.UnknownSeconds,
		Transitions:     m.Transitions,
	})
}

// GetHistory handles GET /v1/tenants/{namespace}/history
func (h *TenantHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	if _, _, ok := h.authorize(w, r, namespace, access.ActionView); !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	events, err := h.metricsService.History(r.Context(), namespace, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]*EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// authorize resolves the subject and checks the action against the
// namespace, writing the error response itself on refusal
func (h *TenantHandler) authorize(w http.ResponseWriter, r *http.Request, namespace string, action access.Action) (*identity.Subject, access.Decision, bool) {
	subject, ok := middleware.SubjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "no subject in request")
		return nil, access.Decision{}, false
	}

	decision, err := h.resolver.Authorize(r.Context(), subject, namespace, action)
	if err != nil {
		h.logger.Error("Authorization failed",
			zap.String("namespace", namespace),
			zap.String("subject_id", subject.ID),
			zap.Error(err))
		writeServiceError(w, r, err)
		return nil, access.Decision{}, false
	}
	h.recordAuthz(decision)
	if !decision.Allowed {
		writeDenied(w, r, decision)
		return nil, decision, false
	}

	return subject, decision, true
}

func (h *TenantHandler) recordAuthz(decision access.Decision) {
	if h.metrics != nil {
		h.metrics.RecordAuthzDecision(decision.Allowed, string(decision.Reason))
	}
}

func parseYearMonth(r *http.Request, now time.Time) (int, time.Month, error) {
	year := now.Year()
	month := now.Month()

	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 2200 {
			return 0, 0, errInvalidYearMonth
		}
		year = parsed
	}
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			return 0, 0, errInvalidYearMonth
		}
		month = time.Month(parsed)
	}

	return year, month, nil
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/opsdeck/tenantd/internal/access"
	"github.com/opsdeck/tenantd/internal/identity"
	"github.com/opsdeck/tenantd/internal/middleware"
	"github.com/opsdeck/tenantd/internal/model"
	"go.uber.org/zap"
)

// PermissionHandler handles namespace grant administration. Only admins
// manage grants; operators and viewers never reach these routes.
type PermissionHandler struct {
	resolver *access.Resolver
	logger   *zap.Logger
}

// NewPermissionHandler creates a new permission handler
func NewPermissionHandler(resolver *access.Resolver, logger *zap.Logger) *PermissionHandler {
	return &PermissionHandler{
		resolver: resolver,
		logger:   logger,
	}
}

type grantRequest struct {
	SubjectID string `json:"subject_id"`
	Namespace string `json:"namespace"`
}

// ListPermissions handles GET /v1/permissions/{subject_id}
func (h *PermissionHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	subjectID := mux.Vars(r)["subject_id"]
	perms, err := h.resolver.ListPermissions(r.Context(), subjectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]*PermissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// GrantPermission handles POST /v1/permissions
func (h *PermissionHandler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SubjectID == "" || req.Namespace == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "subject_id and namespace are required")
		return
	}

	if err := h.resolver.Grant(r.Context(), req.SubjectID, req.Namespace, admin.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"subject_id": req.SubjectID,
		"namespace":  req.Namespace,
		"granted_by": admin.ID,
	})
}

// RevokePermission handles DELETE /v1/permissions/{subject_id}/{namespace}
func (h *PermissionHandler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	if err := h.resolver.Revoke(r.Context(), vars["subject_id"], vars["namespace"], admin.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PermissionHandler) requireAdmin(w http.ResponseWriter, r *http.Request) (*identity.Subject, bool) {
	subject, ok := middleware.SubjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "no subject in request")
		return nil, false
	}
	if !subject.HasRole(model.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "admin_required", "permission management requires the admin role")
		return nil, false
	}
	return subject, true
}

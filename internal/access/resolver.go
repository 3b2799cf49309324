// Package access resolves a subject's effective namespace scope from its
// roles and explicit grants, and answers per-action authorization.
package access

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opsdeck/tenantd/internal/audit"
	"github.com/opsdeck/tenantd/internal/identity"
	"github.com/opsdeck/tenantd/internal/model"
	"github.com/opsdeck/tenantd/internal/store"
	"go.uber.org/zap"
)

// Action is the capability an operation requires
type Action string

const (
	ActionView   Action = "view"
	ActionMutate Action = "mutate"
)

// DenyReason states why authorization was denied
type DenyReason string

const (
	ReasonNoRole     DenyReason = "no_role"
	ReasonNotGranted DenyReason = "not_granted"
	ReasonReadOnly   DenyReason = "read_only"
)

// Decision is an authorization outcome
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow is the positive decision
var Allow = Decision{Allowed: true}

// Deny builds a negative decision with the given reason
func Deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Scope is the set of namespaces a subject may act on
type Scope struct {
	All        bool
	Namespaces []string // sorted; meaningful only when !All
}

// Contains reports whether the scope covers the namespace
func (s Scope) Contains(namespace string) bool {
	if s.All {
		return true
	}
	for _, ns := range s.Namespaces {
		if ns == namespace {
			return true
		}
	}
	return false
}

// Resolution is a subject's effective scope and capabilities. Role is
// the recognized role that produced it, empty when the subject has none.
type Resolution struct {
	Role      string
	Scope     Scope
	CanView   bool
	CanMutate bool
}

// Resolver computes scopes from roles plus the permission store. It is a
// pure read path; Grant and Revoke are the only writers of permission
// rows and both emit audit records and invalidate the scope cache.
type Resolver struct {
	metadataStore store.MetadataStore
	cache         store.Cache
	cacheTTL      time.Duration
	auditSink     audit.Sink
	logger        *zap.Logger
}

// NewResolver creates a new access resolver
func NewResolver(
	metadataStore store.MetadataStore,
	cache store.Cache,
	cacheTTL time.Duration,
	auditSink audit.Sink,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		metadataStore: metadataStore,
		cache:         cache,
		cacheTTL:      cacheTTL,
		auditSink:     auditSink,
		logger:        logger,
	}
}

// ResolveScope computes the subject's effective scope. Role precedence
// is fixed: admin, then viewer, then operator. Unrecognized roles never
// grant anything; an operator with no enabled grants gets an empty
// scope, not a wildcard.
func (r *Resolver) ResolveScope(ctx context.Context, subject *identity.Subject) (*Resolution, error) {
	switch {
	case subject.HasRole(model.RoleAdmin):
		return &Resolution{
			Role:      model.RoleAdmin,
			Scope:     Scope{All: true},
			CanView:   true,
			CanMutate: true,
		}, nil

	case subject.HasRole(model.RoleViewer):
		return &Resolution{
			Role:      model.RoleViewer,
			Scope:     Scope{All: true},
			CanView:   true,
			CanMutate: false,
		}, nil

	case subject.HasRole(model.RoleOperator):
		namespaces, err := r.grantedNamespaces(ctx, subject.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve grants for %s: %w", subject.ID, err)
		}
		return &Resolution{
			Role:      model.RoleOperator,
			Scope:     Scope{Namespaces: namespaces},
			CanView:   true,
			CanMutate: true,
		}, nil

	default:
		// Deny by default: no recognized role means no scope
		return &Resolution{}, nil
	}
}

// Authorize answers whether the subject may perform the action on the
// namespace, with the specific deny reason on refusal
func (r *Resolver) Authorize(ctx context.Context, subject *identity.Subject, namespace string, action Action) (Decision, error) {
	resolution, err := r.ResolveScope(ctx, subject)
	if err != nil {
		return Decision{}, err
	}

	switch {
	case resolution.Role == "":
		return Deny(ReasonNoRole), nil
	case !resolution.Scope.Contains(namespace):
		return Deny(ReasonNotGranted), nil
	case action == ActionMutate && !resolution.CanMutate:
		return Deny(ReasonReadOnly), nil
	default:
		return Allow, nil
	}
}

// Grant enables the (subject, namespace) permission. Re-granting a
// revoked pair updates the same row.
func (r *Resolver) Grant(ctx context.Context, subjectID, namespace, grantedBy string) error {
	perm := &model.NamespacePermission{
		SubjectID: subjectID,
		Namespace: namespace,
		Enabled:   true,
		GrantedBy: grantedBy,
		GrantedAt: time.Now().UTC(),
	}

	err := r.metadataStore.UpsertPermission(ctx, perm)
	r.emitAudit(ctx, grantedBy, audit.ActionPermissionGrant, namespace, err == nil,
		fmt.Sprintf("subject=%s", subjectID))
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}

	r.invalidateScope(ctx, subjectID)

	r.logger.Info("Granted namespace permission",
		zap.String("subject_id", subjectID),
		zap.String("namespace", namespace),
		zap.String("granted_by", grantedBy))

	return nil
}

// Revoke disables the (subject, namespace) permission. The row is kept
// for the audit trail; only Enabled flips.
func (r *Resolver) Revoke(ctx context.Context, subjectID, namespace, revokedBy string) error {
	perm, err := r.metadataStore.GetPermission(ctx, subjectID, namespace)
	if err != nil {
		return fmt.Errorf("failed to load permission: %w", err)
	}

	now := time.Now().UTC()
	perm.Enabled = false
	perm.RevokedAt = &now

	err = r.metadataStore.UpsertPermission(ctx, perm)
	r.emitAudit(ctx, revokedBy, audit.ActionPermissionRevoke, namespace, err == nil,
		fmt.Sprintf("subject=%s", subjectID))
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	r.invalidateScope(ctx, subjectID)

	r.logger.Info("Revoked namespace permission",
		zap.String("subject_id", subjectID),
		zap.String("namespace", namespace),
		zap.String("revoked_by", revokedBy))

	return nil
}

// ListPermissions returns all grant rows for a subject
func (r *Resolver) ListPermissions(ctx context.Context, subjectID string) ([]*model.NamespacePermission, error) {
	return r.metadataStore.ListPermissions(ctx, subjectID)
}

// grantedNamespaces reads the enabled grant set, via the scope cache
func (r *Resolver) grantedNamespaces(ctx context.Context, subjectID string) ([]string, error) {
	cacheKey := scopeCacheKey(subjectID)
	if cached, err := r.cache.Get(ctx, cacheKey); err == nil && cached != nil {
		if namespaces, ok := decodeNamespaces(cached); ok {
			return namespaces, nil
		}
	}

	namespaces, err := r.metadataStore.ListGrantedNamespaces(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	sort.Strings(namespaces)

	if err := r.cache.Set(ctx, cacheKey, namespaces, r.cacheTTL); err != nil {
		r.logger.Warn("Failed to cache scope",
			zap.String("subject_id", subjectID),
			zap.Error(err))
	}

	return namespaces, nil
}

func (r *Resolver) invalidateScope(ctx context.Context, subjectID string) {
	if err := r.cache.Delete(ctx, scopeCacheKey(subjectID)); err != nil {
		r.logger.Warn("Failed to invalidate scope cache",
			zap.String("subject_id", subjectID),
			zap.Error(err))
	}
}

func (r *Resolver) emitAudit(ctx context.Context, actor, action, namespace string, success bool, detail string) {
	if r.auditSink == nil {
		return
	}
	_ = r.auditSink.Emit(ctx, &audit.Record{
		Actor:           actor,
		Action:          action,
		TargetNamespace: namespace,
		Timestamp:       time.Now().UTC(),
		Success:         success,
		Detail:          detail,
	})
}

func scopeCacheKey(subjectID string) string {
	return "scope:" + subjectID
}

// decodeNamespaces accepts both the in-memory representation ([]string)
// and the JSON round-trip from Redis ([]interface{})
func decodeNamespaces(cached interface{}) ([]string, bool) {
	switch v := cached.(type) {
	case []string:
		return v, true
	case []interface{}:
		namespaces := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			namespaces = append(namespaces, s)
		}
		return namespaces, true
	default:
		return nil, false
	}
}

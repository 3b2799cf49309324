package model

import "time"

// Recognized role names. Matching is exact and case-sensitive; any other
// role resolves to no access.
const (
	RoleAdmin    = "admin"
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

// NamespacePermission grants one subject access to one namespace. At most
// one row exists per (subject, namespace); revocation flips Enabled to
// false rather than deleting, preserving the audit trail.
type NamespacePermission struct {
	SubjectID string
	Namespace string
	Enabled   bool
	GrantedBy string
	GrantedAt time.Time
	RevokedAt *time.Time
}

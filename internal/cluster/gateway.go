// Package cluster provides the gateway used to observe and mutate
// namespace workloads in the orchestration cluster.
package cluster

import (
	"context"
	"errors"
)

// ErrUnavailable is returned on transport-level failures
var ErrUnavailable = errors.New("cluster unavailable")

// ErrNotFound is returned when the namespace does not exist
var ErrNotFound = errors.New("namespace not found")

// ErrConflict is returned when a concurrent scale is in progress. Callers
// treat it as retryable; this package does not retry.
var ErrConflict = errors.New("concurrent scale in progress")

// Status is an aggregate replica snapshot for one namespace
type Status struct {
	Replicas      int32
	ReadyReplicas int32
	Workloads     int
}

// Gateway is the capability consumed for cluster reads and writes. Scale
// must be idempotent: last write wins by replica count.
type Gateway interface {
	// ListNamespaces returns non-system namespaces in the cluster.
	ListNamespaces(ctx context.Context) ([]string, error)

	// GetStatus sums desired and ready replicas across the scalable
	// workloads of a namespace.
	GetStatus(ctx context.Context, namespace string) (*Status, error)

	// Scale sets every scalable workload in the namespace to the given
	// replica count.
	Scale(ctx context.Context, namespace string, replicas int32) error
}

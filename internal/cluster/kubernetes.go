package cluster

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	autoscalingv1 "k8s.io/api/autoscaling/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"go.uber.org/zap"
)

// systemPrefixes marks namespaces that are never treated as tenants
var systemPrefixes = []string{"kube-"}

// KubernetesGateway implements Gateway using client-go against the
// apps/v1 scale subresource of Deployments and StatefulSets.
type KubernetesGateway struct {
	clientset kubernetes.Interface
	logger    *zap.Logger
}

// NewKubernetesGateway creates a gateway from either in-cluster config or
// a kubeconfig file (explicit path, or ~/.kube/config when empty).
func NewKubernetesGateway(inCluster bool, kubeconfigPath string, logger *zap.Logger) (*KubernetesGateway, error) {
	var config *rest.Config
	var err error

	if inCluster {
		config, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load in-cluster config: %w", err)
		}
	} else {
		if kubeconfigPath == "" {
			if home := homedir.HomeDir(); home != "" {
				kubeconfigPath = filepath.Join(home, ".kube", "config")
			}
		}
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return &KubernetesGateway{
		clientset: clientset,
		logger:    logger,
	}, nil
}

// NewKubernetesGatewayFromClientset wraps an existing clientset, used by
// tests with a fake clientset.
func NewKubernetesGatewayFromClientset(clientset kubernetes.Interface, logger *zap.Logger) *KubernetesGateway {
	return &KubernetesGateway{clientset: clientset, logger: logger}
}

// ListNamespaces returns non-system namespaces
func (g *KubernetesGateway) ListNamespaces(ctx context.Context) ([]string, error) {
	nsList, err := g.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list namespaces: %v", ErrUnavailable, err)
	}

	namespaces := make([]string, 0, len(nsList.Items))
	for _, ns := range nsList.Items {
		if isSystemNamespace(ns.Name) {
			continue
		}
		namespaces = append(namespaces, ns.Name)
	}

	return namespaces, nil
}

// GetStatus sums replicas across Deployments and StatefulSets
func (g *KubernetesGateway) GetStatus(ctx context.Context, namespace string) (*Status, error) {
	if err := g.checkNamespace(ctx, namespace); err != nil {
		return nil, err
	}

	deployments, err := g.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list deployments: %v", ErrUnavailable, err)
	}

	statefulSets, err := g.clientset.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list statefulsets: %v", ErrUnavailable, err)
	}

	status := &Status{}
	for _, d := range deployments.Items {
		if d.Spec.Replicas != nil {
			status.Replicas += *d.Spec.Replicas
		}
		status.ReadyReplicas += d.Status.ReadyReplicas
		status.Workloads++
	}
	for _, ss := range statefulSets.Items {
		if ss.Spec.Replicas != nil {
			status.Replicas += *ss.Spec.Replicas
		}
		status.ReadyReplicas += ss.Status.ReadyReplicas
		status.Workloads++
	}

	return status, nil
}

// Scale sets every Deployment and StatefulSet in the namespace to the
// given replica count via the scale subresource
func (g *KubernetesGateway) Scale(ctx context.Context, namespace string, replicas int32) error {
	if err := g.checkNamespace(ctx, namespace); err != nil {
		return err
	}

	deployments, err := g.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("%w: failed to list deployments: %v", ErrUnavailable, err)
	}
	for _, d := range deployments.Items {
		if err := g.scaleOne(ctx, namespace, "Deployment", d.Name, replicas); err != nil {
			return err
		}
	}

	statefulSets, err := g.clientset.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("%w: failed to list statefulsets: %v", ErrUnavailable, err)
	}
	for _, ss := range statefulSets.Items {
		if err := g.scaleOne(ctx, namespace, "StatefulSet", ss.Name, replicas); err != nil {
			return err
		}
	}

	g.logger.Info("Scaled namespace workloads",
		zap.String("namespace", namespace),
		zap.Int32("replicas", replicas),
		zap.Int("deployments", len(deployments.Items)),
		zap.Int("statefulsets", len(statefulSets.Items)))

	return nil
}

func (g *KubernetesGateway) scaleOne(ctx context.Context, namespace, kind, name string, replicas int32) error {
	scale := &autoscalingv1.Scale{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       autoscalingv1.ScaleSpec{Replicas: replicas},
	}

	var err error
	switch kind {
	case "Deployment":
		_, err = g.clientset.AppsV1().Deployments(namespace).UpdateScale(ctx, name, scale, metav1.UpdateOptions{})
	case "StatefulSet":
		_, err = g.clientset.AppsV1().StatefulSets(namespace).UpdateScale(ctx, name, scale, metav1.UpdateOptions{})
	}
	if err != nil {
		if apierrors.IsConflict(err) {
			return fmt.Errorf("%w: %s %s/%s", ErrConflict, kind, namespace, name)
		}
		return fmt.Errorf("%w: failed to scale %s %s/%s: %v", ErrUnavailable, kind, namespace, name, err)
	}

	return nil
}

func (g *KubernetesGateway) checkNamespace(ctx context.Context, namespace string) error {
	_, err := g.clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, namespace)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to get namespace %s: %v", ErrUnavailable, namespace, err)
	}
	return nil
}

func isSystemNamespace(name string) bool {
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func int32Ptr(v int32) *int32 { return &v }

func namespace(name string) *corev1.Namespace {
	return &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
}

func deployment(ns, name string, replicas, ready int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Namespace: ns, Name: name},
		Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(replicas)},
		Status:     appsv1.DeploymentStatus{ReadyReplicas: ready},
	}
}

func statefulSet(ns, name string, replicas, ready int32) *appsv1.StatefulSet {
	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Namespace: ns, Name: name},
		Spec:       appsv1.StatefulSetSpec{Replicas: int32Ptr(replicas)},
		Status:     appsv1.StatefulSetStatus{ReadyReplicas: ready},
	}
}

func TestListNamespaces_FiltersSystem(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		namespace("ns-a"),
		namespace("ns-b"),
		namespace("kube-system"),
		namespace("kube-public"),
	)
	gateway := NewKubernetesGatewayFromClientset(clientset, zap.NewNop())

	namespaces, err := gateway.ListNamespaces(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ns-a", "ns-b"}, namespaces)
}

func TestGetStatus_SumsWorkloads(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		namespace("ns-a"),
		deployment("ns-a", "web", 3, 3),
		deployment("ns-a", "worker", 2, 1),
		statefulSet("ns-a", "db", 1, 1),
	)
	gateway := NewKubernetesGatewayFromClientset(clientset, zap.NewNop())

	status, err := gateway.GetStatus(context.Background(), "ns-a")

	require.NoError(t, err)
	assert.Equal(t, int32(6), status.Replicas)
	assert.Equal(t, int32(5), status.ReadyReplicas)
	assert.Equal(t, 3, status.Workloads)
}

func TestGetStatus_EmptyNamespace(t *testing.T) {
	clientset := fake.NewSimpleClientset(namespace("ns-a"))
	gateway := NewKubernetesGatewayFromClientset(clientset, zap.NewNop())

	status, err := gateway.GetStatus(context.Background(), "ns-a")

	require.NoError(t, err)
	assert.Zero(t, status.Replicas)
	assert.Zero(t, status.Workloads)
}

func TestGetStatus_UnknownNamespace(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	gateway := NewKubernetesGatewayFromClientset(clientset, zap.NewNop())

	_, err := gateway.GetStatus(context.Background(), "ns-x")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScale_UnknownNamespace(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	gateway := NewKubernetesGatewayFromClientset(clientset, zap.NewNop())

	err := gateway.Scale(context.Background(), "ns-x", 2)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScale_UpdatesEveryWorkload(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		namespace("ns-a"),
		deployment("ns-a", "web", 3, 3),
		statefulSet("ns-a", "db", 1, 1),
	)
	gateway := NewKubernetesGatewayFromClientset(clientset, zap.NewNop())

	err := gateway.Scale(context.Background(), "ns-a", 0)

	require.NoError(t, err)
	scaled, err := clientset.AppsV1().Deployments("ns-a").GetScale(context.Background(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), scaled.Spec.Replicas)
}

func TestIsSystemNamespace(t *testing.T) {
	assert.True(t, isSystemNamespace("kube-system"))
	assert.True(t, isSystemNamespace("kube-node-lease"))
	assert.False(t, isSystemNamespace("production"))
	assert.False(t, isSystemNamespace("my-kube"))
}

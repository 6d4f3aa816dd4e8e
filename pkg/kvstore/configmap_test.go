package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func TestConfigMapStore(t *testing.T) {
	client := fake.NewSimpleClientset()
	checkStore(t, NewConfigMapStore(client, "ci", "cicoord-locks"))

	// the ConfigMap stays around, with the key removed
	cm, err := client.CoreV1().ConfigMaps("ci").Get(context.Background(), "cicoord-locks", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Empty(t, cm.BinaryData)
	assert.Equal(t, "cicoord", cm.Labels[managedByLabel])
}

func TestConfigMapStore_ReadsHandEditedData(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "locks", Namespace: "ci"},
		Data:       map[string]string{".lockfile": `{"process_id":"by-hand"}`},
	})
	s := NewConfigMapStore(client, "ci", "locks")
	got, err := s.Get(context.Background(), ".lockfile")
	require.NoError(t, err)
	assert.Equal(t, `{"process_id":"by-hand"}`, string(got))

	require.NoError(t, s.Put(context.Background(), ".lockfile", []byte("new")))
	cm, err := client.CoreV1().ConfigMaps("ci").Get(context.Background(), "locks", metav1.GetOptions{})
	require.NoError(t, err)
	assert.NotContains(t, cm.Data, ".lockfile")
	assert.Equal(t, "new", string(cm.BinaryData[".lockfile"]))
}

func TestConfigMapStore_ConflictingUpdate(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "locks", Namespace: "ci"},
	})
	client.PrependReactor("update", "configmaps", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewConflict(schema.GroupResource{Resource: "configmaps"}, "locks", nil)
	})
	s := NewConfigMapStore(client, "ci", "locks")
	err := s.Put(context.Background(), ".lockfile", []byte("lease"))
	assert.Equal(t, ErrConflict, err)
}

func TestConfigMapStore_ConflictingDelete(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "locks", Namespace: "ci"},
		BinaryData: map[string][]byte{".lockfile": []byte("lease")},
	})
	client.PrependReactor("update", "configmaps", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewConflict(schema.GroupResource{Resource: "configmaps"}, "locks", nil)
	})
	s := NewConfigMapStore(client, "ci", "locks")
	err := s.Delete(context.Background(), ".lockfile")
	assert.Equal(t, ErrConflict, err)
}

func TestConfigMapStore_ConflictingCreate(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "configmaps", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewAlreadyExists(schema.GroupResource{Resource: "configmaps"}, "locks")
	})
	s := NewConfigMapStore(client, "ci", "locks")
	err := s.Put(context.Background(), ".lockfile", []byte("lease"))
	assert.Equal(t, ErrConflict, err)
}

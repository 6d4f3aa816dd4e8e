package kvstore

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const managedByLabel = "app.kubernetes.io/managed-by"

// ConfigMapStore keeps every key as an entry in the binaryData of a
// single ConfigMap. Writes carry the resourceVersion that was read, so
// the API server rejects a write that raced with another; that
// rejection is reported as ErrConflict, for Put and Delete alike.
type ConfigMapStore struct {
	client    kubernetes.Interface
	namespace string
	name      string
}

func NewConfigMapStore(client kubernetes.Interface, namespace, name string) *ConfigMapStore {
	return &ConfigMapStore{client: client, namespace: namespace, name: name}
}

func (s *ConfigMapStore) Get(ctx context.Context, key string) ([]byte, error) {
	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", s)
	}
	if value, ok := cm.BinaryData[key]; ok {
		return value, nil
	}
	// Someone may have edited the ConfigMap by hand
	if value, ok := cm.Data[key]; ok {
		return []byte(value), nil
	}
	return nil, ErrNotFound
}

func (s *ConfigMapStore) Put(ctx context.Context, key string, value []byte) error {
	configMaps := s.client.CoreV1().ConfigMaps(s.namespace)
	cm, err := configMaps.Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		cm = &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      s.name,
				Namespace: s.namespace,
				Labels:    map[string]string{managedByLabel: "cicoord"},
			},
			BinaryData: map[string][]byte{key: value},
		}
		_, err = configMaps.Create(ctx, cm, metav1.CreateOptions{})
		if apierrors.IsAlreadyExists(err) {
			return ErrConflict
		}
		return errors.Wrapf(err, "creating %s", s)
	}
	if err != nil {
		return errors.Wrapf(err, "fetching %s", s)
	}

	if cm.BinaryData == nil {
		cm.BinaryData = map[string][]byte{}
	}
	cm.BinaryData[key] = value
	delete(cm.Data, key)
	if _, err = configMaps.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		if apierrors.IsConflict(err) {
			return ErrConflict
		}
		return errors.Wrapf(err, "updating %s", s)
	}
	return nil
}

func (s *ConfigMapStore) Delete(ctx context.Context, key string) error {
	configMaps := s.client.CoreV1().ConfigMaps(s.namespace)
	cm, err := configMaps.Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "fetching %s", s)
	}
	_, inBinary := cm.BinaryData[key]
	_, inData := cm.Data[key]
	if !inBinary && !inData {
		return nil
	}
	delete(cm.BinaryData, key)
	delete(cm.Data, key)
	if _, err = configMaps.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		if apierrors.IsConflict(err) {
			return ErrConflict
		}
		return errors.Wrapf(err, "updating %s", s)
	}
	return nil
}

func (s *ConfigMapStore) String() string {
	return fmt.Sprintf("configmap %s/%s", s.namespace, s.name)
}

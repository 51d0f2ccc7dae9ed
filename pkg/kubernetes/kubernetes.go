// Package kubernetes provides a magma.Store that keeps each flow's artifact
// in its own ConfigMap or Secret, and follows it using the Watch API.
package kubernetes

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/zoobzio/magma"
)

// ResourceType specifies the type of Kubernetes resource artifacts are written to.
type ResourceType int

const (
	// ConfigMap stores artifacts in ConfigMap binaryData.
	ConfigMap ResourceType = iota
	// Secret stores artifacts in Secret data.
	Secret
)

// DataKey is the data key holding the artifact bytes.
const DataKey = "artifact"

const (
	annotationRoute    = "magma.zoobzio.io/route"
	annotationMIMEType = "magma.zoobzio.io/mime-type"
	annotationEncoding = "magma.zoobzio.io/encoding"
	annotationModified = "magma.zoobzio.io/modified"
	labelManagedBy     = "app.kubernetes.io/managed-by"
)

// Store writes one resource per flow named prefix + flow id. Artifact
// metadata is kept in annotations. Resources are limited to 1MiB by the
// API server, which bounds the artifact size.
type Store struct {
	client       kubernetes.Interface
	namespace    string
	prefix       string
	resourceType ResourceType
}

// Option configures a Store.
type Option func(*Store)

// WithResourceType sets the resource type to write.
// Defaults to ConfigMap.
func WithResourceType(rt ResourceType) Option {
	return func(s *Store) {
		s.resourceType = rt
	}
}

// New creates a Store writing resources named prefix + flow id in namespace.
func New(client kubernetes.Interface, namespace, prefix string, opts ...Option) *Store {
	s := &Store{
		client:       client,
		namespace:    namespace,
		prefix:       prefix,
		resourceType: ConfigMap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ magma.Store  = (*Store)(nil)
	_ magma.Loader     = (*Store)(nil)
	_ magma.Subscriber = (*Store)(nil)
)

// Save creates or updates the flow's resource.
func (s *Store) Save(ctx context.Context, artifact magma.Artifact) error {
	meta := metav1.ObjectMeta{
		Name:      s.name(artifact.ID),
		Namespace: s.namespace,
		Labels:    map[string]string{labelManagedBy: "magma"},
		Annotations: map[string]string{
			annotationRoute:    artifact.Route,
			annotationMIMEType: artifact.MIMEType,
			annotationEncoding: artifact.Encoding,
			annotationModified: artifact.Modified.UTC().Format(time.RFC3339Nano),
		},
	}

	var err error
	if s.resourceType == ConfigMap {
		err = s.saveConfigMap(ctx, &corev1.ConfigMap{
			ObjectMeta: meta,
			BinaryData: map[string][]byte{DataKey: artifact.Data},
		})
	} else {
		err = s.saveSecret(ctx, &corev1.Secret{
			ObjectMeta: meta,
			Data:       map[string][]byte{DataKey: artifact.Data},
		})
	}
	if err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", s.namespace, meta.Name, err)
	}
	return nil
}

func (s *Store) saveConfigMap(ctx context.Context, cm *corev1.ConfigMap) error {
	api := s.client.CoreV1().ConfigMaps(s.namespace)
	current, err := api.Get(ctx, cm.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = api.Create(ctx, cm, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	cm.ResourceVersion = current.ResourceVersion
	_, err = api.Update(ctx, cm, metav1.UpdateOptions{})
	return err
}

func (s *Store) saveSecret(ctx context.Context, secret *corev1.Secret) error {
	api := s.client.CoreV1().Secrets(s.namespace)
	current, err := api.Get(ctx, secret.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = api.Create(ctx, secret, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	secret.ResourceVersion = current.ResourceVersion
	_, err = api.Update(ctx, secret, metav1.UpdateOptions{})
	return err
}

// Load reads the flow's resource.
func (s *Store) Load(ctx context.Context, id magma.FlowID) (magma.Artifact, error) {
	artifact, found, _, err := s.current(ctx, id)
	if err != nil {
		return magma.Artifact{}, err
	}
	if !found {
		return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
	}
	return artifact, nil
}

// Watch emits the flow's current artifact, if any, and then every update
// to its resource. The watch is re-established when the API server closes
// it.
func (s *Store) Watch(ctx context.Context, id magma.FlowID) (<-chan magma.Artifact, error) {
	current, found, resourceVersion, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	watcher, err := s.watch(ctx, id, resourceVersion)
	if err != nil {
		return nil, err
	}

	out := make(chan magma.Artifact)
	go func() {
		defer close(out)

		if found {
			select {
			case out <- current:
			case <-ctx.Done():
				watcher.Stop()
				return
			}
		}

		for {
			resourceVersion = s.watchLoop(ctx, id, watcher, out)
			watcher.Stop()
			if ctx.Err() != nil {
				return
			}
			// Reconnect
			watcher, err = s.watch(ctx, id, resourceVersion)
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// watchLoop forwards events until the watch ends and returns the last
// resource version seen.
func (s *Store) watchLoop(ctx context.Context, id magma.FlowID, watcher watch.Interface, out chan<- magma.Artifact) string {
	var resourceVersion string
	for {
		select {
		case <-ctx.Done():
			return resourceVersion

		case event, ok := <-watcher.ResultChan():
			if !ok || event.Type == watch.Error {
				return resourceVersion
			}
			if event.Type == watch.Deleted {
				continue
			}
			artifact, name, rv := s.extract(id, event.Object)
			if name != s.name(id) {
				continue
			}
			resourceVersion = rv
			select {
			case out <- artifact:
			case <-ctx.Done():
				return resourceVersion
			}
		}
	}
}

func (s *Store) current(ctx context.Context, id magma.FlowID) (magma.Artifact, bool, string, error) {
	var (
		obj any
		err error
	)
	if s.resourceType == ConfigMap {
		obj, err = s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name(id), metav1.GetOptions{})
	} else {
		obj, err = s.client.CoreV1().Secrets(s.namespace).Get(ctx, s.name(id), metav1.GetOptions{})
	}
	if apierrors.IsNotFound(err) {
		return magma.Artifact{}, false, "", nil
	}
	if err != nil {
		return magma.Artifact{}, false, "", fmt.Errorf("failed to load %s/%s: %w", s.namespace, s.name(id), err)
	}
	artifact, _, rv := s.extract(id, obj)
	return artifact, true, rv, nil
}

func (s *Store) watch(ctx context.Context, id magma.FlowID, resourceVersion string) (watch.Interface, error) {
	opts := metav1.ListOptions{
		FieldSelector:   fmt.Sprintf("metadata.name=%s", s.name(id)),
		ResourceVersion: resourceVersion,
		Watch:           true,
	}
	var (
		watcher watch.Interface
		err     error
	)
	if s.resourceType == ConfigMap {
		watcher, err = s.client.CoreV1().ConfigMaps(s.namespace).Watch(ctx, opts)
	} else {
		watcher, err = s.client.CoreV1().Secrets(s.namespace).Watch(ctx, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start watch: %w", err)
	}
	return watcher, nil
}

// extract rebuilds an artifact from a ConfigMap or Secret and also returns
// the object's name and resource version.
func (s *Store) extract(id magma.FlowID, obj any) (magma.Artifact, string, string) {
	var (
		meta metav1.ObjectMeta
		data []byte
	)
	switch o := obj.(type) {
	case *corev1.ConfigMap:
		meta, data = o.ObjectMeta, o.BinaryData[DataKey]
	case *corev1.Secret:
		meta, data = o.ObjectMeta, o.Data[DataKey]
	default:
		return magma.Artifact{}, "", ""
	}

	artifact := magma.Artifact{
		ID:       id,
		Route:    meta.Annotations[annotationRoute],
		MIMEType: meta.Annotations[annotationMIMEType],
		Encoding: meta.Annotations[annotationEncoding],
		Data:     data,
	}
	if t, err := time.Parse(time.RFC3339Nano, meta.Annotations[annotationModified]); err == nil {
		artifact.Modified = t
	}
	return artifact, meta.Name, meta.ResourceVersion
}

func (s *Store) name(id magma.FlowID) string {
	return s.prefix + magma.ArtifactKey(id)
}

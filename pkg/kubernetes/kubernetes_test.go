package kubernetes

import (
	"context"
	"errors"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/zoobzio/magma"
)

func testArtifact(data string) magma.Artifact {
	return magma.Artifact{
		ID:       2,
		Route:    "/app.css",
		MIMEType: "text/css",
		Encoding: "utf-8",
		Data:     []byte(data),
		Modified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_ConfigMap(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	store := New(client, "assets", "magma-")

	if _, err := store.Load(ctx, 2); !errors.Is(err, magma.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Save(ctx, testArtifact("a{}")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, testArtifact("b{}")); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	cm, err := client.CoreV1().ConfigMaps("assets").Get(ctx, "magma-2", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("expected configmap magma-2: %v", err)
	}
	if string(cm.BinaryData[DataKey]) != "b{}" {
		t.Errorf("expected updated binaryData, got %q", cm.BinaryData[DataKey])
	}
	if cm.Labels[labelManagedBy] != "magma" {
		t.Errorf("expected managed-by label, got %v", cm.Labels)
	}

	got, err := store.Load(ctx, 2)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got.Data) != "b{}" || got.Route != "/app.css" || got.MIMEType != "text/css" {
		t.Errorf("unexpected artifact %+v", got)
	}
	if !got.Modified.Equal(testArtifact("").Modified) {
		t.Errorf("expected modified %v, got %v", testArtifact("").Modified, got.Modified)
	}
}

func TestStore_Secret(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	store := New(client, "assets", "bundle-", WithResourceType(Secret))

	if err := store.Save(ctx, testArtifact("secret{}")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	secret, err := client.CoreV1().Secrets("assets").Get(ctx, "bundle-2", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("expected secret bundle-2: %v", err)
	}
	if string(secret.Data[DataKey]) != "secret{}" {
		t.Errorf("unexpected secret data %q", secret.Data[DataKey])
	}

	got, err := store.Load(ctx, 2)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got.Data) != "secret{}" {
		t.Errorf("unexpected data %q", got.Data)
	}

	if _, err := New(client, "assets", "bundle-").Load(ctx, 2); !errors.Is(err, magma.ErrNotFound) {
		t.Errorf("expected configmap store to miss, got %v", err)
	}
}

func nextArtifact(t *testing.T, ch <-chan magma.Artifact) magma.Artifact {
	t.Helper()
	select {
	case a, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for artifact")
	}
	return magma.Artifact{}
}

func TestStore_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := fake.NewSimpleClientset()
	store := New(client, "assets", "magma-")

	if err := store.Save(ctx, testArtifact("a{}")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ch, err := store.Watch(ctx, 2)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if got := nextArtifact(t, ch); string(got.Data) != "a{}" {
		t.Errorf("expected current artifact first, got %q", got.Data)
	}

	// Another flow's resource is ignored.
	other := testArtifact("other{}")
	other.ID = 3
	if err := store.Save(ctx, other); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, testArtifact("b{}")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := nextArtifact(t, ch); string(got.Data) != "b{}" || got.ID != 2 {
		t.Errorf("expected update for flow 2, got %+v", got)
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			for range ch {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected channel to close after cancel")
	}
}

func TestStore_WatchBeforeFirstSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := New(fake.NewSimpleClientset(), "assets", "bundle-", WithResourceType(Secret))

	ch, err := store.Watch(ctx, 2)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := store.Save(ctx, testArtifact("first{}")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := nextArtifact(t, ch); string(got.Data) != "first{}" {
		t.Errorf("unexpected artifact %q", got.Data)
	}
}

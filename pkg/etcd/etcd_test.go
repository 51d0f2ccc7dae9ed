package etcd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zoobzio/magma"
)

func setupEtcd(t *testing.T) *clientv3.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	container, err := tcetcd.Run(ctx, "gcr.io/etcd-development/etcd:v3.5.21")
	if err != nil {
		t.Fatalf("failed to start etcd container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ClientEndpoint(ctx)
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{endpoint},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func artifact(data string) magma.Artifact {
	return magma.Artifact{
		ID:       5,
		Route:    "/app.js",
		MIMEType: "application/javascript",
		Encoding: "utf-8",
		Data:     []byte(data),
		Modified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_SaveLoad(t *testing.T) {
	client := setupEtcd(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := New(client, "/magma/artifacts/")

	if _, err := store.Load(ctx, 5); !errors.Is(err, magma.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Save(ctx, artifact("var a;")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, 5)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got.Data) != "var a;" || got.Route != "/app.js" {
		t.Errorf("unexpected artifact %+v", got)
	}

	resp, err := client.Get(ctx, "/magma/artifacts/5")
	if err != nil || len(resp.Kvs) != 1 {
		t.Fatalf("expected raw key to exist: %v", err)
	}
}

func TestStore_Watch(t *testing.T) {
	client := setupEtcd(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := New(client, "/magma/artifacts/")
	if err := store.Save(ctx, artifact("one")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ch, err := store.Watch(ctx, 5)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case got := <-ch:
		if string(got.Data) != "one" {
			t.Errorf("expected initial artifact, got %q", got.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for initial artifact")
	}

	if err := store.Save(ctx, artifact("two")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	select {
	case got := <-ch:
		if string(got.Data) != "two" {
			t.Errorf("expected updated artifact, got %q", got.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for update")
	}
}

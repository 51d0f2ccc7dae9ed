package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/go-zookeeper/zk"
	consulapi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	goredis "github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/zoobzio/magma"
	"github.com/zoobzio/magma/pkg/bucket"
	"github.com/zoobzio/magma/pkg/consul"
	"github.com/zoobzio/magma/pkg/etcd"
	"github.com/zoobzio/magma/pkg/file"
	"github.com/zoobzio/magma/pkg/firestore"
	"github.com/zoobzio/magma/pkg/kubernetes"
	"github.com/zoobzio/magma/pkg/nats"
	"github.com/zoobzio/magma/pkg/postgres"
	"github.com/zoobzio/magma/pkg/redis"
	"github.com/zoobzio/magma/pkg/zookeeper"
)

// ErrUnknownStore is returned for a store URL with an unsupported scheme.
var ErrUnknownStore = errors.New("unknown store scheme")

const dialTimeout = 5 * time.Second

// backend is an opened artifact store.
type backend interface {
	magma.Store
	magma.Loader
}

// openedStore pairs a backend with the cleanup for its client.
type openedStore struct {
	backend
	close func() error
}

func (o *openedStore) Close() error {
	if o.close == nil {
		return nil
	}
	return o.close()
}

// openStore opens the store named by raw. Supported schemes:
//
//	memory://                          in-process, lost on exit
//	file:///srv/assets                 local directory
//	mem://, s3://, gs://, azblob://    gocloud.dev bucket (?prefix=)
//	redis://host:6379/0                Redis (?prefix=&channel=)
//	postgres://user@host/db            PostgreSQL (?table=&channel=)
//	etcd://host:2379/prefix/           etcd
//	consul://host:8500/prefix/         Consul KV
//	nats://host:4222/bucket            NATS JetStream KV
//	zk://host:2181/path                ZooKeeper
//	firestore://project/collection     Firestore
//	k8s://namespace/prefix             Kubernetes ConfigMaps (in-cluster)
func openStore(ctx context.Context, raw string) (*openedStore, error) {
	if raw == "" {
		raw = "memory://"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid store url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "memory":
		return &openedStore{backend: magma.NewMemoryStore()}, nil

	case "file":
		return &openedStore{backend: file.New(filepath.FromSlash(u.Host + u.Path))}, nil

	case "mem", "s3", "gs", "azblob":
		prefix := take(u, "prefix")
		s, err := bucket.Open(ctx, u.String(), prefix)
		if err != nil {
			return nil, err
		}
		return &openedStore{backend: s, close: s.Close}, nil

	case "redis", "rediss":
		return openRedis(u)

	case "postgres", "postgresql":
		return openPostgres(ctx, u)

	case "etcd":
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   strings.Split(u.Host, ","),
			DialTimeout: dialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to etcd: %w", err)
		}
		return &openedStore{backend: etcd.New(client, keyPrefix(u.Path)), close: client.Close}, nil

	case "consul":
		client, err := consulapi.NewClient(&consulapi.Config{Address: u.Host})
		if err != nil {
			return nil, fmt.Errorf("failed to create consul client: %w", err)
		}
		return &openedStore{backend: consul.New(client, strings.TrimPrefix(keyPrefix(u.Path), "/"))}, nil

	case "nats":
		return openNATS(ctx, u)

	case "zk":
		conn, _, err := zk.Connect(strings.Split(u.Host, ","), dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
		}
		return &openedStore{backend: zookeeper.New(conn, u.Path), close: func() error {
			conn.Close()
			return nil
		}}, nil

	case "firestore":
		collection := strings.Trim(u.Path, "/")
		if collection == "" {
			collection = "artifacts"
		}
		client, err := gcfirestore.NewClient(ctx, u.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		return &openedStore{backend: firestore.New(client, collection), close: client.Close}, nil

	case "k8s":
		cfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load in-cluster config: %w", err)
		}
		client, err := k8s.NewForConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
		}
		prefix := strings.Trim(u.Path, "/")
		if prefix == "" {
			prefix = "magma-"
		}
		return &openedStore{backend: kubernetes.New(client, u.Host, prefix)}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownStore, u.Scheme)
}

func openRedis(u *url.URL) (*openedStore, error) {
	var opts []redis.Option
	if prefix := take(u, "prefix"); prefix != "" {
		opts = append(opts, redis.WithPrefix(prefix))
	}
	if channel := take(u, "channel"); channel != "" {
		opts = append(opts, redis.WithChannel(channel))
	}

	clientOpts, err := goredis.ParseURL(u.String())
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := goredis.NewClient(clientOpts)
	return &openedStore{backend: redis.New(client, opts...), close: client.Close}, nil
}

func openPostgres(ctx context.Context, u *url.URL) (*openedStore, error) {
	var opts []postgres.Option
	if table := take(u, "table"); table != "" {
		opts = append(opts, postgres.WithTable(table))
	}
	if channel := take(u, "channel"); channel != "" {
		opts = append(opts, postgres.WithChannel(channel))
	}

	pool, err := pgxpool.New(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := postgres.New(pool, opts...)
	if err := s.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &openedStore{backend: s, close: func() error {
		pool.Close()
		return nil
	}}, nil
}

func openNATS(ctx context.Context, u *url.URL) (*openedStore, error) {
	name := strings.Trim(u.Path, "/")
	if name == "" {
		name = "magma"
	}

	nc, err := natsgo.Connect("nats://" + u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream: %w", err)
	}

	kv, err := js.KeyValue(ctx, name)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: name})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open kv bucket %s: %w", name, err)
	}

	return &openedStore{backend: nats.New(kv), close: func() error {
		nc.Close()
		return nil
	}}, nil
}

// take removes a query parameter from u and returns its value, so the rest
// of the URL can be handed to a client library that rejects unknown options.
func take(u *url.URL, name string) string {
	q := u.Query()
	v := q.Get(name)
	q.Del(name)
	u.RawQuery = q.Encode()
	return v
}

func keyPrefix(path string) string {
	if path == "" || strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

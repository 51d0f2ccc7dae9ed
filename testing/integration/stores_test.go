package integration

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/zoobzio/magma"
	"github.com/zoobzio/magma/internal/server"
	"github.com/zoobzio/magma/pkg/kubernetes"
	"github.com/zoobzio/magma/pkg/redis"
	magmatest "github.com/zoobzio/magma/testing"
)

const manifest = `
defaults:
  minify: true
flows:
  - route: /app.css
    type: css
    paths: css
  - route: /app.js
    type: js
    paths: [js/b.js, js/a.js]
    minify: false
`

func project(t *testing.T) string {
	t.Helper()
	return magmatest.WriteTree(t, map[string]string{
		"magma.yaml": manifest,
		"css/a.css":  "body {\n  color: #ff0000;\n}\n",
		"js/a.js":    "var a;",
		"js/b.js":    "var b;",
	})
}

func buildInto(t *testing.T, store magma.Store) *magma.Engine {
	t.Helper()
	m, err := magma.LoadManifest(filepath.Join(project(t), "magma.yaml"))
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	engine, err := m.Build(store)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	if err := engine.RunAll(testContext(t)); err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	return engine
}

func TestManifest_RedisStore(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(srv.Close)

	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redis.New(client)
	buildInto(t, store)

	magmatest.RequireArtifact(t, store, 0, "body{color:red}")
	magmatest.RequireArtifact(t, store, 1, "var b;\r\nvar a;\r\n")
}

func TestManifest_KubernetesStore(t *testing.T) {
	store := kubernetes.New(fake.NewSimpleClientset(), "assets", "magma-")
	buildInto(t, store)

	css := magmatest.RequireArtifact(t, store, 0, "body{color:red}")
	if css.MIMEType != "text/css" {
		t.Errorf("expected text/css, got %q", css.MIMEType)
	}
}

func TestManifest_ServedOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := magma.NewMemoryStore()
	engine := buildInto(t, store)

	router := server.NewServer(engine, store, nil).SetupRoutes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app.css", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "body{color:red}" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "text/css; charset=utf-8" {
		t.Errorf("unexpected content type %q", got)
	}
}

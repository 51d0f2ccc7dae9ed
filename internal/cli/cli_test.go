package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/magma"
	"github.com/zoobzio/magma/pkg/bucket"
	"github.com/zoobzio/magma/pkg/file"
	magmatest "github.com/zoobzio/magma/testing"
)

const manifest = `
flows:
  - route: /app.js
    type: js
    paths: js
  - route: /app.css
    type: css
    paths: [css/site.css]
`

func project(t *testing.T) string {
	t.Helper()
	return magmatest.WriteTree(t, map[string]string{
		"magma.yaml":   manifest,
		"js/a.js":      "var a;",
		"js/b.js":      "var b;",
		"css/site.css": "body{}",
	})
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"magma"}, args...))
	return out.String(), errOut.String(), err
}

func TestBuildCommand(t *testing.T) {
	dir := project(t)
	outDir := filepath.Join(t.TempDir(), "public")

	out, _, err := run(t,
		"--manifest", filepath.Join(dir, "magma.yaml"),
		"--store", "file://"+filepath.ToSlash(outDir),
		"build",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "built 2 flows")

	store := file.New(outDir)
	magmatest.RequireArtifact(t, store, 0, "var a;\r\nvar b;\r\n")
	css := magmatest.RequireArtifact(t, store, 1, "body{}\r\n")
	assert.Equal(t, "text/css", css.MIMEType)
}

func TestBuildCommandRootOverride(t *testing.T) {
	dir := project(t)
	other := magmatest.WriteTree(t, map[string]string{
		"js/z.js":      "var z;",
		"css/site.css": "p{}",
	})
	outDir := t.TempDir()

	_, _, err := run(t,
		"--manifest", filepath.Join(dir, "magma.yaml"),
		"--root", other,
		"--store", "file://"+filepath.ToSlash(outDir),
		"build",
	)
	require.NoError(t, err)

	magmatest.RequireArtifact(t, file.New(outDir), 0, "var z;\r\n")
}

func TestBuildCommandFailure(t *testing.T) {
	dir := magmatest.WriteTree(t, map[string]string{
		"magma.yaml": "flows:\n  - {route: /a.js, type: js, paths: a.js, preprocessors: [nope]}\n",
		"a.js":       "a",
	})

	_, _, err := run(t, "--manifest", filepath.Join(dir, "magma.yaml"), "build")
	assert.ErrorIs(t, err, magma.ErrConfig)
}

func TestBuildCommandLogsMissingPaths(t *testing.T) {
	dir := magmatest.WriteTree(t, map[string]string{
		"magma.yaml": "flows:\n  - {route: /a.js, type: js, paths: [gone.js, a.js]}\n",
		"a.js":       "a",
	})

	_, errOut, err := run(t, "--manifest", filepath.Join(dir, "magma.yaml"), "--log-format", "json", "build")
	require.NoError(t, err)
	assert.Contains(t, errOut, `"level":"WARN"`)
	assert.Contains(t, errOut, "gone.js does not exist")
}

func TestFlowsCommand(t *testing.T) {
	dir := project(t)

	out, _, err := run(t, "--manifest", filepath.Join(dir, "magma.yaml"), "flows")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "0\t/app.js\tjs"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1\t/app.css\tcss"), lines[1])
}

func TestInvalidLogLevel(t *testing.T) {
	dir := project(t)

	_, _, err := run(t, "--manifest", filepath.Join(dir, "magma.yaml"), "--log-level", "loud", "build")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, "warn", "text")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	logger, err = newLogger(&buf, "DEBUG", "json")
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("default is memory", func(t *testing.T) {
		s, err := openStore(ctx, "")
		require.NoError(t, err)
		defer s.Close()
		_, ok := s.backend.(*magma.MemoryStore)
		assert.True(t, ok)
	})

	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		s, err := openStore(ctx, "file://"+filepath.ToSlash(dir))
		require.NoError(t, err)
		defer s.Close()
		fs, ok := s.backend.(*file.Store)
		require.True(t, ok)
		assert.Equal(t, dir, fs.Dir())
	})

	t.Run("bucket", func(t *testing.T) {
		s, err := openStore(ctx, "mem://?prefix=assets/")
		require.NoError(t, err)
		defer s.Close()
		_, ok := s.backend.(*bucket.Store)
		assert.True(t, ok)

		require.NoError(t, s.Save(ctx, magma.Artifact{ID: 1, Data: []byte("x")}))
		got, err := s.Load(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "x", string(got.Data))
	})

	t.Run("redis", func(t *testing.T) {
		s, err := openStore(ctx, "redis://localhost:6379/0?prefix=assets:&channel=built")
		require.NoError(t, err)
		assert.NoError(t, s.Close())
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := openStore(ctx, "ftp://example.com")
		assert.True(t, errors.Is(err, ErrUnknownStore))
	})
}

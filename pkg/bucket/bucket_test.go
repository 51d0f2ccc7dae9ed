package bucket_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/magma"
	"github.com/zoobzio/magma/pkg/bucket"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	s, err := bucket.Open(ctx, "mem://", "assets/")
	require.NoError(t, err)
	defer s.Close()

	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	artifact := magma.Artifact{
		ID:       4,
		Route:    "/app.css",
		MIMEType: "text/css",
		Encoding: "utf-8",
		Data:     []byte("body{color:red}"),
		Modified: modified,
	}

	t.Run("Load returns not found for missing artifact", func(t *testing.T) {
		_, err := s.Load(ctx, 4)
		assert.ErrorIs(t, err, magma.ErrNotFound)
	})

	t.Run("Save and Load round-trip", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, artifact))

		got, err := s.Load(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, magma.FlowID(4), got.ID)
		assert.Equal(t, "/app.css", got.Route)
		assert.Equal(t, "text/css", got.MIMEType)
		assert.Equal(t, "utf-8", got.Encoding)
		assert.Equal(t, "body{color:red}", string(got.Data))
		assert.True(t, got.Modified.Equal(modified))
	})

	t.Run("Save overwrites", func(t *testing.T) {
		next := artifact
		next.Data = []byte("body{color:blue}")
		require.NoError(t, s.Save(ctx, next))

		got, err := s.Load(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, "body{color:blue}", string(got.Data))
	})

	t.Run("Delete removes artifact", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, 4))
		_, err := s.Load(ctx, 4)
		assert.ErrorIs(t, err, magma.ErrNotFound)
	})

	t.Run("Delete on missing artifact succeeds", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, 99))
	})
}

func TestStoreWritesPlainFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := bucket.Open(ctx, "file://"+filepath.ToSlash(dir), "out/")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(ctx, magma.Artifact{
		ID:       0,
		MIMEType: "application/javascript",
		Data:     []byte("var a;\r\n"),
	}))

	data, err := os.ReadFile(filepath.Join(dir, "out", "0"))
	require.NoError(t, err)
	assert.Equal(t, "var a;\r\n", string(data))
}

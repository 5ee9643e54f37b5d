package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="robot.urdf"`, ContentDisposition("robot.urdf"))
	assert.Equal(t, `attachment; filename="Screenshot 2024 at 10.00 AM.png"`,
		ContentDisposition("Screenshot\u00a02024 at 10.00\u202fAM.png"))
	assert.Equal(t, `attachment; filename="a'b'.stl"`, ContentDisposition(`a"b".stl`))
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage("")

	require.NoError(t, m.Upload(ctx, "l1/a1/part.stl", strings.NewReader("test"), "text/plain", "part.stl"))

	rc, err := m.Download(ctx, "l1/a1/part.stl")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "test", string(data))

	size, err := m.Size(ctx, "l1/a1/part.stl")
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)

	hash, err := m.Hash(ctx, "l1/a1/part.stl")
	require.NoError(t, err)
	assert.Equal(t, `"098f6bcd4621d373cade4e832627b4f6"`, hash)

	obj, ok := m.Object("l1/a1/part.stl")
	require.True(t, ok)
	assert.Equal(t, `attachment; filename="part.stl"`, obj.ContentDisposition)

	url, err := m.PresignUpload(ctx, "k", "application/gzip", "robot.tgz", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "memory://blobs/k?")

	require.NoError(t, m.Delete(ctx, "l1/a1/part.stl"))
	require.NoError(t, m.Delete(ctx, "l1/a1/part.stl"))
	_, err = m.Download(ctx, "l1/a1/part.stl")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Hash(ctx, "l1/a1/part.stl")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, m.Keys())
}

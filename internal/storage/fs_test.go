package storage_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/nairabhi/habitvault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*storage.FSClient, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := storage.NewFSClient(dir)
	require.NoError(t, err)
	return c, dir
}

func TestFSClient_PutOpenRoundTrip(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	data := []byte("artifact bytes")

	info, err := c.Put(ctx, "exports/owner-1/archive.json", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "exports/owner-1/archive.json", info.Key)
	assert.Equal(t, int64(len(data)), info.Size)

	rc, err := c.Open(ctx, "exports/owner-1/archive.json")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFSClient_PutOverwrites(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	_, err := c.Put(ctx, "a/b.json", bytes.NewReader([]byte("first")))
	require.NoError(t, err)
	_, err = c.Put(ctx, "a/b.json", bytes.NewReader([]byte("second version")))
	require.NoError(t, err)

	got, err := storage.ReadAll(ctx, c, "a/b.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("second version"), got)
}

func TestFSClient_PutLeavesNoTempFiles(t *testing.T) {
	c, dir := newClient(t)

	_, err := c.Put(context.Background(), "backups/x.gz", bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.gz", entries[0].Name())
}

func TestFSClient_Stat(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	_, err := c.Put(ctx, "k.bin", bytes.NewReader(make([]byte, 512)))
	require.NoError(t, err)

	info, err := c.Stat(ctx, "k.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(512), info.Size)

	_, err = c.Stat(ctx, "missing.bin")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestFSClient_OpenMissing(t *testing.T) {
	c, _ := newClient(t)

	_, err := c.Open(context.Background(), "nope/nothing.json")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestFSClient_Delete(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	_, err := c.Put(ctx, "gone.json", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "gone.json"))

	_, err = c.Stat(ctx, "gone.json")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	// Deleting an absent object is not an error.
	assert.NoError(t, c.Delete(ctx, "gone.json"))
}

func TestFSClient_RejectsEscapingKeys(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	for _, key := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd", "."} {
		_, err := c.Put(ctx, key, bytes.NewReader([]byte("x")))
		assert.Error(t, err, "key %q must be rejected", key)
		_, err = c.Open(ctx, key)
		assert.Error(t, err, "key %q must be rejected", key)
	}
}

func TestReadAll(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	_, err := c.Put(ctx, "whole.json", bytes.NewReader([]byte(`{"version":1}`)))
	require.NoError(t, err)

	data, err := storage.ReadAll(ctx, c, "whole.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"version":1}`), data)

	_, err = storage.ReadAll(ctx, c, "missing.json")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

package archive_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/ferry/pkg/ferry/adapter/storage"
	"github.com/tigerroll/ferry/pkg/ferry/adapter/storage/local"
	coreAdapter "github.com/tigerroll/ferry/pkg/ferry/core/adapter"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/archive"
	ferrytest "github.com/tigerroll/ferry/pkg/ferry/test"
)

type fixedResolver struct {
	conn storageAdapter.StorageConnection
}

func (r fixedResolver) ResolveStorageConnection(context.Context, string) (storageAdapter.StorageConnection, error) {
	return r.conn, nil
}

func (r fixedResolver) ResolveConnection(context.Context, string) (coreAdapter.ResourceConnection, error) {
	return r.conn, nil
}

func writeLogs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	stdout := filepath.Join(dir, "stdout.log")
	stderr := filepath.Join(dir, "stderr.log")
	require.NoError(t, os.WriteFile(stdout, []byte("out"), 0o644))
	require.NoError(t, os.WriteFile(stderr, []byte("err"), 0o644))
	return stdout, stderr
}

func TestStorageArchiver_LocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Ferry.AdapterConfigs["storage"] = map[string]interface{}{
		"archive": map[string]interface{}{"type": "local", "base_dir": t.TempDir(), "bucket_name": "logs"},
	}
	resolver := storageAdapter.NewResolver(cfg, local.NewLocalProvider(cfg))
	stdout, stderr := writeLogs(t)

	a := archive.NewStorageArchiver(resolver, "archive", "")
	require.NoError(t, a.ArchiveJob(ctx, "batch-1", "job_001", stdout, stderr, filepath.Join(t.TempDir(), "absent.log")))

	conn, err := resolver.ResolveStorageConnection(ctx, "archive")
	require.NoError(t, err)
	rc, err := conn.Download(ctx, "", "batch-1/job_001/stderr.log")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "err", string(data))
}

func TestStorageArchiver_CollectsFailures(t *testing.T) {
	stdout, stderr := writeLogs(t)
	conn := &ferrytest.MockStorageConnection{}
	conn.On("Upload", mock.Anything, "bucket", "b/job_002/stdout.log", "out", "text/plain").Return(errors.New("quota"))
	conn.On("Upload", mock.Anything, "bucket", "b/job_002/stderr.log", "err", "text/plain").Return(nil)

	err := archive.NewStorageArchiver(fixedResolver{conn: conn}, "gcs", "bucket").
		ArchiveJob(context.Background(), "b", "job_002", stdout, stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b/job_002/stdout.log")
	conn.AssertNumberOfCalls(t, "Upload", 2)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "b/job_001/stdout.log", archive.ObjectName("b", "job_001", "/tmp/x/job_001/stdout.log"))
}

// Package archive uploads the log files of finished jobs to object storage.
package archive

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	storageAdapter "github.com/tigerroll/ferry/pkg/ferry/adapter/storage"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// StorageArchiver uploads each file to <bucket>/<batch id>/<job id>/<file name>.
type StorageArchiver struct {
	resolver   storageAdapter.StorageConnectionResolver
	storageRef string
	bucket     string
}

var _ ports.LogArchiver = (*StorageArchiver)(nil)

// NewStorageArchiver creates an archiver writing through the storage
// connection named storageRef. An empty bucket selects the connection default.
func NewStorageArchiver(resolver storageAdapter.StorageConnectionResolver, storageRef, bucket string) *StorageArchiver {
	return &StorageArchiver{resolver: resolver, storageRef: storageRef, bucket: bucket}
}

// ObjectName returns the object name a job file is archived under.
func ObjectName(batchID, jobID, file string) string {
	return path.Join(batchID, jobID, filepath.Base(file))
}

// ArchiveJob implements ports.LogArchiver. Missing files are skipped; every
// other failure is collected and the remaining files are still uploaded.
func (a *StorageArchiver) ArchiveJob(ctx context.Context, batchID, jobID string, paths ...string) error {
	conn, err := a.resolver.ResolveStorageConnection(ctx, a.storageRef)
	if err != nil {
		return exception.NewFerryErrorf(exception.ConnectionError, "archive", "failed to resolve storage '%s'", a.storageRef, err)
	}

	var result *multierror.Error
	for _, p := range paths {
		if err := a.upload(ctx, conn, batchID, jobID, p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (a *StorageArchiver) upload(ctx context.Context, conn storageAdapter.StorageConnection, batchID, jobID, file string) error {
	f, err := os.Open(file)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debugf("Archive: %s does not exist, skipping.", file)
		return nil
	}
	if err != nil {
		return exception.NewFerryErrorf(exception.ConnectionError, "archive", "failed to open %s", file, err)
	}
	defer f.Close()

	object := ObjectName(batchID, jobID, file)
	if err := conn.Upload(ctx, a.bucket, object, f, "text/plain"); err != nil {
		return exception.NewFerryErrorf(exception.ConnectionError, "archive", "failed to upload %s", object, err)
	}
	logger.Debugf("Archive: uploaded %s.", object)
	return nil
}

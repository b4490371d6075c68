// Package storage defines the object storage abstractions used for archived
// job logs and audit reports.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/mitchellh/mapstructure"

	storageConfig "github.com/tigerroll/ferry/pkg/ferry/adapter/storage/config"
	coreAdapter "github.com/tigerroll/ferry/pkg/ferry/core/adapter"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
)

// StorageExecutor defines generic object operations.
type StorageExecutor interface {
	// Upload writes data to bucket/objectName.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName. The caller closes the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes bucket/objectName.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named connection to an object store.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor
}

// StorageProvider opens and caches the connections of one storage type.
type StorageProvider interface {
	GetConnection(name string) (StorageConnection, error)
	CloseAll() error
	Type() string
}

// StorageConnectionResolver resolves named storage connections.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is the Fx value group collecting every StorageProvider.
const StorageProviderGroup = "storage_providers"

// DecodeStorageConfig decodes adapter.storage.<name> from cfg.
func DecodeStorageConfig(cfg *config.Config, name string) (storageConfig.StorageConfig, error) {
	var storageCfg storageConfig.StorageConfig
	namedConfig, ok := cfg.StorageConfigs()[name]
	if !ok {
		return storageCfg, fmt.Errorf("storage configuration for name '%s' not found", name)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &storageCfg,
		TagName: "yaml",
	})
	if err != nil {
		return storageCfg, fmt.Errorf("failed to create decoder for storage config '%s': %w", name, err)
	}
	if err := decoder.Decode(namedConfig); err != nil {
		return storageCfg, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return storageCfg, nil
}

package gcs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/ferry/pkg/ferry/adapter/storage/config"
	"github.com/tigerroll/ferry/pkg/ferry/adapter/storage/gcs"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
)

func TestClientOptions(t *testing.T) {
	assert.Empty(t, gcs.ClientOptions(storageConfig.StorageConfig{}))
	assert.Len(t, gcs.ClientOptions(storageConfig.StorageConfig{CredentialsFile: "/etc/key.json"}), 1)
	// Emulator endpoints are used without authentication.
	assert.Len(t, gcs.ClientOptions(storageConfig.StorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}), 2)
}

func TestProvider_CreatesEmulatorConnection(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Ferry.AdapterConfigs["storage"] = map[string]interface{}{
		"reports": map[string]interface{}{"type": "gcs", "bucket_name": "ferry-reports", "endpoint": "http://127.0.0.1:4443/storage/v1/"},
		"disk":    map[string]interface{}{"type": "local", "base_dir": t.TempDir()},
	}
	provider := gcs.NewGCSProvider(cfg)
	t.Cleanup(func() { _ = provider.CloseAll() })

	conn, err := provider.GetConnection("reports")
	require.NoError(t, err)
	assert.Equal(t, "gcs", conn.Type())
	assert.Equal(t, "reports", conn.Name())

	again, err := provider.GetConnection("reports")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = provider.GetConnection("disk")
	assert.ErrorContains(t, err, "type mismatch")
}

// Package config holds the settings decoded from adapter.storage.<name>.
package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local" or "gcs".
	BucketName      string `yaml:"bucket_name"`      // Default bucket when a call passes none.
	CredentialsFile string `yaml:"credentials_file"` // Service account key file (gcs).
	BaseDir         string `yaml:"base_dir"`         // Root directory (local).
	Endpoint        string `yaml:"endpoint"`         // Alternative API endpoint (gcs emulators).
}

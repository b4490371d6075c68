// Package config provides the configuration structures of Ferry and their
// defaults. Values are loaded from an embedded YAML document, a .env file and
// environment variables (see loader.go).
package config

// EmbeddedConfig holds the raw YAML configuration, typically embedded by main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug    LogLevel = "DEBUG"
	LogLevelInfo     LogLevel = "INFO"
	LogLevelWarn     LogLevel = "WARN"
	LogLevelError    LogLevel = "ERROR"
	LogLevelCritical LogLevel = "CRITICAL"
	LogLevelFatal    LogLevel = "FATAL"
	LogLevelSilent   LogLevel = "SILENT"
)

// Aggregation policies understood by the dispatcher.
const (
	AggregationAny       = "any"
	AggregationAll       = "all"
	AggregationThreshold = "threshold"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the default timezone for timestamps when a job config carries none.
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// DispatchConfig configures the job dispatcher and its worker pool.
type DispatchConfig struct {
	// WorkerCommand is the worker binary launched once per record.
	WorkerCommand string `yaml:"worker_command"`
	// WorkerArgs are extra arguments placed before "--result <path>".
	WorkerArgs []string `yaml:"worker_args"`
	// WorkDir is the parent of every batch working area. Empty means os.TempDir().
	WorkDir string `yaml:"work_dir"`
	// MaxConcurrency bounds simultaneously running workers. 0 launches every job at once.
	MaxConcurrency int `yaml:"max_concurrency"`
	// JobTimeoutSeconds kills a worker after this many seconds. 0 disables the timeout.
	JobTimeoutSeconds int `yaml:"job_timeout_seconds"`
	// LaunchRate limits process launches per second. 0 disables throttling.
	LaunchRate float64 `yaml:"launch_rate"`
	// AggregationPolicy is "any" (default), "all" or "threshold".
	AggregationPolicy string `yaml:"aggregation_policy"`
	// SuccessThreshold is the success fraction required by the "threshold" policy.
	SuccessThreshold float64 `yaml:"success_threshold"`
	// ArchiveLogs uploads every job's stdout/stderr before the working area is removed.
	ArchiveLogs       bool   `yaml:"archive_logs"`
	ArchiveStorageRef string `yaml:"archive_storage_ref"`
	ArchiveBucket     string `yaml:"archive_bucket"`
}

// StateStoreConfig selects and configures the record state store.
type StateStoreConfig struct {
	// Type is "sql" or "memory". Memory state lives in one process only.
	Type string `yaml:"type"`
	// DBRef names the database connection under adapter.database.
	DBRef           string `yaml:"db_ref"`
	Table           string `yaml:"table"`
	AutoMigrate     bool   `yaml:"auto_migrate"`
	MigrationsTable string `yaml:"migrations_table"`
}

// AuditConfig configures the count probes and the audit report.
type AuditConfig struct {
	SourceDBRef      string `yaml:"source_db_ref"`
	TargetDBRef      string `yaml:"target_db_ref"`
	StageDBRef       string `yaml:"stage_db_ref"`
	ReportStorageRef string `yaml:"report_storage_ref"`
	ReportBucket     string `yaml:"report_bucket"`
	ReportDir        string `yaml:"report_dir"`
}

// AlertConfig selects the alert channel.
type AlertConfig struct {
	// Type is "log" or "none".
	Type string `yaml:"type"`
}

// OtelExporterConfig configures an OTLP exporter.
type OtelExporterConfig struct {
	// Protocol is "http" or "grpc".
	Protocol string `yaml:"protocol"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// MetricsConfig selects the metric backend.
type MetricsConfig struct {
	// Backend is "prometheus", "otel" or "none".
	Backend string `yaml:"backend"`
	// PushgatewayURL receives the Prometheus registry when a command finishes.
	PushgatewayURL string `yaml:"pushgateway_url"`
	// JobName is the Pushgateway job label.
	JobName string `yaml:"job_name"`
	// ExportIntervalSeconds is the OTel periodic reader interval.
	ExportIntervalSeconds int                `yaml:"export_interval_seconds"`
	Otel                  OtelExporterConfig `yaml:"otel"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is "otlphttp", "otlpgrpc" or "none".
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedKeys lists job config keys whose values are masked in logs.
	MaskedKeys []string `yaml:"masked_keys"`
}

// FerryConfig holds everything under the "ferry" top-level key.
type FerryConfig struct {
	System     SystemConfig     `yaml:"system"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	StateStore StateStoreConfig `yaml:"state_store"`
	Audit      AuditConfig      `yaml:"audit"`
	Alert      AlertConfig      `yaml:"alert"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Security   SecurityConfig   `yaml:"security"`
	// AdapterConfigs holds raw adapter sections ("database", "storage"), decoded by each provider.
	AdapterConfigs map[string]interface{} `yaml:"adapter"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Ferry          FerryConfig    `yaml:"ferry"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// GlobalConfig is the configuration instance shared across the application.
// It is set by NewConfigProvider.
var GlobalConfig *Config

// GetMaskedKeys returns the configured masked keys, or nil before configuration is loaded.
func GetMaskedKeys() []string {
	if GlobalConfig == nil {
		return nil
	}
	return GlobalConfig.Ferry.Security.MaskedKeys
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Ferry: FerryConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Dispatch: DispatchConfig{
				WorkerCommand:     "ferry-worker",
				AggregationPolicy: AggregationAny,
				SuccessThreshold:  1.0,
			},
			StateStore: StateStoreConfig{
				Type:            "memory",
				DBRef:           "metadata",
				Table:           "ferry_record_state",
				AutoMigrate:     true,
				MigrationsTable: "ferry_schema_migrations",
			},
			Audit: AuditConfig{
				ReportDir: "audit",
			},
			Alert: AlertConfig{Type: "log"},
			Metrics: MetricsConfig{
				Backend:               "none",
				JobName:               "ferry",
				ExportIntervalSeconds: 15,
				Otel:                  OtelExporterConfig{Protocol: "http"},
			},
			Tracing: TracingConfig{
				Exporter:    "none",
				ServiceName: "ferry",
			},
			Security: SecurityConfig{
				MaskedKeys: []string{"password", "api_key", "secret", "token"},
			},
			AdapterConfigs: map[string]interface{}{},
		},
	}
}

// DatabaseConfigs returns the raw adapter.database section.
func (c *Config) DatabaseConfigs() map[string]interface{} {
	return adapterSection(c.Ferry.AdapterConfigs, "database")
}

// StorageConfigs returns the raw adapter.storage section.
func (c *Config) StorageConfigs() map[string]interface{} {
	return adapterSection(c.Ferry.AdapterConfigs, "storage")
}

func adapterSection(configs map[string]interface{}, name string) map[string]interface{} {
	raw, ok := configs[name]
	if !ok {
		return map[string]interface{}{}
	}
	switch section := raw.(type) {
	case map[string]interface{}:
		return section
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(section))
		for k, v := range section {
			if ks, ok := k.(string); ok {
				out[ks] = v
			}
		}
		return out
	default:
		return map[string]interface{}{}
	}
}

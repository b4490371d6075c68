package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string              `name:"envFilePath" optional:"true"`
	Expander       EnvironmentExpander `optional:"true"`
}

// loadConfig loads configuration in four steps: .env file, defaults, embedded
// YAML (placeholders expanded) and environment variable overrides.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}

	cfg := NewConfig()

	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewFerryError(exception.ValidationError, moduleName, "failed to expand environment placeholders", err)
	}

	// YAML is decoded over the defaults so absent keys keep their default value.
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewFerryError(exception.ValidationError, moduleName, "failed to unmarshal embedded config", err)
	}
	if cfg.Ferry.AdapterConfigs == nil {
		cfg.Ferry.AdapterConfigs = map[string]interface{}{}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewFerryError(exception.ValidationError, moduleName, "failed to load config from environment variables", err)
	}
	cfg.EmbeddedConfig = embeddedConfig
	return cfg, nil
}

// LoadConfig loads configuration from the embedded YAML, the .env file and
// environment variables. It is expected to be called once at start-up.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, nil)
}

// NewConfigProvider is an Fx provider that loads and validates *Config,
// publishes it as GlobalConfig and applies the configured log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	GlobalConfig = cfg

	logger.SetLogLevel(cfg.Ferry.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Ferry.System.Logging.Level)
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func Validate(cfg *Config) error {
	d := cfg.Ferry.Dispatch
	switch strings.ToLower(d.AggregationPolicy) {
	case AggregationAny, AggregationAll, AggregationThreshold:
	default:
		return exception.NewFerryErrorf(exception.ValidationError, moduleName, "unknown aggregation_policy %q", d.AggregationPolicy)
	}
	if d.MaxConcurrency < 0 {
		return exception.NewFerryErrorf(exception.ValidationError, moduleName, "max_concurrency must not be negative: %d", d.MaxConcurrency)
	}
	if d.JobTimeoutSeconds < 0 {
		return exception.NewFerryErrorf(exception.ValidationError, moduleName, "job_timeout_seconds must not be negative: %d", d.JobTimeoutSeconds)
	}
	if d.LaunchRate < 0 {
		return exception.NewFerryErrorf(exception.ValidationError, moduleName, "launch_rate must not be negative: %v", d.LaunchRate)
	}
	if d.SuccessThreshold < 0 || d.SuccessThreshold > 1 {
		return exception.NewFerryErrorf(exception.ValidationError, moduleName, "success_threshold must be within [0, 1]: %v", d.SuccessThreshold)
	}
	if d.ArchiveLogs && d.ArchiveStorageRef == "" {
		return exception.NewFerryError(exception.ValidationError, moduleName, "archive_logs requires archive_storage_ref", nil)
	}
	switch st := cfg.Ferry.StateStore; st.Type {
	case "memory":
	case "sql":
		if st.DBRef == "" {
			return exception.NewFerryError(exception.ValidationError, moduleName, "state_store.type sql requires db_ref", nil)
		}
		// The embedded migrations only create the default drive table.
		if st.AutoMigrate && st.Table != "" && st.Table != "ferry_record_state" {
			return exception.NewFerryErrorf(exception.ValidationError, moduleName, "auto_migrate cannot create custom table %q", st.Table)
		}
	default:
		return exception.NewFerryErrorf(exception.ValidationError, moduleName, "unknown state_store.type %q", cfg.Ferry.StateStore.Type)
	}
	return nil
}

// loadStructFromEnv recursively overrides struct fields from environment
// variables named after their yaml tags, e.g. FERRY_DISPATCH_MAX_CONCURRENCY.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField converts value to the kind of field and sets it.
// Slices of strings are read as comma separated lists.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}

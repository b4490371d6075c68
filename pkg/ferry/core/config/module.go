package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Ferry.System.Logging
}

// NewDispatchConfigProvider extracts *DispatchConfig from *Config.
func NewDispatchConfigProvider(cfg *Config) *DispatchConfig {
	return &cfg.Ferry.Dispatch
}

// Module provides the configuration and its sections to Fx.
// The caller supplies EmbeddedConfig and, optionally, the named envFilePath.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewOsEnvironmentExpander, fx.As(new(EnvironmentExpander))),
		NewConfigProvider,
		NewLoggingConfigProvider,
		NewDispatchConfigProvider,
	),
)

package config

import (
	"time"
	_ "time/tzdata"

	"github.com/mitchellh/mapstructure"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
)

// JobSettings is the typed view of the per-batch job config map that the
// dispatcher forwards to every worker. Unknown keys are left to capabilities.
type JobSettings struct {
	// Timezone names the IANA zone used for phase timestamps.
	Timezone string `mapstructure:"timezone"`
	// SourceDBRef, StageDBRef and TargetDBRef override the audit connections.
	SourceDBRef string `mapstructure:"source_db_ref"`
	StageDBRef  string `mapstructure:"stage_db_ref"`
	TargetDBRef string `mapstructure:"target_db_ref"`
	// BatchSize bounds the rows inserted per statement by table copies.
	BatchSize int `mapstructure:"batch_size"`
}

// DecodeJobSettings decodes the recognised keys of a job config map.
// A value of the wrong type is a ValidationError.
func DecodeJobSettings(cfg map[string]interface{}) (JobSettings, error) {
	var settings JobSettings
	if len(cfg) == 0 {
		return settings, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &settings,
		TagName: "mapstructure",
	})
	if err != nil {
		return settings, exception.NewFerryError(exception.ValidationError, moduleName, "failed to create job config decoder", err)
	}
	if err := decoder.Decode(cfg); err != nil {
		return settings, exception.NewFerryError(exception.ValidationError, moduleName, "invalid job config", err)
	}
	return settings, nil
}

// ResolveLocation loads the named zone. An empty or unknown name yields UTC
// and ok=false so callers can warn.
func ResolveLocation(name string) (loc *time.Location, ok bool) {
	if name == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// NowIn returns the current time in loc formatted as RFC 3339.
func NowIn(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(time.RFC3339Nano)
}

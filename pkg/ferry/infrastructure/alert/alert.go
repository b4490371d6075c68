// Package alert provides the AlertChannel implementations selected by
// ferry.alert.type.
package alert

import (
	"context"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/serialization"
)

const tag = "ALERT"

// LogAlertChannel writes alerts to the log of the calling scope. Record fields
// listed in maskedKeys are masked.
type LogAlertChannel struct {
	maskedKeys []string
}

// NewLogAlertChannel creates a LogAlertChannel.
func NewLogAlertChannel(maskedKeys []string) *LogAlertChannel {
	logger.Infof("Alert: Initializing log alert channel.")
	return &LogAlertChannel{maskedKeys: maskedKeys}
}

// Notify implements ports.AlertChannel.
func (c *LogAlertChannel) Notify(ctx context.Context, record model.Record, errs *model.ErrorCollection) error {
	scope := logger.FromContext(ctx)
	scope.Info("[RUNNING] Sending immediate alert for errors: "+strings.Join(errs.Messages(), "; "), tag, nil)
	scope.Error("Record failed", tag, map[string]interface{}{
		"record": serialization.MaskMap(record, c.maskedKeys),
		"errors": errs.Map(),
	})
	scope.Info("[COMPLETED] Alert sent.", tag, nil)
	return nil
}

// NoOpAlertChannel drops every alert.
type NoOpAlertChannel struct{}

// Notify implements ports.AlertChannel.
func (NoOpAlertChannel) Notify(context.Context, model.Record, *model.ErrorCollection) error {
	return nil
}

var (
	_ ports.AlertChannel = (*LogAlertChannel)(nil)
	_ ports.AlertChannel = NoOpAlertChannel{}
)

// New returns the channel named by cfg.Ferry.Alert.Type.
func New(cfg *config.Config) (ports.AlertChannel, error) {
	switch cfg.Ferry.Alert.Type {
	case "", "log":
		return NewLogAlertChannel(cfg.Ferry.Security.MaskedKeys), nil
	case "none":
		return NoOpAlertChannel{}, nil
	default:
		return nil, exception.NewFerryErrorf(exception.ValidationError, "alert", "unknown alert.type %q", cfg.Ferry.Alert.Type)
	}
}

// Module provides ports.AlertChannel.
var Module = fx.Options(fx.Provide(New))

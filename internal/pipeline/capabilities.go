package pipeline

import (
	"context"
	"fmt"

	dbadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/core/registry"
	"github.com/tigerroll/ferry/pkg/ferry/engine/cleaning"
	"github.com/tigerroll/ferry/pkg/ferry/infrastructure/probe"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// Capability and probe keys registered by Register.
const (
	SrcToStgTransfer = "pipeline.src_to_stg.transfer"
	SrcToStgCleanup  = "pipeline.src_to_stg.cleanup"
	StgToTrgTransfer = "pipeline.stg_to_trg.transfer"
	StgToTrgCleanup  = "pipeline.stg_to_trg.cleanup"
	StageCleaning    = "pipeline.stage.cleaning"

	SourceCount = "pipeline.source.count"
	StageCount  = "pipeline.stage.count"
	TargetCount = "pipeline.target.count"
)

// Register adds the built-in capabilities and probes to caps.
func Register(caps *registry.Capabilities, resolver dbadapter.DBConnectionResolver, cfg config.AuditConfig) error {
	t := NewTables(resolver, cfg)

	functions := map[string]ports.Capability{
		SrcToStgTransfer: t.transferStep(t.source, t.stage, "SRC_TO_STG"),
		SrcToStgCleanup:  t.clearStep(t.stage, "SRC_TO_STG"),
		StgToTrgTransfer: t.transferStep(t.stage, t.target, "STG_TO_TRG"),
		StgToTrgCleanup:  stgToTrgCleanup,
		StageCleaning:    cleaning.Chain(t.StageCleaningSteps()...),
	}
	for key, fn := range functions {
		if err := caps.Functions.Register(key, fn); err != nil {
			return err
		}
	}

	probes := map[string]ports.CountProbe{
		SourceCount: probe.NewTableProbe(resolver, cfg.SourceDBRef, model.FieldSourceTable),
		StageCount:  probe.NewTableProbe(resolver, cfg.StageDBRef, model.FieldStageTable),
		TargetCount: probe.NewTableProbe(resolver, cfg.TargetDBRef, model.FieldTargetTable),
	}
	for key, p := range probes {
		if err := caps.Probes.Register(key, p); err != nil {
			return err
		}
	}
	return nil
}

// StageCleaningSteps returns the steps that empty the stage table of a record
// and check that nothing is left behind.
func (t *Tables) StageCleaningSteps() []cleaning.Step {
	return []cleaning.Step{
		{Name: "clear_stage_table", Fn: t.clearStep(t.stage, "STAGE_CLEANUP")},
		{Name: "verify_stage_empty", Fn: t.verifyEmpty(t.stage)},
	}
}

func (t *Tables) transferStep(from, to side, tag string) ports.Capability {
	return func(ctx context.Context, cfg map[string]interface{}, record model.Record) error {
		logger.FromContext(ctx).Info(fmt.Sprintf("Transferring record %s from %s to %s", record.ID(), from.name, to.name), tag, nil)
		_, err := t.Copy(ctx, cfg, record, from, to)
		return err
	}
}

func (t *Tables) clearStep(s side, tag string) ports.Capability {
	return func(ctx context.Context, cfg map[string]interface{}, record model.Record) error {
		logger.FromContext(ctx).Info(fmt.Sprintf("Cleaning up %s data for record %s", s.name, record.ID()), tag, nil)
		return t.Clear(ctx, cfg, record, s)
	}
}

func (t *Tables) verifyEmpty(s side) ports.Capability {
	return func(ctx context.Context, cfg map[string]interface{}, record model.Record) error {
		n, err := t.Count(ctx, cfg, record, s)
		if err != nil {
			return err
		}
		if n != 0 {
			return fmt.Errorf("%s table still holds %d rows", s.name, n)
		}
		return nil
	}
}

// The target load commits in one transaction, so a failed stage -> target
// transfer leaves nothing to undo.
func stgToTrgCleanup(ctx context.Context, _ map[string]interface{}, record model.Record) error {
	logger.FromContext(ctx).Info("Nothing to clean up for record "+record.ID(), "STG_TO_TRG", nil)
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/fx"

	"github.com/tigerroll/ferry/internal/app"
	"github.com/tigerroll/ferry/internal/pipeline"
	dbadapter "github.com/tigerroll/ferry/pkg/ferry/adapter/database"
	"github.com/tigerroll/ferry/pkg/ferry/component/report"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/engine/audit"
	"github.com/tigerroll/ferry/pkg/ferry/engine/cleaning"
	"github.com/tigerroll/ferry/pkg/ferry/engine/dispatch"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// batchFlags select the records of a command and their job config.
type batchFlags struct {
	records  string
	pipeline string
	limit    int
	config   string
}

func (b *batchFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&b.records, "records", "", "JSON file holding an array of records")
	fs.StringVar(&b.pipeline, "pipeline", "", "read PENDING records of this pipeline from the state store")
	fs.IntVar(&b.limit, "limit", 0, "maximum number of pending records (0 = all)")
	fs.StringVar(&b.config, "config", "", "JSON file holding the job config")
}

func newApp(opts ...fx.Option) *fx.App {
	base := app.Base(app.EnvFilePath(), embeddedConfig, app.DBProviderOptions(os.Getenv("DB_ADAPTORS")))
	return fx.New(append([]fx.Option{base}, opts...)...)
}

func runDispatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dispatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var b batchFlags
	b.register(fs)
	var transferKey, cleanupKey, processType string
	fs.StringVar(&transferKey, "transfer", "", "capability key of the transfer function")
	fs.StringVar(&cleanupKey, "cleanup", "", "capability key of the cleanup function")
	fs.StringVar(&processType, "process-type", "", "phase name, e.g. src_to_stg")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	var (
		dispatcher *dispatch.Dispatcher
		pending    ports.PendingRecordSource
		cfg        *config.Config
	)
	fxApp := newApp(app.DispatchModule, fx.Populate(&dispatcher, &pending, &cfg))
	if err := fxApp.Err(); err != nil {
		fmt.Fprintf(stderr, "dispatch failed: %v\n", err)
		return exitError
	}

	code := exitError
	err := app.Run(ctx, fxApp, func(ctx context.Context) error {
		records, err := app.LoadRecords(ctx, b.records, b.pipeline, b.limit, pending)
		if err != nil {
			return err
		}
		jobCfg, err := app.LoadJobConfig(b.config, cfg)
		if err != nil {
			return err
		}
		result, err := dispatcher.Dispatch(ctx, jobCfg, records, transferKey, cleanupKey, processType)
		if err != nil {
			return err
		}
		if crashes := result.Err(); crashes != nil {
			logger.Warnf("Batch %s finished with crashed jobs: %v", result.BatchID, crashes)
		}
		if err := writeJSON(stdout, result.Envelope()); err != nil {
			return err
		}
		code = exitHalt
		if result.Continue {
			code = exitOK
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(stderr, "dispatch failed: %v\n", err)
		return exitError
	}
	return code
}

type auditOutput struct {
	Continue bool                `json:"continue"`
	Results  []model.AuditResult `json:"results"`
	Report   string              `json:"report,omitempty"`
}

func runAudit(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var b batchFlags
	b.register(fs)
	var writeReport bool
	fs.BoolVar(&writeReport, "report", false, "upload the results as a parquet report")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	var (
		reconciler *audit.Reconciler
		writer     *report.ParquetReportWriter
		pending    ports.PendingRecordSource
		cfg        *config.Config
	)
	fxApp := newApp(app.AuditModule, fx.Populate(&reconciler, &writer, &pending, &cfg))
	if err := fxApp.Err(); err != nil {
		fmt.Fprintf(stderr, "audit failed: %v\n", err)
		return exitError
	}

	code := exitError
	err := app.Run(ctx, fxApp, func(ctx context.Context) error {
		records, err := app.LoadRecords(ctx, b.records, b.pipeline, b.limit, pending)
		if err != nil {
			return err
		}
		jobCfg, err := app.LoadJobConfig(b.config, cfg)
		if err != nil {
			return err
		}

		out := auditOutput{Results: reconciler.ReconcileAll(ctx, jobCfg, records)}
		out.Continue = len(records) > 0 && len(out.Results) == len(records)
		for _, res := range out.Results {
			out.Continue = out.Continue && res.Continue
		}
		if writeReport {
			if out.Report, err = writer.Write(ctx, out.Results); err != nil {
				return err
			}
		}
		if err := writeJSON(stdout, out); err != nil {
			return err
		}
		code = exitHalt
		if out.Continue {
			code = exitOK
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(stderr, "audit failed: %v\n", err)
		return exitError
	}
	return code
}

type cleanResult struct {
	RecordID string               `json:"record_id"`
	Result   model.ResultEnvelope `json:"result"`
}

type cleanOutput struct {
	Continue bool          `json:"continue"`
	Results  []cleanResult `json:"results"`
}

func runClean(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var b batchFlags
	b.register(fs)
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	var (
		resolver dbadapter.DBConnectionResolver
		pending  ports.PendingRecordSource
		cfg      *config.Config
	)
	fxApp := newApp(fx.Populate(&resolver, &pending, &cfg))
	if err := fxApp.Err(); err != nil {
		fmt.Fprintf(stderr, "clean failed: %v\n", err)
		return exitError
	}

	code := exitError
	err := app.Run(ctx, fxApp, func(ctx context.Context) error {
		records, err := app.LoadRecords(ctx, b.records, b.pipeline, b.limit, pending)
		if err != nil {
			return err
		}
		jobCfg, err := app.LoadJobConfig(b.config, cfg)
		if err != nil {
			return err
		}

		steps := pipeline.NewTables(resolver, cfg.Ferry.Audit).StageCleaningSteps()
		out := cleanOutput{Continue: len(records) > 0}
		for _, record := range records {
			env := cleaning.Run(ctx, jobCfg, record, steps...)
			out.Continue = out.Continue && env.Continue
			out.Results = append(out.Results, cleanResult{RecordID: record.ID(), Result: env})
		}
		if err := writeJSON(stdout, out); err != nil {
			return err
		}
		code = exitHalt
		if out.Continue {
			code = exitOK
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(stderr, "clean failed: %v\n", err)
		return exitError
	}
	return code
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

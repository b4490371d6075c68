// Command ferry-worker processes the single job message it reads on standard
// input and writes the result envelope to the --result path.
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"

	"github.com/tigerroll/ferry/internal/app"
	"github.com/tigerroll/ferry/pkg/ferry/engine/worker"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping the job...", sig)
		cancel()
	}()

	code := run(ctx, os.Args[1:], os.Stdin, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) int {
	fs := flag.NewFlagSet("ferry-worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var resultPath string
	fs.StringVar(&resultPath, "result", "", "path of the result envelope")
	if err := fs.Parse(args); err != nil {
		return worker.ExitFailure
	}
	if resultPath == "" {
		fmt.Fprintln(stderr, "ferry-worker requires --result")
		return worker.ExitFailure
	}

	var rt *worker.Runtime
	base := app.Base(app.EnvFilePath(), embeddedConfig, app.DBProviderOptions(os.Getenv("DB_ADAPTORS")))
	fxApp := fx.New(base, app.WorkerModule, fx.Populate(&rt))
	if err := fxApp.Err(); err != nil {
		return worker.Fail(ctx, resultPath, "unknown", err)
	}

	code := worker.ExitFailure
	ran := false
	err := app.Run(ctx, fxApp, func(ctx context.Context) error {
		ran = true
		code = rt.Run(ctx, stdin, resultPath)
		return nil
	})
	if err != nil {
		if !ran {
			return worker.Fail(ctx, resultPath, "unknown", err)
		}
		// The envelope is already written; shutdown problems are only logged.
		logger.Errorf("Worker shutdown failed: %v", err)
	}
	return code
}

// Command ferry dispatches batches of records to worker processes, audits
// transferred records and empties their stage tables.
package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

// embeddedConfig is the application configuration bundled into the binary.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// Exit codes.
const (
	exitOK = 0
	// exitError covers usage errors and batches that could not run.
	exitError = 1
	// exitHalt tells the scheduler not to continue the pipeline.
	exitHalt = 2
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping running workers...", sig)
		cancel()
	}()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitError
	}
	switch args[0] {
	case "dispatch":
		return runDispatch(ctx, args[1:], stdout, stderr)
	case "audit":
		return runAudit(ctx, args[1:], stdout, stderr)
	case "clean":
		return runClean(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		printUsage(stderr)
		return exitError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `usage:
  ferry dispatch (--records FILE | --pipeline ID [--limit N]) --transfer KEY --cleanup KEY --process-type NAME [--config FILE]
  ferry audit    (--records FILE | --pipeline ID [--limit N]) [--config FILE] [--report]
  ferry clean    (--records FILE | --pipeline ID [--limit N]) [--config FILE]`)
}

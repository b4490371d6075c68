package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
	"github.com/tigerroll/ferry/pkg/ferry/core/registry"
	"github.com/tigerroll/ferry/pkg/ferry/engine/transfer"
	"github.com/tigerroll/ferry/pkg/ferry/engine/worker"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/serialization"
	ferrytest "github.com/tigerroll/ferry/pkg/ferry/test"
)

type stubRunner struct {
	calls int
	fn    func() model.ResultEnvelope
}

func (s *stubRunner) Run(context.Context, map[string]interface{}, model.Record, ports.Capability, ports.Capability, string) model.ResultEnvelope {
	s.calls++
	return s.fn()
}

func capabilities(t *testing.T) *registry.Capabilities {
	t.Helper()
	caps := registry.NewCapabilities()
	noop := func(context.Context, map[string]interface{}, model.Record) error { return nil }
	fail := func(context.Context, map[string]interface{}, model.Record) error { return errors.New("source unreachable") }
	require.NoError(t, caps.Functions.Register("demo.transfer.ok", noop))
	require.NoError(t, caps.Functions.Register("demo.transfer.fail", fail))
	require.NoError(t, caps.Functions.Register("demo.cleanup.noop", noop))
	return caps
}

func readEnvelope(t *testing.T, path string) model.ResultEnvelope {
	t.Helper()
	var env model.ResultEnvelope
	require.NoError(t, serialization.ReadJSONFile(path, &env))
	return env
}

const message = `{"config":{"timezone":"UTC"},"record":{"id":"rec-1"},"transfer_func":"%s","cleanup_func":"demo.cleanup.noop","process_type":"src_to_stg"}`

func job(transferKey string) *strings.Reader {
	return strings.NewReader(strings.Replace(message, "%s", transferKey, 1))
}

func newOrchestrator() (*transfer.Orchestrator, *ferrytest.MockAlertChannel) {
	store := &ferrytest.MockStateStore{}
	store.On("Persist", mock.Anything, mock.Anything).Return(nil)
	alerts := &ferrytest.MockAlertChannel{}
	alerts.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return transfer.NewOrchestrator(store, alerts, nil, nil), alerts
}

func TestRun_WritesEnvelopeOnSuccess(t *testing.T) {
	orch, _ := newOrchestrator()
	rt := worker.NewRuntime(capabilities(t), orch)
	resultPath := filepath.Join(t.TempDir(), "result.json")

	code := rt.Run(context.Background(), job("demo.transfer.ok"), resultPath)

	assert.Equal(t, worker.ExitOK, code)
	env := readEnvelope(t, resultPath)
	assert.True(t, env.Continue)
	assert.Nil(t, env.Error)
}

func TestRun_ReportedFailureStillExitsZero(t *testing.T) {
	orch, alerts := newOrchestrator()
	rt := worker.NewRuntime(capabilities(t), orch)
	resultPath := filepath.Join(t.TempDir(), "result.json")

	code := rt.Run(context.Background(), job("demo.transfer.fail"), resultPath)

	assert.Equal(t, worker.ExitOK, code)
	env := readEnvelope(t, resultPath)
	assert.False(t, env.Continue)
	assert.Equal(t, []string{"Transfer Error: source unreachable"}, env.Error.Messages())
	alerts.AssertNumberOfCalls(t, "Notify", 1)
}

func TestRun_UnknownCapabilityNeverTransfers(t *testing.T) {
	runner := &stubRunner{fn: func() model.ResultEnvelope { return model.ResultEnvelope{Continue: true} }}
	rt := worker.NewRuntime(capabilities(t), runner)
	resultPath := filepath.Join(t.TempDir(), "result.json")

	code := rt.Run(context.Background(), job("demo.transfer.missing"), resultPath)

	assert.Equal(t, worker.ExitFailure, code)
	assert.Zero(t, runner.calls)
	env := readEnvelope(t, resultPath)
	assert.False(t, env.Continue)
	assert.Equal(t, []string{`Critical Worker Failure: unknown capability "demo.transfer.missing"`}, env.Error.Messages())
}

func TestRun_MalformedMessage(t *testing.T) {
	rt := worker.NewRuntime(capabilities(t), &stubRunner{})
	resultPath := filepath.Join(t.TempDir(), "result.json")

	code := rt.Run(context.Background(), strings.NewReader("{not json"), resultPath)

	assert.Equal(t, worker.ExitFailure, code)
	msgs := readEnvelope(t, resultPath).Error.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0], "Critical Worker Failure: failed to decode JSON payload"))
}

func TestRun_MissingFields(t *testing.T) {
	rt := worker.NewRuntime(capabilities(t), &stubRunner{})
	resultPath := filepath.Join(t.TempDir(), "result.json")

	code := rt.Run(context.Background(), strings.NewReader(`{"record":{"id":"r"}}`), resultPath)

	assert.Equal(t, worker.ExitFailure, code)
	assert.Contains(t, readEnvelope(t, resultPath).Error.Messages()[0], "transfer_func, cleanup_func, process_type")
}

func TestRun_RunnerPanicIsReported(t *testing.T) {
	runner := &stubRunner{fn: func() model.ResultEnvelope { panic("nil map") }}
	rt := worker.NewRuntime(capabilities(t), runner)
	resultPath := filepath.Join(t.TempDir(), "result.json")

	code := rt.Run(context.Background(), job("demo.transfer.ok"), resultPath)

	assert.Equal(t, worker.ExitFailure, code)
	assert.Equal(t, []string{"Critical Worker Failure: panic: nil map"}, readEnvelope(t, resultPath).Error.Messages())
}

func TestRun_UnwritableResultPath(t *testing.T) {
	orch, _ := newOrchestrator()
	rt := worker.NewRuntime(capabilities(t), orch)
	resultPath := filepath.Join(t.TempDir(), "missing-dir", "result.json")

	code := rt.Run(context.Background(), job("demo.transfer.ok"), resultPath)

	assert.Equal(t, worker.ExitFailure, code)
	_, err := os.Stat(resultPath)
	assert.True(t, os.IsNotExist(err))
}

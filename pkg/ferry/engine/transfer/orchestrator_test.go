package transfer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/engine/transfer"
	ferrytest "github.com/tigerroll/ferry/pkg/ferry/test"
)

type fixture struct {
	store    *ferrytest.MockStateStore
	alerts   *ferrytest.MockAlertChannel
	recorder *ferrytest.MockMetricRecorder
	orch     *transfer.Orchestrator
}

// steppingClock returns start, then start+step, start+2*step, ...
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &ferrytest.MockStateStore{},
		alerts:   &ferrytest.MockAlertChannel{},
		recorder: &ferrytest.MockMetricRecorder{},
	}
	f.recorder.On("RecordPhase", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	f.recorder.On("RecordAlertFailure", mock.Anything, mock.Anything).Maybe()
	clock := steppingClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), 90*time.Second)
	f.orch = transfer.NewOrchestrator(f.store, f.alerts, f.recorder, nil, transfer.WithClock(clock))
	return f
}

func succeed(context.Context, map[string]interface{}, model.Record) error { return nil }

func failWith(msg string) func(context.Context, map[string]interface{}, model.Record) error {
	return func(context.Context, map[string]interface{}, model.Record) error { return errors.New(msg) }
}

var jobConfig = map[string]interface{}{"timezone": "UTC"}

func TestRun_TransferSuccess(t *testing.T) {
	f := newFixture(t)
	f.store.On("Persist", mock.Anything, mock.Anything).Return(nil)

	record := model.Record{"id": "rec-1"}
	env := f.orch.Run(context.Background(), jobConfig, record, succeed, failWith("must not run"), "src_to_stg")

	assert.True(t, env.Continue)
	assert.Nil(t, env.Error)
	f.alerts.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)

	snapshots := f.store.Snapshots()
	require.Len(t, snapshots, 2)
	assert.Equal(t, "RUNNING", snapshots[0].String("src_to_stg_status"))
	assert.Equal(t, "2024-03-01T10:00:00Z", snapshots[0].String("src_to_stg_started_at"))
	assert.Nil(t, snapshots[0]["src_to_stg_error"])
	assert.Equal(t, "COMPLETED", snapshots[1].String("src_to_stg_status"))
	assert.Equal(t, "1m30s", snapshots[1].String("src_to_stg_duration_str"))
	assert.Equal(t, "COMPLETED", record.String("src_to_stg_status"))
	f.recorder.AssertCalled(t, "RecordPhase", mock.Anything, "src_to_stg", "COMPLETED", 90*time.Second)
}

func TestRun_TransferFailsCleanupSucceeds(t *testing.T) {
	f := newFixture(t)
	f.store.On("Persist", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	cleaned := false
	cleanup := func(context.Context, map[string]interface{}, model.Record) error {
		cleaned = true
		return nil
	}
	record := model.Record{"id": "rec-2"}
	env := f.orch.Run(context.Background(), jobConfig, record, failWith("connection reset"), cleanup, "src_to_stg")

	assert.False(t, env.Continue)
	assert.True(t, cleaned)
	assert.Equal(t, map[string]string{"error01": "Transfer Error: connection reset"}, env.Error.Map())
	assert.Equal(t, "FAILED", record.String("src_to_stg_status"))
	assert.Same(t, env.Error, record["src_to_stg_error"])
	f.alerts.AssertNumberOfCalls(t, "Notify", 1)
	f.store.AssertNumberOfCalls(t, "Persist", 2)
}

func TestRun_TransferAndCleanupFail(t *testing.T) {
	f := newFixture(t)
	f.store.On("Persist", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	env := f.orch.Run(context.Background(), jobConfig, model.Record{"id": "rec-3"}, failWith("copy failed"), failWith("drop failed"), "stg_to_trg")

	assert.False(t, env.Continue)
	assert.Equal(t, []string{"Transfer Error: copy failed", "Cleanup Error: drop failed"}, env.Error.Messages())
	assert.Equal(t, []string{"error01", "error02"}, env.Error.Keys())
	f.alerts.AssertNumberOfCalls(t, "Notify", 1)
}

func TestRun_PanicsAreRecovered(t *testing.T) {
	f := newFixture(t)
	f.store.On("Persist", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	boom := func(context.Context, map[string]interface{}, model.Record) error { panic("kaboom") }
	env := f.orch.Run(context.Background(), jobConfig, model.Record{"id": "rec-4"}, boom, boom, "src_to_stg")

	assert.Equal(t, []string{"Transfer Error: panic: kaboom", "Cleanup Error: panic: kaboom"}, env.Error.Messages())
}

func TestRun_InitPersistFailureSkipsTransferAndCleanup(t *testing.T) {
	f := newFixture(t)
	f.store.On("Persist", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	f.store.On("Persist", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	called := 0
	count := func(context.Context, map[string]interface{}, model.Record) error {
		called++
		return nil
	}
	record := model.Record{"id": "rec-5"}
	env := f.orch.Run(context.Background(), jobConfig, record, count, count, "src_to_stg")

	assert.False(t, env.Continue)
	assert.Equal(t, []string{"Critical Error: db down"}, env.Error.Messages())
	assert.Zero(t, called)
	assert.Equal(t, "FAILED", record.String("src_to_stg_status"))
	f.alerts.AssertNumberOfCalls(t, "Notify", 1)
}

func TestRun_InvalidTimezoneTypeIsCritical(t *testing.T) {
	f := newFixture(t)
	f.store.On("Persist", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	env := f.orch.Run(context.Background(), map[string]interface{}{"timezone": 9}, model.Record{"id": "rec-6"}, succeed, succeed, "src_to_stg")

	require.Equal(t, 1, env.Error.Len())
	msg, _ := env.Error.Get("error01")
	assert.Contains(t, msg, "Critical Error: invalid job config")
	// Only the final FAILED state is persisted.
	f.store.AssertNumberOfCalls(t, "Persist", 1)
}

func TestRun_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	f := newFixture(t)
	f.store.On("Persist", mock.Anything, mock.Anything).Return(nil)

	record := model.Record{"id": "rec-7"}
	env := f.orch.Run(context.Background(), map[string]interface{}{"timezone": "Nowhere/Land"}, record, succeed, succeed, "src_to_stg")

	assert.True(t, env.Continue)
	assert.Equal(t, "2024-03-01T10:00:00Z", record.String("src_to_stg_started_at"))
}

func TestRun_TimestampsUseConfiguredZone(t *testing.T) {
	f := newFixture(t)
	f.store.On("Persist", mock.Anything, mock.Anything).Return(nil)

	record := model.Record{"id": "rec-8"}
	f.orch.Run(context.Background(), map[string]interface{}{"timezone": "Asia/Tokyo"}, record, succeed, succeed, "src_to_stg")

	assert.Equal(t, "2024-03-01T19:00:00+09:00", record.String("src_to_stg_started_at"))
}

func TestRun_AlertFailureIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.store.On("Persist", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp unavailable"))

	env := f.orch.Run(context.Background(), jobConfig, model.Record{"id": "rec-9"}, failWith("x"), succeed, "src_to_stg")

	assert.Equal(t, []string{"Transfer Error: x"}, env.Error.Messages())
	f.recorder.AssertCalled(t, "RecordAlertFailure", mock.Anything, "src_to_stg")
}

func TestRun_FinalPersistFailureIsLoggedOnly(t *testing.T) {
	f := newFixture(t)
	f.store.On("Persist", mock.Anything, mock.Anything).Return(nil).Once()
	f.store.On("Persist", mock.Anything, mock.Anything).Return(errors.New("lost connection"))

	env := f.orch.Run(context.Background(), jobConfig, model.Record{"id": "rec-10"}, succeed, succeed, "src_to_stg")

	assert.True(t, env.Continue)
	assert.Nil(t, env.Error)
}

func TestTag(t *testing.T) {
	assert.Equal(t, "GENERIC_ORCHESTRATOR_SRC_TO_STG", transfer.Tag("src_to_stg"))
}

// Package test provides testify mocks of the engine's collaborators.
package test

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	storageAdapter "github.com/tigerroll/ferry/pkg/ferry/adapter/storage"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/core/metrics"
	"github.com/tigerroll/ferry/pkg/ferry/core/ports"
)

// MockStateStore is a mock of ports.StateStore. Each call records a clone of
// the record, so assertions see the state at the time of the call.
type MockStateStore struct {
	mock.Mock
}

// Persist mocks ports.StateStore.Persist.
func (m *MockStateStore) Persist(ctx context.Context, record model.Record) error {
	args := m.Called(ctx, record.Clone())
	return args.Error(0)
}

// Snapshots returns the records passed to Persist, in call order.
func (m *MockStateStore) Snapshots() []model.Record {
	var out []model.Record
	for _, call := range m.Calls {
		if call.Method == "Persist" {
			out = append(out, call.Arguments.Get(1).(model.Record))
		}
	}
	return out
}

// MockAlertChannel is a mock of ports.AlertChannel.
type MockAlertChannel struct {
	mock.Mock
}

// Notify mocks ports.AlertChannel.Notify.
func (m *MockAlertChannel) Notify(ctx context.Context, record model.Record, errs *model.ErrorCollection) error {
	args := m.Called(ctx, record, errs)
	return args.Error(0)
}

// MockCountProbe is a mock of ports.CountProbe.
type MockCountProbe struct {
	mock.Mock
}

// Probe mocks ports.CountProbe.Probe.
func (m *MockCountProbe) Probe(ctx context.Context, cfg map[string]interface{}, record model.Record) (int64, error) {
	args := m.Called(ctx, cfg, record)
	return args.Get(0).(int64), args.Error(1)
}

// MockMetricRecorder is a mock of metrics.MetricRecorder.
type MockMetricRecorder struct {
	mock.Mock
}

func (m *MockMetricRecorder) RecordDispatchStart(ctx context.Context, processType string, size int) {
	m.Called(ctx, processType, size)
}

func (m *MockMetricRecorder) RecordDispatchEnd(ctx context.Context, processType string, cont bool, duration time.Duration) {
	m.Called(ctx, processType, cont, duration)
}

func (m *MockMetricRecorder) RecordJobOutcome(ctx context.Context, processType string, status string, duration time.Duration) {
	m.Called(ctx, processType, status, duration)
}

func (m *MockMetricRecorder) RecordPhase(ctx context.Context, processType string, status string, duration time.Duration) {
	m.Called(ctx, processType, status, duration)
}

func (m *MockMetricRecorder) RecordAudit(ctx context.Context, verdict string) {
	m.Called(ctx, verdict)
}

func (m *MockMetricRecorder) RecordAlertFailure(ctx context.Context, processType string) {
	m.Called(ctx, processType)
}

// MockStorageConnection is a mock of storage.StorageConnection. Uploaded
// bodies are read fully and passed to Called as strings.
type MockStorageConnection struct {
	mock.Mock
}

func (m *MockStorageConnection) Close() error { return m.Called().Error(0) }

func (m *MockStorageConnection) Type() string { return "mock" }

func (m *MockStorageConnection) Name() string { return "mock" }

func (m *MockStorageConnection) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	return m.Called(ctx, bucket, objectName, string(body), contentType).Error(0)
}

func (m *MockStorageConnection) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, objectName)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *MockStorageConnection) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	return m.Called(ctx, bucket, prefix, fn).Error(0)
}

func (m *MockStorageConnection) DeleteObject(ctx context.Context, bucket, objectName string) error {
	return m.Called(ctx, bucket, objectName).Error(0)
}

var (
	_ ports.StateStore                 = (*MockStateStore)(nil)
	_ ports.AlertChannel               = (*MockAlertChannel)(nil)
	_ ports.CountProbe                 = (*MockCountProbe)(nil)
	_ metrics.MetricRecorder           = (*MockMetricRecorder)(nil)
	_ storageAdapter.StorageConnection = (*MockStorageConnection)(nil)
)

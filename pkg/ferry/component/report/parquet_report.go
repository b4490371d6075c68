// Package report exports audit results as parquet files to object storage.
package report

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	storageAdapter "github.com/tigerroll/ferry/pkg/ferry/adapter/storage"
	"github.com/tigerroll/ferry/pkg/ferry/core/config"
	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/logger"
)

const moduleName = "report"

// Row is one audit result in the parquet schema.
type Row struct {
	RecordID    string `parquet:"name=record_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SourceCount int64  `parquet:"name=source_count, type=INT64"`
	TargetCount int64  `parquet:"name=target_count, type=INT64"`
	Verdict     string `parquet:"name=verdict, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Continue    bool   `parquet:"name=continue, type=BOOLEAN"`
	Errors      string `parquet:"name=errors, type=BYTE_ARRAY, convertedtype=UTF8"`
	AuditedAt   int64  `parquet:"name=audited_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// NewRow converts an audit result taken at auditedAt.
func NewRow(res model.AuditResult, auditedAt time.Time) Row {
	return Row{
		RecordID:    res.RecordID,
		SourceCount: res.SourceCount,
		TargetCount: res.TargetCount,
		Verdict:     string(res.Verdict),
		Continue:    res.Continue,
		Errors:      strings.Join(res.Error.Messages(), "; "),
		AuditedAt:   auditedAt.UnixMilli(),
	}
}

// ParquetReportWriter uploads audit reports under
// <report dir>/dt=YYYY-MM-DD/audit_<timestamp>_<id>.parquet.
type ParquetReportWriter struct {
	resolver   storageAdapter.StorageConnectionResolver
	storageRef string
	bucket     string
	dir        string
	now        func() time.Time
}

// NewParquetReportWriter creates a writer from the audit configuration.
func NewParquetReportWriter(resolver storageAdapter.StorageConnectionResolver, cfg config.AuditConfig) *ParquetReportWriter {
	return &ParquetReportWriter{
		resolver:   resolver,
		storageRef: cfg.ReportStorageRef,
		bucket:     cfg.ReportBucket,
		dir:        cfg.ReportDir,
		now:        time.Now,
	}
}

// Encode renders rows as a SNAPPY compressed parquet file.
func Encode(rows []Row) (data []byte, err error) {
	buf := new(bytes.Buffer)
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewParquetWriter(pfw, new(Row), 1)
	if err != nil {
		return nil, exception.NewFerryError(exception.ParseError, moduleName, "failed to create parquet writer", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	// WriteStop panics on some schema errors.
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, exception.NewFerryErrorf(exception.ParseError, moduleName, "parquet writer panicked: %v", r)
		}
	}()
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, exception.NewFerryError(exception.ParseError, moduleName, "failed to write parquet row", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, exception.NewFerryError(exception.ParseError, moduleName, "failed to finalize parquet file", err)
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

// Write encodes results and uploads them, returning the object name. An
// empty result set writes nothing and returns "".
func (w *ParquetReportWriter) Write(ctx context.Context, results []model.AuditResult) (string, error) {
	if len(results) == 0 {
		logger.Infof("Report: no audit results, skipping parquet report.")
		return "", nil
	}
	now := w.now().UTC()
	rows := make([]Row, 0, len(results))
	for _, res := range results {
		rows = append(rows, NewRow(res, now))
	}
	data, err := Encode(rows)
	if err != nil {
		return "", err
	}

	conn, err := w.resolver.ResolveStorageConnection(ctx, w.storageRef)
	if err != nil {
		return "", exception.NewFerryErrorf(exception.ConnectionError, moduleName, "failed to resolve storage '%s'", w.storageRef, err)
	}
	object := path.Join(w.dir, "dt="+now.Format("2006-01-02"),
		fmt.Sprintf("audit_%s_%s.parquet", now.Format("20060102150405"), uuid.NewString()[:8]))
	if err := conn.Upload(ctx, w.bucket, object, bytes.NewReader(data), "application/octet-stream"); err != nil {
		return "", exception.NewFerryErrorf(exception.ConnectionError, moduleName, "failed to upload %s", object, err)
	}
	logger.Infof("Report: uploaded %d audit results to %s.", len(rows), object)
	return object, nil
}

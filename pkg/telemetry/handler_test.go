package telemetry

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/cerca/pkg/types"
)

func newTestHandler(t *testing.T) (*ParquetHandler, string) {
	t.Helper()
	dir := t.TempDir()
	h, err := NewParquetHandler(slog.NewTextHandler(io.Discard, nil), dir)
	require.NoError(t, err)
	return h, dir
}

func TestParquetHandlerPersistsErrorRecords(t *testing.T) {
	h, dir := newTestHandler(t)
	log := slog.New(h)

	ctx := context.WithValue(context.Background(), types.ContextKeyRequestID, "req-42")
	ctx = context.WithValue(ctx, types.ContextKeyIntent, "find_procedure")

	log.ErrorContext(ctx, "scoring call failed", "ref", "nomina-membri")
	log.InfoContext(ctx, "retrieval complete")

	require.NoError(t, h.Flush())

	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	records, err := parquet.ReadFile[LogRecord](files[0])
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "scoring call failed", rec.Message)
	assert.Equal(t, "ERROR", rec.Level)
	assert.Equal(t, "req-42", rec.RequestID)
	assert.Equal(t, "find_procedure", rec.Intent)
	assert.Contains(t, rec.Attributes, "nomina-membri")
	assert.NotEmpty(t, rec.ID)
}

func TestParquetHandlerFlushWithoutRecords(t *testing.T) {
	h, dir := newTestHandler(t)

	require.NoError(t, h.Flush())

	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestParquetHandlerFlushesAtBatchSize(t *testing.T) {
	h, dir := newTestHandler(t)
	log := slog.New(h)

	for i := 0; i < h.batchSize; i++ {
		log.Error("store failure", "attempt", i)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	records, err := parquet.ReadFile[LogRecord](files[0])
	require.NoError(t, err)
	assert.Len(t, records, h.batchSize)
}

func TestParquetHandlerPassesRecordsThrough(t *testing.T) {
	dir := t.TempDir()
	var captured []slog.Record
	next := recordingHandler{records: &captured}
	h, err := NewParquetHandler(next, dir)
	require.NoError(t, err)

	log := slog.New(h)
	log.Info("retrieval complete")
	log.Error("store failure")

	assert.Len(t, captured, 2)
}

// recordingHandler captures every record it handles.
type recordingHandler struct {
	records *[]slog.Record
}

func (h recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h recordingHandler) Handle(_ context.Context, r slog.Record) error {
	*h.records = append(*h.records, r)
	return nil
}

func (h recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h recordingHandler) WithGroup(string) slog.Handler      { return h }

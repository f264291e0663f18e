package logging

import (
	"context"
	"testing"

	"github.com/Laisky/zap"
	"github.com/Laisky/zap/zapcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCore is a minimal zapcore.Core that captures every entry
// written to it, used instead of a real sink to assert on log output.
type recordingCore struct {
	entries *[]zapcore.Entry
	fields  *[][]zapcore.Field
}

func newRecordingLogger() (*zap.Logger, *[]zapcore.Entry, *[][]zapcore.Field) {
	entries := &[]zapcore.Entry{}
	fields := &[][]zapcore.Field{}
	core := recordingCore{entries: entries, fields: fields}
	return zap.New(core), entries, fields
}

func (c recordingCore) Enabled(zapcore.Level) bool { return true }
func (c recordingCore) With(fs []zapcore.Field) zapcore.Core {
	*c.fields = append(*c.fields, fs)
	return c
}
func (c recordingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return ce.AddCore(e, c)
}
func (c recordingCore) Write(e zapcore.Entry, fs []zapcore.Field) error {
	*c.entries = append(*c.entries, e)
	*c.fields = append(*c.fields, fs)
	return nil
}
func (c recordingCore) Sync() error { return nil }

func TestWithFieldsAccumulatesAcrossNestedContexts(t *testing.T) {
	ctx := WithFields(context.Background(), zap.String("request_id", "r1"))
	ctx = WithFields(ctx, zap.Int64("user_id", 7))

	fields := fieldsFromCtx(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "request_id", fields[0].Key)
	assert.Equal(t, "user_id", fields[1].Key)
}

func TestFieldsFromNilContextIsEmpty(t *testing.T) {
	assert.Empty(t, fieldsFromCtx(nil))
	assert.Empty(t, fieldsFromCtx(context.Background()))
}

func TestInfoLogsWithContextFields(t *testing.T) {
	logger, entries, fields := newRecordingLogger()
	original := Logger
	Set(logger)
	defer func() { Logger = original }()

	ctx := WithFields(context.Background(), zap.String("request_id", "abc"))
	Info(ctx, "handled request", zap.Int("status", 200))

	require.Len(t, *entries, 1)
	assert.Equal(t, "handled request", (*entries)[0].Message)

	last := (*fields)[len(*fields)-1]
	require.Len(t, last, 2)
	assert.Equal(t, "request_id", last[0].Key)
	assert.Equal(t, "status", last[1].Key)
}

func TestSetIgnoresNilLogger(t *testing.T) {
	original := Logger
	defer func() { Logger = original }()

	Set(nil)
	assert.Same(t, original, Logger)
}

package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGorm(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), logs
}

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Options(t *testing.T) {
	l, _ := newObservedGorm(gormlogger.Warn)
	assert.Equal(t, DefaultSlowQuery, l.slowThreshold)
	assert.False(t, l.logNotFound)

	l, _ = newObservedGorm(gormlogger.Warn, WithSlowThreshold(time.Second), WithNotFoundErrors())
	assert.Equal(t, time.Second, l.slowThreshold)
	assert.True(t, l.logNotFound)

	l, _ = newObservedGorm(gormlogger.Warn, WithSlowThreshold(0))
	assert.Equal(t, DefaultSlowQuery, l.slowThreshold)
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	l, _ := newObservedGorm(gormlogger.Info)
	quiet, ok := l.LogMode(gormlogger.Silent).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Silent, quiet.level)
	assert.Equal(t, gormlogger.Info, l.level)
}

func TestGormLogger_Trace(t *testing.T) {
	ctx := context.Background()

	t.Run("failed statement", func(t *testing.T) {
		l, logs := newObservedGorm(gormlogger.Warn)
		l.Trace(ctx, time.Now(), statement("UPDATE orders SET status = 'shipped'", 0), errors.New("deadlock detected"))

		entries := logs.FilterMessage("Query failed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, "deadlock detected", entries[0].ContextMap()["error"])
	})

	t.Run("record not found is skipped by default", func(t *testing.T) {
		l, logs := newObservedGorm(gormlogger.Warn)
		l.Trace(ctx, time.Now(), statement("SELECT * FROM payments", 0), gormlogger.ErrRecordNotFound)
		assert.Zero(t, logs.Len())

		l, logs = newObservedGorm(gormlogger.Warn, WithNotFoundErrors())
		l.Trace(ctx, time.Now(), statement("SELECT * FROM payments", 0), gormlogger.ErrRecordNotFound)
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("slow statement", func(t *testing.T) {
		l, logs := newObservedGorm(gormlogger.Warn, WithSlowThreshold(10*time.Millisecond))
		l.Trace(ctx, time.Now().Add(-50*time.Millisecond), statement("SELECT * FROM orders", 3), nil)

		entries := logs.FilterMessage("Slow query").All()
		require.Len(t, entries, 1)
		assert.Equal(t, int64(3), entries[0].ContextMap()["rows"])
	})

	t.Run("fast statement only in info mode", func(t *testing.T) {
		l, logs := newObservedGorm(gormlogger.Warn)
		l.Trace(ctx, time.Now(), statement("SELECT 1", 1), nil)
		assert.Zero(t, logs.Len())

		l, logs = newObservedGorm(gormlogger.Info)
		l.Trace(ctx, time.Now(), statement("SELECT 1", 1), nil)
		entries := logs.FilterMessage("Query").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		assert.Equal(t, "SELECT 1", entries[0].ContextMap()["sql"])
	})

	t.Run("silent", func(t *testing.T) {
		l, logs := newObservedGorm(gormlogger.Silent)
		l.Trace(ctx, time.Now(), statement("SELECT 1", 1), errors.New("boom"))
		assert.Zero(t, logs.Len())
	})
}

func TestGormLogger_ContextFields(t *testing.T) {
	l, logs := newObservedGorm(gormlogger.Info)
	ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-42")
	ctx, _ = WithStoreID(ctx, zap.NewNop(), "store-7")

	l.Trace(ctx, time.Now(), statement("SELECT * FROM orders", 5), nil)
	l.Warn(ctx, "reconnecting to %s", "primary")

	require.Equal(t, 2, logs.Len())
	for _, entry := range logs.All() {
		fields := entry.ContextMap()
		assert.Equal(t, "req-42", fields["request_id"])
		assert.Equal(t, "store-7", fields["store_id"])
	}
	assert.Equal(t, "reconnecting to primary", logs.All()[1].Message)
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"info":    gormlogger.Info,
		"debug":   gormlogger.Info,
		"verbose": gormlogger.Warn,
		"":        gormlogger.Warn,
	}
	for level, want := range tests {
		assert.Equal(t, want, MapGormLogLevel(level), level)
	}
}

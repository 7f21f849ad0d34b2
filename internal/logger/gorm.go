package logger

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm's SQL tracing into the context logger.
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger builds a GormLogger at the given level. Statements are
// logged at debug level when level is gormlogger.Info.
func NewGormLogger(level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{level: level, slowThreshold: 200 * time.Millisecond}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level < gormlogger.Info {
		return
	}
	log := FromContext(ctx)
	log.Info().Str("component", "gorm").Interface("data", data).Msg(msg)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level < gormlogger.Warn {
		return
	}
	log := FromContext(ctx)
	log.Warn().Str("component", "gorm").Interface("data", data).Msg(msg)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level < gormlogger.Error {
		return
	}
	log := FromContext(ctx)
	log.Error().Str("component", "gorm").Interface("data", data).Msg(msg)
}

// Trace logs one executed statement.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error:
		l.logQuery(ctx, fc, elapsed, err, zerolog.ErrorLevel)
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.logQuery(ctx, fc, elapsed, nil, zerolog.WarnLevel)
	case l.level >= gormlogger.Info:
		l.logQuery(ctx, fc, elapsed, nil, zerolog.DebugLevel)
	}
}

func (l *GormLogger) logQuery(ctx context.Context, fc func() (string, int64), elapsed time.Duration, err error, level zerolog.Level) {
	sql, rows := fc()
	log := FromContext(ctx)
	ev := log.WithLevel(level).
		Str("component", "gorm").
		Str("sql", strings.TrimSpace(sql)).
		Int64("duration_ms", elapsed.Milliseconds())
	if rows >= 0 {
		ev = ev.Int64("rows_affected", rows)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("gorm.query")
}

var _ gormlogger.Interface = (*GormLogger)(nil)

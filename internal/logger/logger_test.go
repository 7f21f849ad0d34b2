package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info level, got %s", log.GetLevel())
	}
}

func TestNewWithLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"  error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NewWithLevel(tt.input).GetLevel(); got != tt.want {
				t.Errorf("NewWithLevel(%q) level = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"run_id":   "123",
		"endpoint": "customers",
	})

	log.Info().Msg("fetched")

	output := buf.String()
	if !strings.Contains(output, `"run_id":"123"`) {
		t.Errorf("Expected output to contain run_id field, got: %s", output)
	}
	if !strings.Contains(output, `"endpoint":"customers"`) {
		t.Errorf("Expected output to contain endpoint field, got: %s", output)
	}
}

func TestGormLoggerTrace(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), NewWithWriter(&buf))

	gl := NewGormLogger(gormlogger.Error)
	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	if buf.Len() != 0 {
		t.Errorf("Expected successful statement to be skipped at error level, got %s", buf.String())
	}

	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT broken", -1 }, errors.New("syntax error"))
	out := buf.String()
	if !strings.Contains(out, `"sql":"SELECT broken"`) || !strings.Contains(out, "syntax error") {
		t.Errorf("Expected failed statement to be logged, got %s", out)
	}
	if strings.Contains(out, "rows_affected") {
		t.Errorf("Expected no rows_affected for unknown row count, got %s", out)
	}

	buf.Reset()
	gl.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, errors.New("x"))
	if buf.Len() != 0 {
		t.Errorf("Expected silent logger to write nothing, got %s", buf.String())
	}
}

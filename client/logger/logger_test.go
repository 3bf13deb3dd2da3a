package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := NewLogger(path, zapcore.InfoLevel)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	l.Infow("prefill done", "worker", 3)
	l.Debugw("hidden below info")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "prefill done") || !strings.Contains(out, `"worker": 3`) {
		t.Errorf("log file missing entry: %q", out)
	}
	if strings.Contains(out, "hidden below info") {
		t.Errorf("debug entry written at info level: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  zapcore.Level
		isErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.isErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.isErr)
			continue
		}
		if !tt.isErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopLoggerClose(t *testing.T) {
	if err := NewNop().Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

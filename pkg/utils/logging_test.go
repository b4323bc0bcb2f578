package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{name: "debug level", input: "DEBUG", expected: DEBUG},
		{name: "info level", input: "INFO", expected: INFO},
		{name: "warn level", input: "WARN", expected: WARN},
		{name: "warning level", input: "WARNING", expected: WARN},
		{name: "error level", input: "ERROR", expected: ERROR},
		{name: "case insensitive", input: "debug", expected: DEBUG},
		{name: "invalid level", input: "INVALID", expected: INFO, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseLogLevel() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.level.String(); result != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLogLevelZapLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  zapcore.Level
	}{
		{DEBUG, zapcore.DebugLevel},
		{INFO, zapcore.InfoLevel},
		{WARN, zapcore.WarnLevel},
		{ERROR, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		if got := tt.level.ZapLevel(); got != tt.want {
			t.Errorf("%v.ZapLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSetupLogging(t *testing.T) {
	t.Run("writes json to file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "drivefs.log")

		logger, atom, err := SetupLogging(LoggingConfig{Level: "WARN", Format: "json", OutputPath: logFile})
		if err != nil {
			t.Fatalf("SetupLogging() error = %v", err)
		}
		if atom.Level() != zapcore.WarnLevel {
			t.Errorf("level = %v, want warn", atom.Level())
		}

		logger.Info("dropped")
		logger.Warn("kept", zap.String("path", "/report.txt"))
		_ = logger.Sync()

		data, err := os.ReadFile(logFile)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		out := string(data)
		if strings.Contains(out, "dropped") {
			t.Error("info entry should be filtered at warn level")
		}
		if !strings.Contains(out, `"path":"/report.txt"`) {
			t.Errorf("log output missing structured field: %s", out)
		}
	})

	t.Run("atomic level can be raised", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "drivefs.log")
		logger, atom, err := SetupLogging(LoggingConfig{Level: "ERROR", OutputPath: logFile})
		if err != nil {
			t.Fatalf("SetupLogging() error = %v", err)
		}
		atom.SetLevel(zapcore.DebugLevel)
		logger.Debug("now visible")
		_ = logger.Sync()

		data, _ := os.ReadFile(logFile)
		if !strings.Contains(string(data), "now visible") {
			t.Error("debug entry should be written after SetLevel")
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		if _, _, err := SetupLogging(LoggingConfig{Level: "LOUD"}); err == nil {
			t.Error("expected error for invalid level")
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		if _, _, err := SetupLogging(LoggingConfig{Level: "INFO", Format: "xml"}); err == nil {
			t.Error("expected error for invalid format")
		}
	})
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		" INFO ":  INFO,
		"warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.level != INFO {
		t.Errorf("Expected level INFO, got %v", logger.level)
	}
	if logger.maxDays != 7 {
		t.Errorf("Expected maxDays 7, got %d", logger.maxDays)
	}
	if logger.logDir != tmpDir {
		t.Errorf("Expected logDir %s, got %s", tmpDir, logger.logDir)
	}
}

func TestNewLogger_DefaultMaxDays(t *testing.T) {
	logger, err := NewLogger(Config{LogDir: t.TempDir(), Level: INFO})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.maxDays != 7 {
		t.Errorf("Expected default maxDays 7, got %d", logger.maxDays)
	}
}

func TestNewLogger_CreateLogDir(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs", "subdir")

	logger, err := NewLogger(Config{LogDir: logDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Error("Log directory was not created")
	}
}

func readTodayLog(t *testing.T, dir string) string {
	t.Helper()
	today := time.Now().Format("2006-01-02")
	content, err := os.ReadFile(filepath.Join(dir, "campusbot-"+today+".log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestLogger_LogLevels(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: DEBUG, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("debug message %d", 1)
	logger.Info("info message %s", "test")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	logContent := readTodayLog(t, tmpDir)
	for _, want := range []string{
		`"level":"debug"`, `"message":"debug message 1"`,
		`"level":"info"`, `"message":"info message test"`,
		`"level":"warn"`, `"message":"warn message"`,
		`"level":"error"`, `"message":"error message"`,
	} {
		if !strings.Contains(logContent, want) {
			t.Errorf("Log should contain %s, got:\n%s", want, logContent)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: WARN, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	logContent := readTodayLog(t, tmpDir)
	if strings.Contains(logContent, `"level":"debug"`) {
		t.Error("DEBUG messages should be filtered out")
	}
	if strings.Contains(logContent, `"level":"info"`) {
		t.Error("INFO messages should be filtered out")
	}
	if !strings.Contains(logContent, `"level":"warn"`) {
		t.Error("WARN messages should be logged")
	}
	if !strings.Contains(logContent, `"level":"error"`) {
		t.Error("ERROR messages should be logged")
	}
}

func TestLogger_GetWriter(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	writer := logger.GetWriter(INFO)
	n, err := writer.Write([]byte("test message via writer\n"))
	if err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if n != 24 {
		t.Errorf("Expected to write 24 bytes, wrote %d", n)
	}
	logger.Close()

	if !strings.Contains(readTodayLog(t, tmpDir), "test message via writer") {
		t.Error("writer output should reach the log file")
	}
}

func TestLogger_PrintfIsDebug(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: DEBUG, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	logger.Printf("polling %s", "updates")
	logger.Println("endpoint", "getMe")
	logger.Close()

	logContent := readTodayLog(t, tmpDir)
	if !strings.Contains(logContent, `"message":"polling updates"`) {
		t.Errorf("Printf output missing: %s", logContent)
	}
	if !strings.Contains(logContent, `"message":"endpoint getMe"`) {
		t.Errorf("Println output missing: %s", logContent)
	}
}

func TestLogger_ZerologSharesSink(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	zl := logger.Zerolog()
	zl.Info().Str("room", "!lobby:campus").Msg("joined")
	zl.Debug().Msg("below level")
	logger.Close()

	logContent := readTodayLog(t, tmpDir)
	if !strings.Contains(logContent, `"room":"!lobby:campus"`) || !strings.Contains(logContent, `"message":"joined"`) {
		t.Errorf("structured fields should be written as-is, got:\n%s", logContent)
	}
	if strings.Contains(logContent, "below level") {
		t.Error("zerolog view should keep the configured level")
	}
}

func TestPackageLevelFunctions_WithNilLogger(t *testing.T) {
	savedLogger := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = savedLogger }()

	// These should not panic when default logger is nil
	Debug("test")
	Info("test")
	Warn("test")
	Error("test")

	if err := Close(); err != nil {
		t.Errorf("Close with nil logger returned error: %v", err)
	}
}

func TestGetDefault(t *testing.T) {
	savedLogger := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = savedLogger }()

	if GetDefault() != nil {
		t.Error("GetDefault should return nil when no logger is initialized")
	}
}

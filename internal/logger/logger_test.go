package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newFileLogger(t *testing.T, opts Options) (*Logger, string) {
	t.Helper()
	opts.File = filepath.Join(t.TempDir(), "test.log")
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return l, opts.File
}

func readLog(t *testing.T, l *Logger, path string) string {
	t.Helper()
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(content)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(true, "")
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}

	if !l.DebugEnabled() {
		t.Error("Expected debug to be enabled for verbose logger")
	}
}

func TestNewLogger_WithLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	l, err := NewLogger(false, logFile)
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}
	defer l.Close()

	if l.logFile == nil {
		t.Error("Expected log file to be opened")
	}
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("Expected log file to be created")
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, err := New(Options{Encoding: "xml"}); err == nil {
		t.Error("Expected error for unknown encoding")
	}
}

func TestLogger_Info(t *testing.T) {
	l, path := newFileLogger(t, Options{})

	l.Info("Notified %s", "PROJ/repo")

	content := readLog(t, l, path)
	if !strings.Contains(content, "INFO") {
		t.Error("Expected log to contain INFO level")
	}
	if !strings.Contains(content, "Notified PROJ/repo") {
		t.Error("Expected log to contain formatted message")
	}
}

func TestLogger_Debug(t *testing.T) {
	l, path := newFileLogger(t, Options{Verbose: true})
	l.Debug("Debug message")
	if !strings.Contains(readLog(t, l, path), "Debug message") {
		t.Error("Expected debug message to be logged when verbose")
	}

	l2, path2 := newFileLogger(t, Options{})
	l2.Debug("Debug message")
	if strings.Contains(readLog(t, l2, path2), "Debug message") {
		t.Error("Expected debug message NOT to be logged at info level")
	}
}

func TestLogger_WithJSON(t *testing.T) {
	l, path := newFileLogger(t, Options{Encoding: "json"})

	l.With("repository", "PROJ/repo", "delivery", "abc").Warn("Jenkins unreachable")

	content := readLog(t, l, path)
	for _, want := range []string{`"level":"warn"`, `"repository":"PROJ/repo"`, `"delivery":"abc"`, "Jenkins unreachable"} {
		if !strings.Contains(content, want) {
			t.Errorf("Expected log to contain %s, got %s", want, content)
		}
	}
}

func TestStep_Complete(t *testing.T) {
	l, path := newFileLogger(t, Options{})

	step := l.Step("Test step")
	time.Sleep(10 * time.Millisecond)
	step.Complete()

	if !strings.Contains(readLog(t, l, path), "Test step completed") {
		t.Error("Expected step completion message")
	}
}

func TestStep_Fail(t *testing.T) {
	l, path := newFileLogger(t, Options{})

	l.Step("Test step").Fail(os.ErrNotExist)

	content := readLog(t, l, path)
	if !strings.Contains(content, "Test step failed") {
		t.Error("Expected step failure message")
	}
	if !strings.Contains(content, "ERROR") {
		t.Error("Expected ERROR level for failed step")
	}
}

func TestLogger_Close(t *testing.T) {
	l, _ := newFileLogger(t, Options{})

	if err := l.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Second Close() should not error")
	}
}

func TestGlobal(t *testing.T) {
	prev := Get()
	defer SetGlobal(prev)

	nop := NewNop()
	SetGlobal(nop)
	if Get() != nop {
		t.Error("Expected Get to return the logger passed to SetGlobal")
	}
}

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNew_WritesJSONFile(t *testing.T) {
	prev := zap.L()
	defer zap.ReplaceGlobals(prev)

	dir := filepath.Join(t.TempDir(), "logs")
	log, err := New(dir, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Infow("probe line", "k", "v")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"probe line"`) {
		t.Fatalf("log file missing entry:\n%s", data)
	}
	if zap.L() == prev {
		t.Fatal("global logger not replaced")
	}
}

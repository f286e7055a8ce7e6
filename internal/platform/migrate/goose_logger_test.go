package migrate

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestGooseLoggerWritesThroughSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	gooseSlogLogger{logger: logger}.Printf("OK   %s (%s)\n", "00001_init.sql", "12ms")

	out := buf.String()
	if !strings.Contains(out, "00001_init.sql") || !strings.Contains(out, "component=goose") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestGooseLoggerToleratesNilLogger(t *testing.T) {
	gooseSlogLogger{}.Printf("ignored %d", 1)
}

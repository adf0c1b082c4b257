package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitToLevels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	InitTo(&buf, false)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %s", zerolog.GlobalLevel())
	}
	lg := WithComponent("source")
	lg.Debug().Msg("hidden")
	lg.Info().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, "component=source") {
		t.Fatalf("component field missing: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatal("colors must be disabled for non-terminal output")
	}

	InitTo(&buf, true)
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("verbose level = %s", zerolog.GlobalLevel())
	}
}

func TestNewLoggerMulti(t *testing.T) {
	var a, b bytes.Buffer
	l := NewLogger(&a, &b)
	l.Warn().Str("job", "x").Msg("stalled")
	if !strings.Contains(a.String(), `"job":"x"`) || a.String() != b.String() {
		t.Fatalf("outputs differ: %q vs %q", a.String(), b.String())
	}
}

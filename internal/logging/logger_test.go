package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/45Drives/studio-share-sub000/internal/scrub"
)

func TestLoggerScrubsSecrets(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(ModeJSON, &buf, scrub.New("hunter22"))

	l.Info().Str("cmd", "sshpass -p hunter22 ssh box").Msg("exec")

	out := buf.String()
	if strings.Contains(out, "hunter22") {
		t.Fatalf("secret leaked into log: %s", out)
	}
	if !strings.Contains(out, scrub.Mask) {
		t.Errorf("expected mask in output: %s", out)
	}
}

func TestLoggerConsoleMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(ModeConsole, &buf, nil)
	l.Infof("PW=abc123 uploading %s", "a.mov")

	out := buf.String()
	if strings.Contains(out, "abc123") {
		t.Errorf("pattern not scrubbed: %s", out)
	}
	if !strings.Contains(out, "uploading a.mov") {
		t.Errorf("message missing: %s", out)
	}
}

func TestChildKeepsScrubber(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(ModeJSON, &buf, scrub.New("tok-xyz"))
	c := l.Child("id", "t1")
	c.Info().Msg("value tok-xyz")

	out := buf.String()
	if !strings.Contains(out, `"id":"t1"`) || strings.Contains(out, "tok-xyz") {
		t.Errorf("unexpected output: %s", out)
	}
	if c.Scrubber() != l.Scrubber() {
		t.Error("child should share the scrubber")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Error("debug")
	}
	if ParseLevel("bogus") != zerolog.InfoLevel {
		t.Error("fallback")
	}
	if ParseLevel("") != zerolog.InfoLevel {
		t.Error("empty")
	}
}

func TestNop(t *testing.T) {
	Nop().Info().Msg("discarded")
}

func TestSetOutputKeepsChildFields(t *testing.T) {
	var first, second bytes.Buffer
	c := NewLogger(ModeJSON, &first, nil).Child("id", "t9")
	c.SetOutput(&second)
	c.Info().Msg("moved")

	if first.Len() != 0 {
		t.Errorf("old output written: %s", first.String())
	}
	if !strings.Contains(second.String(), `"id":"t9"`) {
		t.Errorf("field lost after SetOutput: %s", second.String())
	}
}

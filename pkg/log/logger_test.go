package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, level Level) Logger {
	return NewLogger(WithLevel(level), WithOutput(NewWriterOutput(buf)))
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, DebugLevel).With(Component("store"))
	l.Info("claimed", FeatureID(7), Str("backend", "sqlite"))

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if got["msg"] != "claimed" || got["level"] != "INFO" {
		t.Fatalf("unexpected entry: %v", got)
	}
	if got["component"] != "store" || got["backend"] != "sqlite" {
		t.Fatalf("missing fields: %v", got)
	}
	if got["feature_id"] != float64(7) {
		t.Fatalf("feature_id: %v", got["feature_id"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, WarnLevel)
	l.Debug("nope")
	l.Info("nope")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing, got %q", buf.String())
	}
	l.Warn("yes")
	if !strings.Contains(buf.String(), `"yes"`) {
		t.Fatalf("warn not written: %q", buf.String())
	}

	l.SetLevel(ErrorLevel)
	buf.Reset()
	l.Warn("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected warn to be dropped after SetLevel")
	}
}

func TestWithErrorAndContext(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, InfoLevel)
	ctx := ContextWith(context.Background(), OperationKey, "skip")
	l.WithContext(ctx).WithError(errors.New("boom")).Error("failed")

	out := buf.String()
	if !strings.Contains(out, `"operation":"skip"`) || !strings.Contains(out, `"error":"boom"`) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestTextFormatterSortsFields(t *testing.T) {
	f := &TextFormatter{DisableTimestamp: true}
	b, err := f.Format(&Entry{Level: InfoLevel, Message: "hi", Fields: Fields{"b": 2, "a": 1}})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if got := string(b); got != "INFO  hi a=1 b=2\n" {
		t.Fatalf("got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": DebugLevel, "": InfoLevel, "WARNING": WarnLevel, "error": ErrorLevel}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	l := NewNopLogger()
	l.Error("ignored")
	if l.GetLevel() <= FatalLevel {
		t.Fatalf("nop logger should be above fatal")
	}
}

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newBufferLogger(level Level, f Formatter) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(WithLevel(level), WithFormatter(f), WithOutput(NewWriterOutput(&buf))), &buf
}

func TestTextFormatterFieldsSorted(t *testing.T) {
	l, buf := newBufferLogger(DebugLevel, &TextFormatter{DisableTimestamp: true})
	l.With(Component("queue")).Info("segment rolled", Uint64("base", 42), Str("path", "a b"))

	require.Equal(t, "INFO  segment rolled base=42 component=queue path=\"a b\"\n", buf.String())
}

func TestLevelGate(t *testing.T) {
	l, buf := newBufferLogger(WarnLevel, &TextFormatter{DisableTimestamp: true})
	l.Info("hidden")
	l.Warn("shown")
	require.Equal(t, "WARN  shown\n", buf.String())

	child := l.WithComponent("child")
	child.SetLevel(DebugLevel)
	require.Equal(t, DebugLevel, l.GetLevel(), "children share the level")
	l.Debug("now visible")
	require.Contains(t, buf.String(), "now visible")
}

func TestJSONFormatterWithError(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &JSONFormatter{})
	l.WithError(errors.New("boom")).Error("append failed", Int("n", 3))

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "ERROR", m["level"])
	require.Equal(t, "append failed", m["msg"])
	require.Equal(t, "boom", m["error"])
	require.EqualValues(t, 3, m["n"])
}

func TestRedactedKeys(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(
		WithFormatter(&TextFormatter{DisableTimestamp: true}),
		WithOutput(NewWriterOutput(&buf)),
		WithRedactedKeys("secret"),
	)
	l.Info("login", Str("secret", "hunter2"), Str("user", "ann"))
	require.NotContains(t, buf.String(), "hunter2")
	require.Contains(t, buf.String(), "user=ann")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": DebugLevel, "INFO": InfoLevel, "warning": WarnLevel, "error": ErrorLevel, "": InfoLevel} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	_, err := ApplyConfig(Config{Level: "info", Format: "xml"})
	require.Error(t, err)

	l, err := ApplyConfig(Config{Level: "debug", Format: "json", Quiet: true})
	require.NoError(t, err)
	require.Equal(t, DebugLevel, l.GetLevel())
}

func TestToStdLogger(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	ToStdLogger(l, WarnLevel).Println("from pebble")
	require.True(t, strings.HasPrefix(buf.String(), "WARN  from pebble"))
}

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, tag string) (*Logger, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	var out bytes.Buffer
	l := &Logger{fallback: unpinned, pinned: unpinned, sink: &sink{out: &out}}
	t.Cleanup(func() { require.NoError(t, Configure("")) })
	return l.WithTag(tag), &out
}

func TestLogFormat(t *testing.T) {
	log, out := newTestLogger(t, "relay")

	log.Warn("attach failed: %d", 7)

	line := out.String()
	assert.True(t, strings.HasSuffix(line, "attach failed: 7\n"), line)
	assert.Contains(t, line, " W/relay[logger_test.go:")
}

func TestLevelFiltering(t *testing.T) {
	log, out := newTestLogger(t, "relay")

	log.Debug("hidden")
	assert.Empty(t, out.String())

	log.SetLevel(Debug)
	log.Debug("shown")
	assert.Contains(t, out.String(), "shown")
}

func TestConfigureDirectives(t *testing.T) {
	log, out := newTestLogger(t, "loopback")
	other := log.WithTag("relay")

	require.NoError(t, Configure("warn,loopback=debug"))
	assert.Equal(t, Debug, log.Level())
	assert.Equal(t, Warn, other.Level())

	other.Info("dropped")
	log.Debug("kept")
	assert.NotContains(t, out.String(), "dropped")
	assert.Contains(t, out.String(), "kept")
}

func TestConfigureRejectsBadLevels(t *testing.T) {
	log, _ := newTestLogger(t, "relay")

	err := Configure("relay=loud,debug,x=42")
	require.ErrorIs(t, err, ErrBadLevel)
	assert.Contains(t, err.Error(), "relay=loud")
	assert.Contains(t, err.Error(), "x=42")
	assert.Equal(t, Debug, log.Level())
}

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]Level{"e": Error, "WARN": Warn, "i": Info, "debug": Debug, "trace": MaxLevel, "5": 5} {
		got, err := parseLevel(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
	for _, s := range []string{"-3", "10", "loud", ""} {
		_, err := parseLevel(s)
		assert.ErrorIs(t, err, ErrBadLevel, s)
	}
}

func TestLevelNames(t *testing.T) {
	for l, want := range map[Level]string{Error: "Error E", Warn: "Warn W", Info: "Info I", Debug: "Debug D", 7: "7 7"} {
		assert.Equal(t, want, l.String()+" "+string(l.letter()))
	}
}

func TestStdLogger(t *testing.T) {
	log, out := newTestLogger(t, "http")

	std := log.StdLogger(Warn)
	std.Printf("accept error: %s", "boom")

	line := out.String()
	assert.True(t, strings.HasSuffix(line, "accept error: boom\n"), line)
	assert.Contains(t, line, " W/http[")
	assert.Equal(t, 1, strings.Count(line, "\n"))

	out.Reset()
	log.StdLogger(Debug).Print("hidden")
	assert.Empty(t, out.String())
}

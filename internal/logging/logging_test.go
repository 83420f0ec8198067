package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	prevTerminal := isTerminal
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
		isTerminal = prevTerminal
	})
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &event))
	return event
}

func TestInitJSONWithComponent(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	Init(Config{Format: "json", Level: "debug", Component: "pulse-snmp", Output: &buf})

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	log.Debug().Str("profile", "lab").Msg("probe")

	event := decodeLine(t, &buf)
	assert.Equal(t, "pulse-snmp", event["component"])
	assert.Equal(t, "lab", event["profile"])
	assert.Equal(t, "debug", event["level"])
}

func TestInitFallsBackOnInvalidSettings(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	Init(Config{Format: "xml", Level: "loud", Output: &buf})

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	log.Info().Msg("still json")
	assert.Equal(t, "still json", decodeLine(t, &buf)["message"])
}

func TestWriterSelection(t *testing.T) {
	restoreGlobals(t)

	tests := []struct {
		name     string
		format   string
		terminal bool
		console  bool
	}{
		{name: "console", format: "console", console: true},
		{name: "json", format: "json", terminal: true},
		{name: "auto on terminal", format: "auto", terminal: true, console: true},
		{name: "auto off terminal", format: "auto"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isTerminal = func(io.Writer) bool { return tt.terminal }
			_, isConsole := writerFor(tt.format, io.Discard).(zerolog.ConsoleWriter)
			assert.Equal(t, tt.console, isConsole)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{input: "", want: zerolog.InfoLevel},
		{input: "DEBUG", want: zerolog.DebugLevel},
		{input: "trace", want: zerolog.TraceLevel},
		{input: "warning", want: zerolog.WarnLevel},
		{input: "error", want: zerolog.ErrorLevel},
		{input: "disabled", want: zerolog.Disabled},
		{input: "bogus", want: zerolog.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]string{"": "auto", " JSON ": "json", "console": "console", "auto": "auto"} {
		got, err := ParseFormat(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	require.Error(t, err)
}

func TestWithRequestID(t *testing.T) {
	ctx, id := WithRequestID(context.Background(), "  abc ")
	assert.Equal(t, "abc", id)
	assert.Equal(t, "abc", RequestID(ctx))

	//nolint:staticcheck // nil context is handled explicitly
	ctx, generated := WithRequestID(nil, "")
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, RequestID(ctx))

	assert.Empty(t, RequestID(context.Background()))
}

func TestFromContextTagsRequestID(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	ctx, _ := WithRequestID(context.Background(), "req-1")
	logger := FromContext(ctx)
	logger.Info().Msg("hello")
	assert.Equal(t, "req-1", decodeLine(t, &buf)["request_id"])

	buf.Reset()
	logger = FromContext(context.Background())
	logger.Info().Msg("plain")
	_, tagged := decodeLine(t, &buf)["request_id"]
	assert.False(t, tagged)
}

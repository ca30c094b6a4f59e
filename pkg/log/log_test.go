package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromContext_ReturnsAttachedEntry(t *testing.T) {
	var buf bytes.Buffer

	lo := NewLogger(&buf)
	lo.SetLevel(InfoLevel)

	ctx := NewContext(context.Background(), lo, Fields{"request_id": "req-123"})

	FromContext(ctx).Info("handling request")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "req-123", line["request_id"])
	require.Equal(t, "handling request", line["msg"])
}

func TestFromContext_FallsBackWithoutEntry(t *testing.T) {
	lo := FromContext(context.Background())
	require.NotNil(t, lo)

	// must not panic without an attached entry
	lo.Debug("nothing attached")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"", ErrorLevel},
		{"nonsense", ErrorLevel},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, ParseLevel(tc.in), "level %q", tc.in)
	}
}

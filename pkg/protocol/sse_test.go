package protocol_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omochice/wsbridge/pkg/protocol"
)

func TestWriteEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			name:    "single line",
			payload: `{"id":1}`,
			want:    "data: {\"id\":1}\n\n",
		},
		{
			name:    "empty payload",
			payload: "",
			want:    "data: \n\n",
		},
		{
			name:    "multi line",
			payload: "first\nsecond",
			want:    "data: first\ndata: second\n\n",
		},
		{
			name:    "crlf line endings",
			payload: "first\r\nsecond\r\n",
			want:    "data: first\ndata: second\ndata: \n\n",
		},
		{
			name:    "bare cr",
			payload: "a\rb",
			want:    "data: a\ndata: b\n\n",
		},
		{
			name:    "mixed line endings",
			payload: "a\r\rb\nc",
			want:    "data: a\ndata: \ndata: b\ndata: c\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, protocol.WriteEvent(&buf, []byte(tt.payload)))
			require.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriteReserved(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, protocol.WriteReserved(&buf, protocol.EventConnected))
	require.NoError(t, protocol.WriteReserved(&buf, protocol.EventHeartbeat))
	require.Equal(t, "data: connected\n\ndata: heartbeat\n\n", buf.String())
}

package protocol_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/omochice/wsbridge/pkg/protocol"
)

func TestStampCorrelation(t *testing.T) {
	now := time.Unix(1700000000, 250_000_000)

	out, err := protocol.StampCorrelation([]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call"}`), protocol.DefaultCorrelationField, now)
	require.NoError(t, err)

	require.Equal(t, "tools/call", gjson.GetBytes(out, "method").String())
	require.Equal(t, int64(7), gjson.GetBytes(out, "id").Int())
	require.InDelta(t, 1700000000.25, gjson.GetBytes(out, "_t_recv").Float(), 1e-6)
}

func TestStampCorrelation_FieldWithDot(t *testing.T) {
	out, err := protocol.StampCorrelation([]byte(`{}`), "meta.t", time.Unix(10, 0))
	require.NoError(t, err)
	require.Equal(t, `{"meta.t":10}`, string(out))
}

func TestStampCorrelation_RejectsNonObject(t *testing.T) {
	for _, line := range []string{`[1,2]`, `"text"`, `not json`, `42`} {
		_, err := protocol.StampCorrelation([]byte(line), "_t_recv", time.Now())
		require.ErrorIs(t, err, protocol.ErrNotObject, line)
	}
}

func TestRequestID(t *testing.T) {
	id, ok := protocol.RequestID([]byte(`{"id":"abc"}`))
	require.True(t, ok)
	require.Equal(t, `"abc"`, id)

	id, ok = protocol.RequestID([]byte(`{"id":12}`))
	require.True(t, ok)
	require.Equal(t, "12", id)

	_, ok = protocol.RequestID([]byte(`{"method":"notify"}`))
	require.False(t, ok)

	_, ok = protocol.RequestID([]byte(`{"id":null}`))
	require.False(t, ok)
}

func TestInspectReply(t *testing.T) {
	reply, ok := protocol.InspectReply([]byte(`{"id":3,"result":{},"_t_recv":1700000000.5}`), "_t_recv")
	require.True(t, ok)
	require.Equal(t, "3", reply.ID)
	require.InDelta(t, 1700000000.5, protocol.UnixSeconds(reply.Stamp), 1e-6)

	reply, ok = protocol.InspectReply([]byte(`{"id":3,"result":null}`), "_t_recv")
	require.True(t, ok)
	require.True(t, reply.Stamp.IsZero())

	_, ok = protocol.InspectReply([]byte(`{"id":3,"error":{}}`), "_t_recv")
	require.False(t, ok)

	_, ok = protocol.InspectReply([]byte(`plain text`), "_t_recv")
	require.False(t, ok)
}

func TestEchoCorrelation(t *testing.T) {
	out, err := protocol.EchoCorrelation([]byte(`{"id":1,"result":{}}`), []byte(`{"id":1,"_t_recv":12.5}`), "_t_recv")
	require.NoError(t, err)
	require.Equal(t, 12.5, gjson.GetBytes(out, "_t_recv").Float())

	out, err = protocol.EchoCorrelation([]byte(`{"id":1}`), []byte(`{"id":1}`), "_t_recv")
	require.NoError(t, err)
	require.Equal(t, `{"id":1}`, string(out))
}

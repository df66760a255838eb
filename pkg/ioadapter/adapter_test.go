package ioadapter

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func dialListener(t *testing.T, a *Adapter) (net.Conn, error) {
	t.Helper()
	return net.Dial("tcp", a.Addr().String())
}

func TestAnalysisOnlyBroadcastDrainsFromOutbound(t *testing.T) {
	a, err := New("test", "", true, nil)
	require.NoError(t, err)

	a.Broadcast([]byte("hello"))

	select {
	case got := <-a.Outbound():
		require.Equal(t, []byte("hello"), got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}
}

func TestInjectDeliversToInbound(t *testing.T) {
	a, err := New("test", "", true, nil)
	require.NoError(t, err)

	a.Inject([]byte("frame"))

	select {
	case got := <-a.Inbound():
		require.Equal(t, []byte("frame"), got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}
}

func TestTCPRoundTrip(t *testing.T) {
	a, err := New("test", "127.0.0.1:0", false, nil)
	require.NoError(t, err)
	defer a.Close()

	conn, err := dialListener(t, a)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, writeFrame(conn, []byte("ping")))

	select {
	case got := <-a.Inbound():
		require.Equal(t, []byte("ping"), got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}

	a.Broadcast([]byte("pong"))
	got, err := readFrame(conn)
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), got)
}

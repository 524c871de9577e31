package udpradio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/testlog"
)

func TestTransmitReceiveRoundTrip(t *testing.T) {
	a, err := Listen("127.0.0.1:0", testlog.New(t))
	require.NoError(t, err)
	defer a.conn.Close()

	b, err := Listen("127.0.0.1:0", testlog.New(t))
	require.NoError(t, err)
	defer b.conn.Close()

	require.NoError(t, a.AddPeer(Peer{NodeID: "b", Addr: b.conn.LocalAddr().String()}))

	payload := []byte("hello over the air")
	require.NoError(t, a.Transmit(payload, frame.NodeID("b")))

	got, rssi, snr, err := b.Receive()
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.Zero(t, rssi)
	require.Zero(t, snr)
}

func TestTransmitUnknownTargetFails(t *testing.T) {
	a, err := Listen("127.0.0.1:0", testlog.New(t))
	require.NoError(t, err)
	defer a.conn.Close()

	err = a.Transmit([]byte("x"), frame.NodeID("nobody"))
	require.Error(t, err)
}

func TestTransmitOversizedFrameRejected(t *testing.T) {
	a, err := Listen("127.0.0.1:0", testlog.New(t))
	require.NoError(t, err)
	defer a.conn.Close()
	require.NoError(t, a.AddPeer(Peer{NodeID: "b", Addr: "127.0.0.1:9"}))

	oversized := make([]byte, maxDatagram+1)
	err = a.Transmit(oversized, frame.NodeID("b"))
	require.Error(t, err)
}

func TestBroadcastFansOutToAllPeers(t *testing.T) {
	a, err := Listen("127.0.0.1:0", testlog.New(t))
	require.NoError(t, err)
	defer a.conn.Close()

	b, err := Listen("127.0.0.1:0", testlog.New(t))
	require.NoError(t, err)
	defer b.conn.Close()

	c, err := Listen("127.0.0.1:0", testlog.New(t))
	require.NoError(t, err)
	defer c.conn.Close()

	require.NoError(t, a.AddPeer(Peer{NodeID: "b", Addr: b.conn.LocalAddr().String()}))
	require.NoError(t, a.AddPeer(Peer{NodeID: "c", Addr: c.conn.LocalAddr().String()}))

	require.NoError(t, a.Transmit([]byte("beacon"), frame.BroadcastID))

	gotB, _, _, err := b.Receive()
	require.NoError(t, err)
	require.Equal(t, []byte("beacon"), gotB)

	gotC, _, _, err := c.Receive()
	require.NoError(t, err)
	require.Equal(t, []byte("beacon"), gotC)
}

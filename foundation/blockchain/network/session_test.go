package network_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidechain/tide/foundation/blockchain/network"
)

// pipePair wires two sessions over an in-memory connection.
func pipePair(t *testing.T) (*network.Session, *network.Session) {
	t.Helper()

	connA, connB := net.Pipe()
	a := network.NewSession(connA, nil)
	b := network.NewSession(connB, nil)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestFraming(t *testing.T) {
	a, b := pipePair(t)

	frames := make(chan []byte, 16)
	b.Run(func(payload []byte) { frames <- payload }, nil)
	a.Run(func(payload []byte) {}, nil)

	payload := []byte{0x01, 0xaa, 0xbb, 0xcc}
	require.NoError(t, a.Send(payload))

	select {
	case got := <-frames:
		require.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("frame never arrived")
	}
}

func TestSendOrderingIsFIFO(t *testing.T) {
	a, b := pipePair(t)

	frames := make(chan []byte, 64)
	b.Run(func(payload []byte) { frames <- payload }, nil)
	a.Run(func(payload []byte) {}, nil)

	const n = 32
	for i := 0; i < n; i++ {
		require.NoError(t, a.Send([]byte{byte(i)}))
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-frames:
			require.Equal(t, byte(i), got[0])
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d never arrived", i)
		}
	}
}

func TestOversizedPayloadRefused(t *testing.T) {
	a, _ := pipePair(t)
	a.Run(func(payload []byte) {}, nil)

	err := a.Send(make([]byte, network.MaxMessageSize+1))
	require.Error(t, err)
}

func TestCloseSignalsOnClose(t *testing.T) {
	a, b := pipePair(t)

	closed := make(chan struct{})
	b.Run(func(payload []byte) {}, func() { close(closed) })
	a.Run(func(payload []byte) {}, nil)

	a.Close()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close was never observed")
	}

	require.ErrorIs(t, b.Send([]byte{1}), network.ErrSessionClosed)
}

func TestParseEndpoint(t *testing.T) {
	ep, err := network.ParseEndpoint("10.0.0.7:9080")
	require.NoError(t, err)
	require.Equal(t, network.Endpoint{Host: "10.0.0.7", Port: 9080}, ep)
	require.Equal(t, "10.0.0.7:9080", ep.String())

	_, err = network.ParseEndpoint("no-port")
	require.Error(t, err)

	_, err = network.ParseEndpoint("host:99999")
	require.Error(t, err)
}

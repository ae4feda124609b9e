package reliant_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ventosilenzioso/reliant"
)

// bindLoopback binds two sockets on 127.0.0.1 for a client/server pair,
// cleaning both up when the test ends.
func bindLoopback(t *testing.T, cfg reliant.Config) (client, server *reliant.Socket) {
	t.Helper()
	client, err := reliant.Bind("127.0.0.1:0", cfg)
	require.NoError(t, err)
	server, err = reliant.Bind("127.0.0.1:0", cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func pollUntil(t *testing.T, sockets []*reliant.Socket, deadline time.Duration, done func() bool) {
	t.Helper()
	start := time.Now()
	for time.Since(start) < deadline {
		now := time.Now()
		for _, s := range sockets {
			s.ManualPoll(now)
		}
		if done() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBasicUnreliableNoConnectNeeded(t *testing.T) {
	cfg := reliant.Default()
	client, server := bindLoopback(t, cfg)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	for i := 0; i < 3; i++ {
		require.NoError(t, client.Send(server.LocalAddr(), reliant.Packet{
			Payload:  payload,
			Delivery: reliant.Unreliable,
			Ordering: reliant.OrderingNone,
		}))
	}

	var received [][]byte
	connects := 0
	pollUntil(t, []*reliant.Socket{client, server}, time.Second, func() bool {
		for {
			ev, ok := server.Recv()
			if !ok {
				break
			}
			if ev.Kind == reliant.EventConnect {
				connects++
				require.Empty(t, received, "Connect event must arrive before the first packet")
			}
			if ev.Kind == reliant.EventPacket {
				received = append(received, ev.Payload)
			}
		}
		return len(received) == 3
	})

	require.Equal(t, 1, connects, "first contact emits Connect itself; the client needs no handshake before sending")

	for _, got := range received {
		require.Equal(t, payload, got)
	}
}

func TestConnectEventPrecedesFirstReliablePacket(t *testing.T) {
	cfg := reliant.Default()
	client, server := bindLoopback(t, cfg)

	require.NoError(t, client.Send(server.LocalAddr(), reliant.Packet{
		Payload:  []byte{0, 1, 2},
		Delivery: reliant.Reliable,
		Ordering: reliant.OrderingNone,
	}))

	var kinds []reliant.EventKind
	var payload []byte
	pollUntil(t, []*reliant.Socket{client, server}, time.Second, func() bool {
		for {
			ev, ok := server.Recv()
			if !ok {
				break
			}
			kinds = append(kinds, ev.Kind)
			if ev.Kind == reliant.EventPacket {
				payload = ev.Payload
			}
		}
		return len(kinds) >= 2
	})

	require.Equal(t, []reliant.EventKind{reliant.EventConnect, reliant.EventPacket}, kinds)
	require.Equal(t, []byte{0, 1, 2}, payload)
}

func TestFragmentationRoundTripOverLoopback(t *testing.T) {
	cfg := reliant.Default()
	cfg.FragmentSize = 10
	client, server := bindLoopback(t, cfg)

	want := []byte("Fragmented string")
	require.NoError(t, client.Send(server.LocalAddr(), reliant.Packet{
		Payload:  want,
		Delivery: reliant.Reliable,
		Ordering: reliant.Ordered,
	}))

	var got []byte
	pollUntil(t, []*reliant.Socket{client, server}, 2*time.Second, func() bool {
		for {
			ev, ok := server.Recv()
			if !ok {
				break
			}
			if ev.Kind == reliant.EventPacket {
				got = ev.Payload
			}
		}
		return got != nil
	})
	require.Equal(t, want, got)

	require.NoError(t, client.Send(server.LocalAddr(), reliant.Packet{
		Payload:  []byte("small"),
		Delivery: reliant.Reliable,
		Ordering: reliant.Ordered,
	}))
	var second []byte
	pollUntil(t, []*reliant.Socket{client, server}, time.Second, func() bool {
		for {
			ev, ok := server.Recv()
			if !ok {
				break
			}
			if ev.Kind == reliant.EventPacket {
				second = ev.Payload
			}
		}
		return second != nil
	})
	require.Equal(t, []byte("small"), second)
}

func TestDoSResistanceEngineCountStaysZeroOverLoopback(t *testing.T) {
	cfg := reliant.Default()
	client, server := bindLoopback(t, cfg)

	for i := 0; i < 3; i++ {
		require.NoError(t, client.Send(server.LocalAddr(), reliant.Packet{
			Payload:  []byte{byte(i)},
			Delivery: reliant.Unreliable,
			Ordering: reliant.OrderingNone,
		}))
	}

	packets := 0
	connects := 0
	pollUntil(t, []*reliant.Socket{client, server}, time.Second, func() bool {
		for {
			ev, ok := server.Recv()
			if !ok {
				break
			}
			switch ev.Kind {
			case reliant.EventPacket:
				packets++
			case reliant.EventConnect:
				connects++
			}
		}
		return packets == 3
	})

	require.Equal(t, 1, connects)
	require.Equal(t, 3, packets)
	require.Equal(t, 0, server.EngineCount(), "unsolicited traffic must not grow registered connection state")
}

func TestStatsReflectsRegisteredConnection(t *testing.T) {
	cfg := reliant.Default()
	client, server := bindLoopback(t, cfg)

	require.NoError(t, client.Send(server.LocalAddr(), reliant.Packet{
		Payload:  []byte("hello"),
		Delivery: reliant.Reliable,
		Ordering: reliant.OrderingNone,
	}))

	pollUntil(t, []*reliant.Socket{client, server}, time.Second, func() bool {
		return len(client.Stats()) == 1
	})

	stats := client.Stats()
	require.Len(t, stats, 1)
	require.Equal(t, server.LocalAddr().String(), stats[0].Addr)
}

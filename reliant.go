// Package reliant is the library surface of a semi-reliable UDP
// transport: reliable/unreliable, ordered/sequenced/unordered delivery
// over plain UDP, with fragmentation, RTT estimation and idle-connection
// reaping handled per remote address by the connection registry.
package reliant

import (
	"net"
	"time"

	"github.com/ventosilenzioso/reliant/config"
	"github.com/ventosilenzioso/reliant/internal/engine"
	"github.com/ventosilenzioso/reliant/internal/protocol"
	"github.com/ventosilenzioso/reliant/internal/registry"
	"github.com/ventosilenzioso/reliant/metrics"
	"github.com/ventosilenzioso/reliant/socket"
)

// Re-export the wire-level enums so callers never need to import
// internal/protocol directly.
type (
	DeliveryGuarantee = protocol.DeliveryGuarantee
	OrderingGuarantee = protocol.OrderingGuarantee
)

const (
	Unreliable = protocol.Unreliable
	Reliable   = protocol.Reliable

	OrderingNone = protocol.OrderingNone
	Ordered      = protocol.Ordered
	Sequenced    = protocol.Sequenced
)

// Config is the tunable surface described in the configuration table;
// Default returns the documented defaults and Load overlays a YAML file
// on top of them.
type Config = config.Config

// Default returns the library's documented configuration defaults.
func Default() Config { return config.Default() }

// Load reads a YAML config file, overlaying it onto Default(). A
// missing file is not an error; it simply yields Default().
func Load(path string) (Config, error) { return config.Load(path) }

// Packet is one application payload submitted for sending or received
// from the peer, tagged with the guarantees it was sent (or must be
// sent) under.
type Packet struct {
	Payload  []byte
	Delivery DeliveryGuarantee
	Ordering OrderingGuarantee
	StreamID uint8
}

// EventKind distinguishes the variants of Event.
type EventKind int

const (
	EventPacket     EventKind = EventKind(registry.EventPacket)
	EventConnect    EventKind = EventKind(registry.EventConnect)
	EventTimeout    EventKind = EventKind(registry.EventTimeout)
	EventDisconnect EventKind = EventKind(registry.EventDisconnect)
)

// Event is one item surfaced to the user by Recv.
type Event struct {
	Kind    EventKind
	Addr    net.Addr
	Payload []byte
}

// Socket is a bound, running transport endpoint: the facade over the
// connection registry and the tuned UDP socket beneath it.
type Socket struct {
	reg *registry.Registry
	sck *socket.UDPSocket
}

// Bind opens addr (host:port) and returns a Socket ready to Send,
// Recv and ManualPoll/StartPolling.
func Bind(addr string, cfg Config) (*Socket, error) {
	sck, err := socket.Bind(addr, cfg)
	if err != nil {
		return nil, err
	}
	reg := registry.New(cfg, sck)
	return &Socket{reg: reg, sck: sck}, nil
}

// LocalAddr returns the bound address.
func (s *Socket) LocalAddr() net.Addr { return s.reg.LocalAddr() }

// Send enqueues pkt for addr, non-blocking.
func (s *Socket) Send(addr net.Addr, pkt Packet) error {
	return s.reg.Send(addr, engine.Outgoing{
		Payload:    pkt.Payload,
		Delivery:   pkt.Delivery,
		Ordering:   pkt.Ordering,
		StreamID:   pkt.StreamID,
		PacketType: protocol.PacketTypePacket,
	})
}

// Recv dequeues one event, non-blocking. ok is false if none is ready.
func (s *Socket) Recv() (Event, bool) {
	ev, ok := s.reg.Recv()
	if !ok {
		return Event{}, false
	}
	return Event{Kind: EventKind(ev.Kind), Addr: ev.Addr, Payload: ev.Payload}, true
}

// ManualPoll drives exactly one iteration of the poll loop.
func (s *Socket) ManualPoll(now time.Time) { s.reg.ManualPoll(now) }

// StartPolling blocks, driving the poll loop at the configured interval
// until stop is closed.
func (s *Socket) StartPolling(stop <-chan struct{}) { s.reg.StartPolling(stop) }

// Close stops accepting new sends and releases the underlying socket.
func (s *Socket) Close() error {
	s.reg.Close()
	return s.sck.Close()
}

// EngineCount reports the number of registered (non-transient)
// connections, mainly useful for tests and metrics wiring.
func (s *Socket) EngineCount() int { return s.reg.EngineCount() }

// Stats returns a per-connection readout (RTT, quality, packets in
// flight, reassembly occupancy) of every registered connection, meant
// to be fed into a metrics.ConnectionCollector on whatever schedule the
// caller scrapes at.
func (s *Socket) Stats() []metrics.ConnectionStats {
	snap := s.reg.Snapshot()
	out := make([]metrics.ConnectionStats, 0, len(snap))
	for _, c := range snap {
		out = append(out, metrics.ConnectionStats{
			Addr:              c.Addr.String(),
			RTTMs:             float64(c.RTTMs),
			Quality:           c.Quality,
			PacketsInFlight:   float64(c.PacketsInFlight),
			ReassemblyEntries: float64(c.ReassemblyEntries),
		})
	}
	return out
}

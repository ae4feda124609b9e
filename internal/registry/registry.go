// Package registry implements the connection registry and poll loop:
// the single-threaded cooperative driver that owns every per-peer
// ReliabilityEngine, drains the socket, dispatches outbound sends, ticks
// engines for retransmits/heartbeats, and reaps idle or overflowing
// connections.
package registry

import (
	"errors"
	"net"
	"time"

	"github.com/ventosilenzioso/reliant/config"
	"github.com/ventosilenzioso/reliant/internal/engine"
	"github.com/ventosilenzioso/reliant/internal/protocol"
	"github.com/ventosilenzioso/reliant/logger"
)

// Socket is the minimal boundary the registry drives. *net.UDPConn
// satisfies it directly; socket.UDPSocket wraps one with tuned socket
// options (see the socket package), and tests supply a fake.
type Socket interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	LocalAddr() net.Addr
}

// EventKind distinguishes the variants of Event.
type EventKind int

const (
	EventPacket EventKind = iota
	EventConnect
	EventTimeout
	EventDisconnect // reserved, never emitted by this build
)

// Event is one item surfaced to the user through Recv.
type Event struct {
	Kind    EventKind
	Addr    net.Addr
	Payload []byte
}

// SendRequest is one user send submitted through Send.
type SendRequest struct {
	Addr   net.Addr
	Packet engine.Outgoing
}

// ErrQueueClosed is returned by Send once the registry has stopped
// accepting outbound traffic.
var ErrQueueClosed = errors.New("registry: outbound queue closed")

// Registry owns every tracked peer's ReliabilityEngine and drives the
// manual_poll / start_polling loop described by the poll-loop component.
type Registry struct {
	cfg    config.Config
	socket Socket

	engines   map[string]*engine.Engine
	addrs     map[string]net.Addr
	transient map[string]*engine.Engine // first-contact engines, not yet promoted (DoS mitigation)

	events chan Event
	sends  chan SendRequest
	closed bool

	readBuf []byte
}

// New constructs a Registry bound to socket, sized per cfg's queue
// capacities.
func New(cfg config.Config, socket Socket) *Registry {
	return &Registry{
		cfg:       cfg,
		socket:    socket,
		engines:   make(map[string]*engine.Engine),
		addrs:     make(map[string]net.Addr),
		transient: make(map[string]*engine.Engine),
		events:    make(chan Event, cfg.SocketEventBufferSize),
		sends:     make(chan SendRequest, cfg.SocketEventBufferSize),
		readBuf:   make([]byte, cfg.ReceiveBufferMaxSize),
	}
}

// LocalAddr returns the bound socket's local address.
func (r *Registry) LocalAddr() net.Addr { return r.socket.LocalAddr() }

// EngineCount returns the number of registered (non-transient)
// connections — the figure the DoS-resistance guarantee is stated
// against.
func (r *Registry) EngineCount() int { return len(r.engines) }

// ConnectionSnapshot is one registered connection's readout at an
// instant in time, for consumption by a metrics collector.
type ConnectionSnapshot struct {
	Addr              net.Addr
	RTTMs             float32
	Quality           string
	PacketsInFlight   uint16
	ReassemblyEntries int
}

// Snapshot returns a readout of every registered (non-transient)
// connection, for a caller to feed into a metrics collector on its own
// schedule.
func (r *Registry) Snapshot() []ConnectionSnapshot {
	out := make([]ConnectionSnapshot, 0, len(r.engines))
	for key, eng := range r.engines {
		out = append(out, ConnectionSnapshot{
			Addr:              r.addrs[key],
			RTTMs:             eng.RTT(),
			Quality:           eng.Quality().String(),
			PacketsInFlight:   eng.PacketsInFlight(),
			ReassemblyEntries: eng.ReassemblyOccupancy(),
		})
	}
	return out
}

// Send enqueues a user packet for addr, non-blocking. It returns
// ErrQueueClosed once the registry has been closed.
func (r *Registry) Send(addr net.Addr, pkt engine.Outgoing) error {
	if r.closed {
		return ErrQueueClosed
	}
	select {
	case r.sends <- SendRequest{Addr: addr, Packet: pkt}:
		return nil
	default:
		return errors.New("registry: outbound queue full")
	}
}

// Recv dequeues one event, non-blocking. ok is false if none is ready.
func (r *Registry) Recv() (Event, bool) {
	select {
	case ev := <-r.events:
		return ev, true
	default:
		return Event{}, false
	}
}

// Close stops Send from accepting further outbound traffic. It does not
// close the underlying socket.
func (r *Registry) Close() {
	r.closed = true
}

func (r *Registry) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		logger.Warn("event queue full, dropping event", "kind", ev.Kind, "addr", ev.Addr)
	}
}

// ManualPoll drives exactly one iteration of the poll loop: drain the
// socket, dispatch queued sends, tick every engine, then reap idle or
// overflowing connections.
func (r *Registry) ManualPoll(now time.Time) {
	r.drainSocket(now)
	r.drainSends(now)
	r.tickEngines(now)
	r.reap(now)
}

// StartPolling blocks, calling ManualPoll at the configured interval
// until stop is closed.
func (r *Registry) StartPolling(stop <-chan struct{}) {
	interval := time.Millisecond
	if r.cfg.SocketPollingTimeout != nil {
		interval = *r.cfg.SocketPollingTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.ManualPoll(time.Now())
		}
	}
}

func (r *Registry) drainSocket(now time.Time) {
	for {
		n, addr, err := r.socket.ReadFrom(r.readBuf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return // no datagram available this iteration
			}
			logger.Warn("socket read error", "err", err)
			return
		}
		if n == 0 {
			logger.Warn("received zero-length datagram", "addr", addr)
			continue
		}

		data := make([]byte, n)
		copy(data, r.readBuf[:n])
		r.deliver(addr, data, now)

		if r.cfg.BlockingMode {
			return // at most one datagram per poll to avoid starving sends
		}
	}
}

func (r *Registry) deliver(addr net.Addr, data []byte, now time.Time) {
	key := addr.String()

	if eng, ok := r.engines[key]; ok {
		r.process(eng, addr, data, now)
		return
	}

	if eng, ok := r.transient[key]; ok {
		r.process(eng, addr, data, now)
		return
	}

	// First contact from this address: a transient engine is created to
	// process the datagram and a Connect event is emitted, but it is not
	// inserted into the registered engine map. This mirrors the
	// documented DoS mitigation: unsolicited inbound traffic alone can
	// never grow the registered connection count.
	eng := engine.New(r.cfg, now)
	r.transient[key] = eng
	r.addrs[key] = addr
	r.emit(Event{Kind: EventConnect, Addr: addr})
	r.process(eng, addr, data, now)
}

func (r *Registry) process(eng *engine.Engine, addr net.Addr, data []byte, now time.Time) {
	incoming, err := eng.ProcessIncoming(data, now)
	if err != nil {
		logger.Warn("dropping malformed frame", "addr", addr, "err", err)
		return
	}
	for _, item := range incoming {
		r.emit(Event{Kind: EventPacket, Addr: addr, Payload: item.Payload})
	}
}

func (r *Registry) drainSends(now time.Time) {
	for {
		select {
		case req := <-r.sends:
			r.sendOne(req, now)
		default:
			return
		}
	}
}

func (r *Registry) sendOne(req SendRequest, now time.Time) {
	key := req.Addr.String()

	eng, ok := r.engines[key]
	if !ok {
		if transient, wasTransient := r.transient[key]; wasTransient {
			eng = transient
			delete(r.transient, key)
		} else {
			eng = engine.New(r.cfg, now)
		}
		r.engines[key] = eng
		r.addrs[key] = req.Addr
	}

	frames, err := eng.ProcessOutgoing(req.Packet, now)
	if err != nil {
		logger.Warn("outbound send rejected", "addr", req.Addr, "err", err)
		return
	}
	for _, frame := range frames {
		if _, err := r.socket.WriteTo(frame, req.Addr); err != nil {
			logger.Warn("socket write error", "addr", req.Addr, "err", err)
		}
	}
}

func (r *Registry) tickEngines(now time.Time) {
	for key, eng := range r.engines {
		addr := r.addrs[key]
		retransmits, heartbeatDue := eng.Update(now)

		for _, rt := range retransmits {
			id := rt.ItemID
			frames, err := eng.ProcessOutgoing(engine.Outgoing{
				Payload:    rt.Payload,
				Delivery:   protocol.Reliable,
				Ordering:   rt.Ordering,
				StreamID:   rt.StreamID,
				PacketType: protocol.PacketTypePacket,
				ItemID:     id,
			}, now)
			if err != nil {
				logger.Warn("retransmit rejected", "addr", addr, "err", err)
				continue
			}
			for _, frame := range frames {
				if _, err := r.socket.WriteTo(frame, addr); err != nil {
					logger.Warn("socket write error", "addr", addr, "err", err)
				}
			}
		}

		if heartbeatDue {
			frames, err := eng.ProcessOutgoing(engine.Outgoing{
				Delivery:   protocol.Unreliable,
				Ordering:   protocol.OrderingNone,
				PacketType: protocol.PacketTypeHeartbeat,
			}, now)
			if err == nil {
				for _, frame := range frames {
					if _, err := r.socket.WriteTo(frame, addr); err != nil {
						logger.Warn("socket write error", "addr", addr, "err", err)
					}
				}
			}
		}
	}
}

func (r *Registry) reap(now time.Time) {
	for key, eng := range r.engines {
		addr := r.addrs[key]
		if eng.PacketsInFlight() > r.cfg.MaxPacketsInFlight || now.Sub(eng.LastHeard) >= r.cfg.IdleConnectionTimeout {
			delete(r.engines, key)
			delete(r.addrs, key)
			r.emit(Event{Kind: EventTimeout, Addr: addr})
		}
	}

	for key, eng := range r.transient {
		if now.Sub(eng.LastHeard) >= r.cfg.IdleConnectionTimeout {
			delete(r.transient, key)
			delete(r.addrs, key)
		}
	}
}

// Package engine implements the per-connection ReliabilityEngine: the
// orchestrator that turns a user packet into one or more wire frames on
// the way out, and a sequence of wire frames back into user packets,
// acknowledgment bookkeeping and retransmits on the way in.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/ventosilenzioso/reliant/config"
	"github.com/ventosilenzioso/reliant/internal/ack"
	"github.com/ventosilenzioso/reliant/internal/arranging"
	"github.com/ventosilenzioso/reliant/internal/congestion"
	"github.com/ventosilenzioso/reliant/internal/fragment"
	"github.com/ventosilenzioso/reliant/internal/protocol"
)

// Errors surfaced from the outbound path, per the documented error
// taxonomy.
var (
	ErrExceededMaxPacketSize     = errors.New("engine: payload exceeds configured max packet size")
	ErrPacketTypeNotFragmentable = errors.New("engine: only Packet type frames may be fragmented")
)

// Outgoing is a user-supplied packet submitted to process_outgoing.
type Outgoing struct {
	Payload    []byte
	Delivery   protocol.DeliveryGuarantee
	Ordering   protocol.OrderingGuarantee
	StreamID   uint8
	PacketType protocol.PacketType // Packet or Heartbeat; callers never submit Fragment directly
	ItemID     *uint16             // reuse an existing arranging id on retransmit, else nil
}

// Incoming is one user-visible payload surfaced from process_incoming,
// already stripped of every header.
type Incoming struct {
	Payload []byte
}

// Engine is the per-remote-address reliability and arrangement state
// machine described by the data model: one instance per tracked peer,
// owned exclusively by the connection registry.
type Engine struct {
	cfg config.Config

	LastHeard time.Time
	LastSent  time.Time

	ack         *ack.Handler
	congestion  *congestion.Handler
	reassembler *fragment.Reassembler
	ordering    *arranging.OrderingSystem[[]byte]
	sequencing  *arranging.SequencingSystem[[]byte]
}

// New constructs an Engine using cfg's fragment, RTT and reassembly
// settings. now seeds LastHeard/LastSent so a freshly created engine is
// not immediately eligible for idle-timeout reaping.
func New(cfg config.Config, now time.Time) *Engine {
	return &Engine{
		cfg:         cfg,
		LastHeard:   now,
		LastSent:    now,
		ack:         ack.NewHandler(),
		congestion:  congestion.NewHandler(cfg.RTTSmoothingFactor, cfg.RTTMaxValue, cfg.GoodRTTMs),
		reassembler: fragment.NewReassembler(cfg.FragmentReassemblyBufferSize, cfg.FragmentSize),
		ordering:    arranging.NewOrderingSystem[[]byte](),
		sequencing:  arranging.NewSequencingSystem[[]byte](),
	}
}

// RTT returns the engine's current smoothed round-trip estimate.
func (e *Engine) RTT() float32 { return e.congestion.RTT() }

// Quality classifies the connection's current RTT.
func (e *Engine) Quality() congestion.Quality { return e.congestion.QualityLevel() }

// PacketsInFlight returns the number of unacked reliable sends.
func (e *Engine) PacketsInFlight() uint16 { return e.ack.PacketsInFlight() }

// ReassemblyOccupancy returns the number of in-progress fragment
// reassembly entries this engine is currently holding.
func (e *Engine) ReassemblyOccupancy() int { return e.reassembler.Occupancy() }

// ProcessOutgoing turns one user packet into the wire frame(s) that
// carry it, recording whatever acknowledgment/congestion/retransmit
// state the delivery guarantee requires.
func (e *Engine) ProcessOutgoing(pkt Outgoing, now time.Time) ([][]byte, error) {
	e.LastSent = now

	if pkt.Delivery == protocol.Unreliable {
		return e.processOutgoingUnreliable(pkt, now)
	}

	if len(pkt.Payload) <= int(e.cfg.FragmentSize) {
		return e.processOutgoingReliableSingle(pkt, now)
	}
	return e.processOutgoingReliableFragmented(pkt, now)
}

func (e *Engine) processOutgoingUnreliable(pkt Outgoing, now time.Time) ([][]byte, error) {
	if len(pkt.Payload) > e.cfg.ReceiveBufferMaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrExceededMaxPacketSize, len(pkt.Payload))
	}
	if pkt.PacketType == protocol.PacketTypeHeartbeat {
		e.congestion.ProcessOutgoing(e.ack.LocalSequenceNum(), now)
	}

	std := protocol.NewStandardHeader(pkt.PacketType, protocol.Unreliable, pkt.Ordering)
	builder := protocol.NewBuilder(len(pkt.Payload)).Standard(std)

	if pkt.Ordering == protocol.Sequenced {
		stream := e.sequencing.Stream(pkt.StreamID)
		id := resolveItemID(pkt.ItemID, stream.NewItemIdentifier)
		builder.Arranging(protocol.ArrangingHeader{ArrangingID: id, StreamID: pkt.StreamID})
	}

	builder.Payload(pkt.Payload)
	return [][]byte{builder.Bytes()}, nil
}

func (e *Engine) processOutgoingReliableSingle(pkt Outgoing, now time.Time) ([][]byte, error) {
	std := protocol.NewStandardHeader(protocol.PacketTypePacket, protocol.Reliable, pkt.Ordering)
	builder := protocol.NewBuilder(len(pkt.Payload)).Standard(std)

	acked := protocol.AckedHeader{
		Seq:      e.ack.LocalSequenceNum(),
		AckSeq:   e.ack.RemoteSequenceNum(),
		AckField: e.ack.AckBitfield(),
	}
	builder.Acked(acked)

	rec := ack.SentRecord{
		PacketType: protocol.PacketTypePacket,
		Payload:    pkt.Payload,
		Ordering:   pkt.Ordering,
		StreamID:   pkt.StreamID,
	}

	switch pkt.Ordering {
	case protocol.Ordered:
		stream := e.ordering.Stream(pkt.StreamID)
		id := resolveItemID(pkt.ItemID, stream.NewItemIdentifier)
		builder.Arranging(protocol.ArrangingHeader{ArrangingID: id, StreamID: pkt.StreamID})
		rec.HasItemID, rec.ItemID = true, id
	case protocol.Sequenced:
		stream := e.sequencing.Stream(pkt.StreamID)
		id := resolveItemID(pkt.ItemID, stream.NewItemIdentifier)
		builder.Arranging(protocol.ArrangingHeader{ArrangingID: id, StreamID: pkt.StreamID})
		rec.HasItemID, rec.ItemID = true, id
	}

	seq := e.ack.ProcessOutgoing(rec)
	e.congestion.ProcessOutgoing(seq, now)

	builder.Payload(pkt.Payload)
	return [][]byte{builder.Bytes()}, nil
}

func (e *Engine) processOutgoingReliableFragmented(pkt Outgoing, now time.Time) ([][]byte, error) {
	if pkt.PacketType != protocol.PacketTypePacket {
		return nil, ErrPacketTypeNotFragmentable
	}
	if len(pkt.Payload) > e.cfg.MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrExceededMaxPacketSize, len(pkt.Payload))
	}

	fragments, err := fragment.SplitIntoFragments(pkt.Payload, e.cfg.FragmentSize, e.cfg.MaxFragments)
	if err != nil {
		return nil, err
	}

	rec := ack.SentRecord{
		PacketType: protocol.PacketTypeFragment,
		Payload:    pkt.Payload,
		Ordering:   pkt.Ordering,
		StreamID:   pkt.StreamID,
	}
	seq := e.ack.ProcessOutgoing(rec)
	e.congestion.ProcessOutgoing(seq, now)

	frames := make([][]byte, 0, len(fragments))
	std := protocol.NewStandardHeader(protocol.PacketTypeFragment, protocol.Reliable, protocol.OrderingNone)
	for id, frag := range fragments {
		builder := protocol.NewBuilder(len(frag)).Standard(std)
		builder.Fragment(protocol.FragmentHeader{Sequence: seq, ID: uint8(id), Total: uint8(len(fragments))})
		if id == 0 {
			builder.Acked(protocol.AckedHeader{
				Seq:      seq,
				AckSeq:   e.ack.RemoteSequenceNum(),
				AckField: e.ack.AckBitfield(),
			})
		}
		builder.Payload(frag)
		frames = append(frames, builder.Bytes())
	}
	return frames, nil
}

// resolveItemID returns *id if non-nil (a retransmit reusing an
// already-allocated arranging id), otherwise mints a fresh one.
func resolveItemID(id *uint16, mint func() uint16) uint16 {
	if id != nil {
		return *id
	}
	return mint()
}

// ProcessIncoming folds one received wire frame into the engine's
// state, returning zero or more user-visible payloads (an ordered
// stream may release several buffered items at once).
func (e *Engine) ProcessIncoming(data []byte, now time.Time) ([]Incoming, error) {
	e.LastHeard = now

	frame, err := protocol.ParseFrame(data)
	if err != nil {
		return nil, err
	}
	if frame.Standard.PacketType == protocol.PacketTypeHeartbeat {
		return nil, nil
	}
	if frame.Standard.PacketType == protocol.PacketTypeFragment {
		return e.processIncomingFragment(frame, now)
	}

	if frame.Standard.Delivery == protocol.Unreliable {
		return e.processIncomingUnreliable(frame)
	}
	return e.processIncomingReliable(frame, now)
}

func (e *Engine) processIncomingUnreliable(frame protocol.Frame) ([]Incoming, error) {
	if frame.Standard.Ordering != protocol.Sequenced {
		return []Incoming{{Payload: frame.Payload}}, nil
	}
	stream := e.sequencing.Stream(frame.Arranging.StreamID)
	if item, ok := stream.Arrange(frame.Arranging.ArrangingID, frame.Payload); ok {
		return []Incoming{{Payload: item}}, nil
	}
	return nil, nil
}

func (e *Engine) processIncomingReliable(frame protocol.Frame, now time.Time) ([]Incoming, error) {
	e.applyAckedHeader(*frame.Acked, now)

	switch frame.Standard.Ordering {
	case protocol.OrderingNone:
		return []Incoming{{Payload: frame.Payload}}, nil

	case protocol.Sequenced:
		stream := e.sequencing.Stream(frame.Arranging.StreamID)
		if item, ok := stream.Arrange(frame.Arranging.ArrangingID, frame.Payload); ok {
			return []Incoming{{Payload: item}}, nil
		}
		return nil, nil

	case protocol.Ordered:
		stream := e.ordering.Stream(frame.Arranging.StreamID)
		out := make([]Incoming, 0, 1)
		if item, ok := stream.Arrange(frame.Arranging.ArrangingID, frame.Payload); ok {
			out = append(out, Incoming{Payload: item})
			for _, drained := range stream.Drain() {
				out = append(out, Incoming{Payload: drained})
			}
		}
		return out, nil
	}
	return nil, nil
}

func (e *Engine) processIncomingFragment(frame protocol.Frame, now time.Time) ([]Incoming, error) {
	payload, acked, done, err := e.reassembler.HandleFragment(*frame.Fragment, frame.Payload, frame.Acked)
	if err != nil || !done {
		return nil, err
	}
	e.applyAckedHeader(acked, now)
	return []Incoming{{Payload: payload}}, nil
}

func (e *Engine) applyAckedHeader(h protocol.AckedHeader, now time.Time) {
	e.ack.ProcessIncoming(h.Seq, h.AckSeq, h.AckField)
	e.congestion.ProcessIncoming(h.AckSeq, now)
}

// Retransmit is one dropped reliable send resurfaced by Update for the
// caller to resend via ProcessOutgoing, preserving its original
// delivery/ordering/arranging id so a retransmitted ordered item does
// not jump the queue on the peer's receive side.
type Retransmit struct {
	Payload  []byte
	Ordering protocol.OrderingGuarantee
	StreamID uint8
	ItemID   *uint16
}

// Update runs the engine's periodic bookkeeping: gathering dropped
// reliable sends for the caller to retransmit, and reporting whether a
// heartbeat is due given the configured interval and last_sent.
func (e *Engine) Update(now time.Time) (retransmits []Retransmit, sendHeartbeat bool) {
	for _, rec := range e.ack.DroppedPackets() {
		rt := Retransmit{Payload: rec.Payload, Ordering: rec.Ordering, StreamID: rec.StreamID}
		if rec.HasItemID {
			id := rec.ItemID
			rt.ItemID = &id
		}
		retransmits = append(retransmits, rt)
	}

	if e.cfg.HeartbeatInterval != nil && now.Sub(e.LastSent) >= *e.cfg.HeartbeatInterval {
		sendHeartbeat = true
	}
	return retransmits, sendHeartbeat
}

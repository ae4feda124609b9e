// Package ack implements the acknowledgment state machine: the local
// outgoing sequence counter, the remote-received window, the 32-bit ack
// bitfield, and the retained records needed to decide what to
// retransmit or give up on.
package ack

import (
	"github.com/ventosilenzioso/reliant/internal/protocol"
	"github.com/ventosilenzioso/reliant/internal/seqbuf"
	"github.com/ventosilenzioso/reliant/internal/seqnum"
)

// redundancyWindow is the number of most-recent sequences carried in
// every ack bitfield.
const redundancyWindow = 32

// receivedBufferCapacity is one more than the redundancy window: the
// received SequenceBuffer must hold the newest sequence plus the 32
// behind it.
const receivedBufferCapacity = redundancyWindow + 1

// SentRecord is retained for a sequence until it is acked or aged out,
// so it can be resubmitted on a retransmit pass.
type SentRecord struct {
	PacketType protocol.PacketType
	Payload    []byte
	Ordering   protocol.OrderingGuarantee
	StreamID   uint8
	HasItemID  bool
	ItemID     uint16
}

type receivedMark struct{}

// Handler is the per-connection acknowledgment state: what we've sent
// and not yet had acked, and what we've told the peer we've received.
type Handler struct {
	localSeq  uint16
	remoteSeq uint16
	hasRemote bool
	sent      map[uint16]SentRecord
	received  *seqbuf.Buffer[receivedMark]

	remoteAckSeq uint16 // highest ack_seq the peer has confirmed of our sends
	hasAck       bool
}

// NewHandler constructs an empty acknowledgment handler.
func NewHandler() *Handler {
	return &Handler{
		sent:     make(map[uint16]SentRecord),
		received: seqbuf.New[receivedMark](receivedBufferCapacity),
	}
}

// LocalSequenceNum returns the next outgoing sequence number.
func (h *Handler) LocalSequenceNum() uint16 {
	return h.localSeq
}

// RemoteSequenceNum returns the highest sequence number received from
// the peer (one behind the received buffer's "current" pointer).
func (h *Handler) RemoteSequenceNum() uint16 {
	return h.received.Current() - 1
}

// AckBitfield reports, for i in 1..=32, whether remoteSeq-i has been
// received, packed LSB-first (bit 0 == remoteSeq-1).
func (h *Handler) AckBitfield() uint32 {
	var field uint32
	remote := h.RemoteSequenceNum()
	for i := uint16(1); i <= redundancyWindow; i++ {
		if h.received.Exists(remote - i) {
			field |= 1 << (i - 1)
		}
	}
	return field
}

// ProcessOutgoing records a SentRecord at the current local sequence
// number and returns the sequence it was assigned, then advances the
// local counter.
func (h *Handler) ProcessOutgoing(rec SentRecord) uint16 {
	seq := h.localSeq
	h.sent[seq] = rec
	h.localSeq++
	return seq
}

// ProcessIncoming folds a received AckedHeader's fields into this
// handler's state: the peer's sequence is marked received,
// and every sequence the peer just confirmed (directly or via bitfield)
// has its SentRecord removed.
func (h *Handler) ProcessIncoming(remoteSeq, ackSeq uint16, ackBits uint32) {
	if !h.hasRemote || seqnum.Greater(remoteSeq, h.remoteSeq) {
		h.remoteSeq = remoteSeq
		h.hasRemote = true
	}
	h.received.Insert(remoteSeq, receivedMark{})

	if !h.hasAck || seqnum.Greater(ackSeq, h.remoteAckSeq) {
		h.remoteAckSeq = ackSeq
		h.hasAck = true
	}

	delete(h.sent, ackSeq)
	for i := uint16(1); i <= redundancyWindow; i++ {
		if ackBits&(1<<(i-1)) != 0 {
			delete(h.sent, ackSeq-i)
		}
	}
}

// DroppedPackets removes and returns every retained SentRecord whose
// sequence now falls outside the redundancy window behind the highest
// acked sequence. It is lazy and idempotent: a record already removed
// (acked or previously surfaced as dropped) is never returned twice.
func (h *Handler) DroppedPackets() map[uint16]SentRecord {
	dropped := make(map[uint16]SentRecord)
	if len(h.sent) == 0 || !h.hasAck {
		return dropped
	}
	threshold := h.remoteAckSeq - redundancyWindow
	for seq, rec := range h.sent {
		if seqnum.Greater(threshold, seq) {
			dropped[seq] = rec
			delete(h.sent, seq)
		}
	}
	return dropped
}

// PacketsInFlight returns the number of unacked reliable records.
func (h *Handler) PacketsInFlight() uint16 {
	return uint16(len(h.sent))
}

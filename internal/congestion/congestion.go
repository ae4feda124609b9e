// Package congestion tracks outgoing send timestamps per sequence
// number and turns the corresponding ack into a smoothed round-trip
// time estimate.
package congestion

import (
	"time"

	"github.com/ventosilenzioso/reliant/internal/seqbuf"
)

type sendRecord struct {
	sentAt time.Time
}

// Quality is a coarse, cheap-to-read signal of connection health
// derived from the smoothed RTT: Good or Bad, split at one configurable
// threshold.
type Quality uint8

const (
	Good Quality = iota
	Bad
)

func (q Quality) String() string {
	if q == Good {
		return "good"
	}
	return "bad"
}

// Handler tracks send timestamps keyed by outgoing sequence number and
// maintains the smoothed RTT measurer fed by matching acks.
type Handler struct {
	sent            *seqbuf.Buffer[sendRecord]
	rtt             float32
	smoothingFactor float32
	maxRTTMs        uint16
	goodRTTMs       uint16
}

// NewHandler constructs a Handler. smoothingFactor and maxRTTMs
// correspond to rtt_smoothing_factor/rtt_max_value; goodRTTMs is the
// threshold below which Quality reports Good.
func NewHandler(smoothingFactor float32, maxRTTMs, goodRTTMs uint16) *Handler {
	return &Handler{
		sent:            seqbuf.New[sendRecord](1 << 16),
		smoothingFactor: smoothingFactor,
		maxRTTMs:        maxRTTMs,
		goodRTTMs:       goodRTTMs,
	}
}

// ProcessOutgoing records that seq was sent at now.
func (h *Handler) ProcessOutgoing(seq uint16, now time.Time) {
	h.sent.Insert(seq, sendRecord{sentAt: now})
}

// ProcessIncoming looks up the send record for seq (an acked sequence)
// and recomputes the smoothed RTT from the elapsed time. A miss (no
// matching send record, e.g. already evicted) leaves rtt unchanged.
func (h *Handler) ProcessIncoming(seq uint16, now time.Time) {
	rec, ok := h.sent.Get(seq)
	if !ok {
		return
	}
	elapsedMs := float32(now.Sub(rec.sentAt).Milliseconds())
	h.rtt = h.smoothOut(elapsedMs)
}

// smoothOut reports only the latest overage past rtt_max scaled by the
// smoothing factor. It is not an exponential average: no earlier
// sample affects the result.
func (h *Handler) smoothOut(elapsedMs float32) float32 {
	excess := elapsedMs - float32(h.maxRTTMs)
	return excess * h.smoothingFactor
}

// RTT returns the current smoothed RTT estimate in milliseconds.
func (h *Handler) RTT() float32 {
	return h.rtt
}

// QualityLevel classifies the current RTT against the configured
// good-RTT threshold.
func (h *Handler) QualityLevel() Quality {
	if h.rtt < float32(h.goodRTTMs) {
		return Good
	}
	return Bad
}

// Package fragment implements outbound splitting of oversize reliable
// payloads and inbound reassembly of the resulting fragment frames.
package fragment

import (
	"errors"
	"fmt"

	"github.com/ventosilenzioso/reliant/internal/protocol"
	"github.com/ventosilenzioso/reliant/internal/seqbuf"
)

var (
	ErrExceededMaxFragments     = errors.New("fragment: exceeded max fragments")
	ErrCouldNotFindFragmentByID = errors.New("fragment: no reassembly entry for sequence")
	ErrUnevenFragmentCount      = errors.New("fragment: fragment count does not match entry")
	ErrAlreadyProcessedFragment = errors.New("fragment: duplicate fragment id")
	ErrMultipleAckHeaders       = errors.New("fragment: more than one fragment carried an ack header")
	ErrMissingAckHeader         = errors.New("fragment: reassembled packet has no ack header")
)

// FragmentsNeeded rounds payloadLength/fragmentSize up to the nearest
// whole fragment count.
func FragmentsNeeded(payloadLength, fragmentSize uint16) uint16 {
	remainder := uint16(0)
	if payloadLength%fragmentSize > 0 {
		remainder = 1
	}
	return payloadLength/fragmentSize + remainder
}

// SplitIntoFragments slices payload into contiguous fragments of at
// most fragmentSize bytes, rejecting if the resulting count exceeds
// maxFragments.
func SplitIntoFragments(payload []byte, fragmentSize uint16, maxFragments uint8) ([][]byte, error) {
	payloadLength := uint16(len(payload))
	numFragments := uint8(FragmentsNeeded(payloadLength, fragmentSize))

	if numFragments > maxFragments {
		return nil, ErrExceededMaxFragments
	}

	fragments := make([][]byte, 0, numFragments)
	for id := uint8(0); id < numFragments; id++ {
		start := uint16(id) * fragmentSize
		end := (uint16(id) + 1) * fragmentSize
		if end > payloadLength {
			end = payloadLength
		}
		fragments = append(fragments, payload[start:end])
	}
	return fragments, nil
}

// reassemblyEntry is one in-progress reassembly of a fragmented
// packet, keyed by the sequence number carried on every fragment.
type reassemblyEntry struct {
	total       uint8
	received    []bool
	receivedCnt uint8
	buffer      []byte
	lastLen     int // bytes carried by the final fragment, set when it arrives
	ackedHeader *protocol.AckedHeader
}

// Reassembler tracks in-progress fragment reassembly, one entry per
// sequence number, evicting the oldest entries as the sequence ring
// advances.
type Reassembler struct {
	entries      *seqbuf.Buffer[*reassemblyEntry]
	fragmentSize uint16
}

// NewReassembler constructs a Reassembler with the given ring capacity
// and per-fragment payload size.
func NewReassembler(bufferSize, fragmentSize uint16) *Reassembler {
	return &Reassembler{
		entries:      seqbuf.New[*reassemblyEntry](int(bufferSize)),
		fragmentSize: fragmentSize,
	}
}

// Occupancy returns the number of in-progress reassembly entries
// currently held in the ring.
func (r *Reassembler) Occupancy() int {
	return r.entries.Occupied()
}

// HandleFragment folds one fragment frame into its reassembly entry,
// creating the entry on first sight of its sequence number. When the
// final fragment arrives it returns the reassembled payload and the
// AckedHeader carried by fragment id 0; until then it returns ok=false.
func (r *Reassembler) HandleFragment(h protocol.FragmentHeader, payload []byte, acked *protocol.AckedHeader) ([]byte, protocol.AckedHeader, bool, error) {
	entry, ok := r.entries.Get(h.Sequence)
	if !ok {
		entry = &reassemblyEntry{
			total:    h.Total,
			received: make([]bool, h.Total),
			buffer:   make([]byte, int(h.Total)*int(r.fragmentSize)),
		}
		r.entries.Insert(h.Sequence, entry)
	}

	if entry.total != h.Total {
		return nil, protocol.AckedHeader{}, false, fmt.Errorf("%w: sequence %d", ErrUnevenFragmentCount, h.Sequence)
	}
	if int(h.ID) >= len(entry.received) {
		return nil, protocol.AckedHeader{}, false, fmt.Errorf("%w: id %d total %d", ErrExceededMaxFragments, h.ID, h.Total)
	}
	if entry.received[h.ID] {
		return nil, protocol.AckedHeader{}, false, fmt.Errorf("%w: sequence %d id %d", ErrAlreadyProcessedFragment, h.Sequence, h.ID)
	}

	entry.receivedCnt++
	entry.received[h.ID] = true

	// Fragments may arrive in any order; each one is written at its own
	// offset. Every fragment but the last spans exactly fragmentSize
	// bytes, so the final payload length is known once the last one lands.
	n := copy(entry.buffer[int(h.ID)*int(r.fragmentSize):], payload)
	if h.ID == entry.total-1 {
		entry.lastLen = n
	}

	if acked != nil {
		if entry.ackedHeader != nil {
			return nil, protocol.AckedHeader{}, false, ErrMultipleAckHeaders
		}
		entry.ackedHeader = acked
	}

	if entry.receivedCnt != entry.total {
		return nil, protocol.AckedHeader{}, false, nil
	}

	complete, removed := r.entries.Remove(h.Sequence)
	if !removed {
		return nil, protocol.AckedHeader{}, false, ErrCouldNotFindFragmentByID
	}
	if complete.ackedHeader == nil {
		return nil, protocol.AckedHeader{}, false, ErrMissingAckHeader
	}
	length := int(complete.total-1)*int(r.fragmentSize) + complete.lastLen
	return complete.buffer[:length], *complete.ackedHeader, true, nil
}

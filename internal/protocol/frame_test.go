package protocol

import (
	"bytes"
	"testing"
)

func TestParseFrameUnreliableNone(t *testing.T) {
	b := NewBuilder(3)
	b.Standard(NewStandardHeader(PacketTypePacket, Unreliable, OrderingNone))
	b.Payload([]byte{1, 2, 3})

	frame, err := ParseFrame(b.Bytes())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if frame.Acked != nil || frame.Arranging != nil || frame.Fragment != nil {
		t.Errorf("unexpected optional header present: %+v", frame)
	}
	if !bytes.Equal(frame.Payload, []byte{1, 2, 3}) {
		t.Errorf("Payload = %v, want [1 2 3]", frame.Payload)
	}
}

func TestParseFrameUnreliableSequenced(t *testing.T) {
	b := NewBuilder(2)
	b.Standard(NewStandardHeader(PacketTypePacket, Unreliable, Sequenced))
	b.Arranging(ArrangingHeader{ArrangingID: 9, StreamID: DefaultStreamID})
	b.Payload([]byte{0xAA, 0xBB})

	frame, err := ParseFrame(b.Bytes())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if frame.Arranging == nil || frame.Arranging.ArrangingID != 9 {
		t.Errorf("Arranging = %+v, want ArrangingID 9", frame.Arranging)
	}
	if frame.Acked != nil {
		t.Errorf("unexpected Acked header: %+v", frame.Acked)
	}
}

func TestParseFrameReliableOrdered(t *testing.T) {
	b := NewBuilder(1)
	b.Standard(NewStandardHeader(PacketTypePacket, Reliable, Ordered))
	b.Acked(AckedHeader{Seq: 5, AckSeq: 4, AckField: 0xF})
	b.Arranging(ArrangingHeader{ArrangingID: 1, StreamID: DefaultStreamID})
	b.Payload([]byte{0x7F})

	frame, err := ParseFrame(b.Bytes())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if frame.Acked == nil || frame.Acked.Seq != 5 {
		t.Errorf("Acked = %+v, want Seq 5", frame.Acked)
	}
	if frame.Arranging == nil || frame.Arranging.ArrangingID != 1 {
		t.Errorf("Arranging = %+v, want ArrangingID 1", frame.Arranging)
	}
}

func TestParseFrameFragmentZeroCarriesAcked(t *testing.T) {
	b := NewBuilder(4)
	b.Standard(NewStandardHeader(PacketTypeFragment, Reliable, OrderingNone))
	b.Fragment(FragmentHeader{Sequence: 11, ID: 0, Total: 3})
	b.Acked(AckedHeader{Seq: 11, AckSeq: 10, AckField: 0})
	b.Payload([]byte{1, 2, 3, 4})

	frame, err := ParseFrame(b.Bytes())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if frame.Fragment == nil || frame.Fragment.ID != 0 {
		t.Errorf("Fragment = %+v, want ID 0", frame.Fragment)
	}
	if frame.Acked == nil {
		t.Error("fragment id 0 must carry an Acked header")
	}
}

func TestParseFrameFragmentNonZeroHasNoAcked(t *testing.T) {
	b := NewBuilder(4)
	b.Standard(NewStandardHeader(PacketTypeFragment, Reliable, OrderingNone))
	b.Fragment(FragmentHeader{Sequence: 11, ID: 1, Total: 3})
	b.Payload([]byte{5, 6, 7, 8})

	frame, err := ParseFrame(b.Bytes())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if frame.Acked != nil {
		t.Errorf("non-zero fragment id must not carry Acked header, got %+v", frame.Acked)
	}
}

func TestParseFrameHeartbeat(t *testing.T) {
	b := NewBuilder(0)
	b.Standard(NewStandardHeader(PacketTypeHeartbeat, Unreliable, OrderingNone))

	frame, err := ParseFrame(b.Bytes())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if len(frame.Payload) != 0 {
		t.Errorf("heartbeat payload = %v, want empty", frame.Payload)
	}
}

func TestParseFrameProtocolMismatch(t *testing.T) {
	b := NewBuilder(0)
	std := NewStandardHeader(PacketTypeHeartbeat, Unreliable, OrderingNone)
	std.ProtocolVersion ^= 0xFFFF
	b.Standard(std)

	_, err := ParseFrame(b.Bytes())
	if err != ErrProtocolVersionMismatch {
		t.Errorf("err = %v, want ErrProtocolVersionMismatch", err)
	}
}

func TestParseFrameTruncated(t *testing.T) {
	b := NewBuilder(0)
	b.Standard(NewStandardHeader(PacketTypePacket, Reliable, OrderingNone))
	data := b.Bytes()
	data = data[:len(data)-1] // drop one byte, cutting into the Standard header itself

	_, err := ParseFrame(data)
	if err == nil {
		t.Fatal("expected error for truncated reliable frame, got nil")
	}
}

func BenchmarkParseFrameReliableOrdered(b *testing.B) {
	builder := NewBuilder(100)
	builder.Standard(NewStandardHeader(PacketTypePacket, Reliable, Ordered))
	builder.Acked(AckedHeader{Seq: 100, AckSeq: 99, AckField: 0xFFFFFFFF})
	builder.Arranging(ArrangingHeader{ArrangingID: 42, StreamID: 0})
	builder.Payload(make([]byte, 100))
	data := builder.Bytes()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = ParseFrame(data)
	}
}

func BenchmarkBuildFrameReliableOrdered(b *testing.B) {
	payload := make([]byte, 100)
	std := NewStandardHeader(PacketTypePacket, Reliable, Ordered)
	acked := AckedHeader{Seq: 100, AckSeq: 99, AckField: 0xFFFFFFFF}
	arr := ArrangingHeader{ArrangingID: 42, StreamID: 0}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		builder := NewBuilder(len(payload))
		builder.Standard(std)
		builder.Acked(acked)
		builder.Arranging(arr)
		builder.Payload(payload)
		_ = builder.Bytes()
	}
}

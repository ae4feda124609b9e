package arranging

import "testing"

func arrangeOrdered(seq []uint16) []uint16 {
	system := NewOrderingSystem[uint16]()
	stream := system.Stream(1)
	var out []uint16
	for _, s := range seq {
		if item, ok := stream.Arrange(s, s); ok {
			out = append(out, item)
			out = append(out, stream.Drain()...)
		}
	}
	return out
}

func equalSlices(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOrderingExpectRightOrder(t *testing.T) {
	cases := [][]uint16{
		{0, 2, 4, 3, 1},
		{0, 4, 3, 2, 1},
		{4, 2, 3, 1, 0},
		{3, 2, 1, 0, 4},
		{1, 0, 3, 2, 4},
		{4, 1, 0, 3, 2},
		{2, 1, 3, 0, 4},
	}
	want := []uint16{0, 1, 2, 3, 4}
	for _, c := range cases {
		got := arrangeOrdered(c)
		if !equalSlices(got, want) {
			t.Errorf("arrangeOrdered(%v) = %v, want %v", c, got, want)
		}
	}
}

func TestOrderingGapHoldsUntilFilled(t *testing.T) {
	system := NewOrderingSystem[string]()
	stream := system.Stream(1)

	if _, ok := stream.Arrange(0, "p0"); !ok {
		t.Fatal("Arrange(0) should return immediately")
	}
	if _, ok := stream.Arrange(3, "p3"); ok {
		t.Error("Arrange(3) should buffer, not return")
	}
	if _, ok := stream.Arrange(4, "p4"); ok {
		t.Error("Arrange(4) should buffer, not return")
	}
	if _, ok := stream.Arrange(2, "p2"); ok {
		t.Error("Arrange(2) should buffer, not return")
	}
	if got := stream.Drain(); got != nil {
		t.Errorf("Drain() before item 1 arrives = %v, want nil", got)
	}

	item, ok := stream.Arrange(1, "p1")
	if !ok || item != "p1" {
		t.Fatalf("Arrange(1) = %q, %v, want p1, true", item, ok)
	}
	drained := stream.Drain()
	want := []string{"p2", "p3", "p4"}
	if len(drained) != len(want) {
		t.Fatalf("Drain() = %v, want %v", drained, want)
	}
	for i := range want {
		if drained[i] != want[i] {
			t.Errorf("Drain()[%d] = %q, want %q", i, drained[i], want[i])
		}
	}
}

func TestOrderingWrapsAroundOffset(t *testing.T) {
	system := NewOrderingSystem[struct{}]()
	stream := system.Stream(1)

	for idx := uint16(0); idx <= 65500; idx++ {
		if _, ok := stream.Arrange(idx, struct{}{}); !ok {
			t.Fatalf("Arrange(%d) should return immediately", idx)
		}
	}
	if _, ok := stream.Arrange(123, struct{}{}); ok {
		t.Error("Arrange(123) ahead of the expected id should be buffered, not returned immediately")
	}
	for idx := uint32(65501); idx <= 65535; idx++ {
		if _, ok := stream.Arrange(uint16(idx), struct{}{}); !ok {
			t.Fatalf("Arrange(%d) should return immediately", idx)
		}
	}
	if _, ok := stream.Arrange(0, struct{}{}); !ok {
		t.Error("Arrange(0) after wrap should return immediately")
	}
}

func TestSequencingDiscardsOld(t *testing.T) {
	cases := []struct {
		in   []uint16
		want []uint16
	}{
		{[]uint16{1, 3, 5, 4, 2}, []uint16{1, 3, 5}},
		{[]uint16{1, 5, 4, 3, 2}, []uint16{1, 5}},
		{[]uint16{5, 3, 4, 2, 1}, []uint16{5}},
		{[]uint16{4, 3, 2, 1, 5}, []uint16{4, 5}},
		{[]uint16{2, 1, 4, 3, 5}, []uint16{2, 4, 5}},
		{[]uint16{5, 2, 1, 4, 3}, []uint16{5}},
		{[]uint16{3, 2, 4, 1, 5}, []uint16{3, 4, 5}},
	}
	for _, c := range cases {
		system := NewSequencingSystem[uint16]()
		stream := system.Stream(1)
		var got []uint16
		for _, s := range c.in {
			if item, ok := stream.Arrange(s, s); ok {
				got = append(got, item)
			}
		}
		if !equalSlices(got, c.want) {
			t.Errorf("sequencing %v = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestSequencingFirstItemAlwaysPassesEvenAtZero(t *testing.T) {
	system := NewSequencingSystem[uint16]()
	stream := system.Stream(1)
	if _, ok := stream.Arrange(0, 0); !ok {
		t.Error("the very first arranged item must pass regardless of its id")
	}
	if _, ok := stream.Arrange(0, 0); ok {
		t.Error("a repeat of the same id afterwards must be discarded")
	}
}

func TestNewItemIdentifierAdvances(t *testing.T) {
	system := NewOrderingSystem[struct{}]()
	stream := system.Stream(1)
	if stream.NewItemIdentifier() != 0 {
		t.Error("first identifier should be 0")
	}
	if stream.NewItemIdentifier() != 1 {
		t.Error("second identifier should be 1")
	}
}

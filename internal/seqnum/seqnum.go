// Package seqnum implements wrap-aware comparison of 16-bit sequence
// numbers shared by the sequence buffer, acknowledgment, fragmentation and
// arrangement subsystems.
package seqnum

// Number is a 16-bit sequence number that wraps modulo 1<<16.
type Number = uint16

// Greater reports whether a is ahead of b, treating a distance of more
// than half the number space as a wrap-around in the other direction.
func Greater(a, b Number) bool {
	return (a > b && a-b <= 32768) || (a < b && b-a > 32768)
}

// GreaterOrEqual reports whether a is at or ahead of b.
func GreaterOrEqual(a, b Number) bool {
	return a == b || Greater(a, b)
}

// Less is the strict inverse of Greater (neither a == b nor a > b).
func Less(a, b Number) bool {
	return a != b && !Greater(a, b)
}

// WithinHalfWindowForward reports whether incoming lies within the
// forward half of the sequence space starting at start, i.e. in
// [start, start+32768] modulo 1<<16.
func WithinHalfWindowForward(start, incoming Number) bool {
	return incoming-start <= 32768
}

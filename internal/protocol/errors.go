package protocol

import "errors"

// Decoding and protocol errors, per the propagation policy: these are
// logged and swallowed at the engine boundary, never returned to the
// caller of Socket.recv.
var (
	ErrReceivedDataTooShort      = errors.New("protocol: received data too short")
	ErrProtocolVersionMismatch   = errors.New("protocol: version mismatch")
	ErrPacketTypeNotFragmentable = errors.New("protocol: packet type cannot be fragmented")
	ErrExceededMaxPacketSize     = errors.New("protocol: exceeded max packet size")
)

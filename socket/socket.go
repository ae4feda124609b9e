// Package socket wraps a *net.UDPConn with the socket-option tuning a
// reliable transport needs: a widened receive/send buffer so a burst of
// inbound datagrams doesn't get dropped by the kernel before ManualPoll
// ever runs, and SO_REUSEADDR so a restarted process can rebind its port
// immediately.
package socket

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ventosilenzioso/reliant/config"
	"github.com/ventosilenzioso/reliant/logger"
)

// UDPSocket adapts a *net.UDPConn to the registry.Socket interface,
// applying a short read deadline on every ReadFrom so non-blocking mode
// returns a net.Error-compatible timeout instead of blocking the poll
// loop forever.
type UDPSocket struct {
	conn         *net.UDPConn
	readTimeout  time.Duration
	blockingMode bool
}

// Bind opens a UDP socket on addr (host:port, or ":0" for an ephemeral
// port) and tunes it per cfg.
func Bind(addr string, cfg config.Config) (*UDPSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("socket: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("socket: listen %q: %w", addr, err)
	}

	// Size the kernel buffers for a full event queue of maximum-size
	// datagrams.
	if err := tune(conn, cfg.ReceiveBufferMaxSize*cfg.SocketEventBufferSize); err != nil {
		logger.Warn("socket option tuning failed, continuing with kernel defaults", "addr", addr, "err", err)
	}

	readTimeout := time.Millisecond
	if cfg.SocketPollingTimeout != nil {
		readTimeout = *cfg.SocketPollingTimeout
	}

	return &UDPSocket{conn: conn, readTimeout: readTimeout, blockingMode: cfg.BlockingMode}, nil
}

// tune widens the kernel socket buffers and sets SO_REUSEADDR via the
// connection's raw fd (syscall.RawConn.Control).
func tune(conn *net.UDPConn, bufSize int) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	ctrlErr := rawConn.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockErr = err
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bufSize); err != nil {
			sockErr = err
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bufSize)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

// ReadFrom satisfies registry.Socket. In non-blocking mode it applies a
// short deadline per call so the registry's drain loop sees a
// net.Error.Timeout() rather than stalling the poll loop.
func (s *UDPSocket) ReadFrom(p []byte) (int, net.Addr, error) {
	if !s.blockingMode {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return 0, nil, err
		}
	} else {
		if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
			return 0, nil, err
		}
	}
	return s.conn.ReadFrom(p)
}

// WriteTo satisfies registry.Socket.
func (s *UDPSocket) WriteTo(p []byte, addr net.Addr) (int, error) {
	return s.conn.WriteTo(p, addr)
}

// LocalAddr satisfies registry.Socket.
func (s *UDPSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close releases the underlying file descriptor.
func (s *UDPSocket) Close() error { return s.conn.Close() }

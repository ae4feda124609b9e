// Command reliant-tester is a thin interactive client/server for
// exercising a bound socket by hand: each line read from stdin is sent
// reliably-ordered to the configured peer, and every inbound event is
// logged as it arrives.
package main

import (
	"bufio"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ventosilenzioso/reliant"
	"github.com/ventosilenzioso/reliant/logger"
)

const version = "1.0.0"

func main() {
	listenAddr := flag.String("listen", "0.0.0.0:0", "local address to bind")
	peerAddr := flag.String("peer", "", "remote address to send stdin lines to")
	streamID := flag.Uint("stream", 0, "arranging stream id for sent packets")
	flag.Parse()

	logger.Banner("reliant-tester", version)

	cfg := reliant.Default()
	sock, err := reliant.Bind(*listenAddr, cfg)
	if err != nil {
		logger.Error("bind failed", "addr", *listenAddr, "err", err)
		os.Exit(1)
	}
	defer sock.Close()

	logger.Success("bound", "addr", sock.LocalAddr().String())

	var peer net.Addr
	if *peerAddr != "" {
		resolved, err := net.ResolveUDPAddr("udp", *peerAddr)
		if err != nil {
			logger.Error("could not resolve peer address", "addr", *peerAddr, "err", err)
			os.Exit(1)
		}
		peer = resolved
	}

	stop := make(chan struct{})
	go sock.StartPolling(stop)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go readEvents(sock, stop)

	if peer != nil {
		go readStdin(sock, peer, uint8(*streamID), stop)
	} else {
		logger.Info("no -peer given, running in listen-only mode")
	}

	<-sigCh
	logger.Section("shutting down")
	close(stop)
	time.Sleep(50 * time.Millisecond)
}

func readEvents(sock *reliant.Socket, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for {
				ev, ok := sock.Recv()
				if !ok {
					break
				}
				switch ev.Kind {
				case reliant.EventConnect:
					logger.Success("peer connected", "addr", ev.Addr)
				case reliant.EventTimeout:
					logger.Warn("peer timed out", "addr", ev.Addr)
				case reliant.EventPacket:
					logger.Info("received packet", "addr", ev.Addr, "payload", string(ev.Payload))
				}
			}
		}
	}
}

func readStdin(sock *reliant.Socket, peer net.Addr, streamID uint8, stop <-chan struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-stop:
			return
		default:
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		err := sock.Send(peer, reliant.Packet{
			Payload:  []byte(line),
			Delivery: reliant.Reliable,
			Ordering: reliant.Ordered,
			StreamID: streamID,
		})
		if err != nil {
			logger.Warn("send failed", "err", err)
		}
	}
}

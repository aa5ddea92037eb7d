// Package bridge forwards CLUNET frames between the physical bus and a TCP
// socket, optionally announced via mDNS/DNS-SD, so a laptop without its own
// bus transceiver can sniff or inject frames (grounded on dns_sd.go's
// brutella/dnssd usage; out of scope for the core link layer itself, §1).
package bridge

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"

	clunet "github.com/clunet-go/clunet"
)

const serviceType = "_clunet._tcp"

// Bridge relays every sniffed bus frame to all connected TCP clients, and
// every frame received from a client onto the bus via station.Send.
type Bridge struct {
	station *clunet.Station
	log     *log.Logger

	mu      sync.Mutex
	clients map[net.Conn]struct{}
}

// New wires the bridge's sniff callback into station. Call Serve to accept
// connections.
func New(station *clunet.Station, logger *log.Logger) *Bridge {
	b := &Bridge{station: station, log: logger, clients: make(map[net.Conn]struct{})}
	station.SetOnDataReceivedSniff(b.onSniff)
	return b
}

func (b *Bridge) onSniff(src, dst, command uint8, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if err := writeWireFrame(c, src, dst, command, payload); err != nil {
			b.log.Warn("bridge: dropping client after write error", "err", err)
			delete(b.clients, c)
			_ = c.Close()
		}
	}
}

func writeWireFrame(w net.Conn, src, dst, command uint8, payload []byte) error {
	hdr := []byte{src, dst, command, byte(len(payload))}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// Serve accepts TCP connections on addr until ctx is cancelled, relaying
// bus traffic to each and injecting each client's frames onto the bus.
func (b *Bridge) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	b.log.Info("bridge listening", "addr", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("bridge: accept: %w", err)
			}
		}
		b.mu.Lock()
		b.clients[conn] = struct{}{}
		b.mu.Unlock()
		go b.readClient(conn)
	}
}

func (b *Bridge) readClient(conn net.Conn) {
	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		_ = conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		hdr := make([]byte, 4)
		if _, err := readFull(r, hdr); err != nil {
			return
		}
		size := int(hdr[3])
		payload := make([]byte, size)
		if size > 0 {
			if _, err := readFull(r, payload); err != nil {
				return
			}
		}
		b.station.Send(hdr[1], clunet.PriorityMessage, hdr[2], payload)
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		k, err := r.Read(buf[n:])
		n += k
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Advertise announces the bridge's TCP port via mDNS/DNS-SD so clients on
// the local network can discover it without a configured hostname (mirrors
// dns_sd.go's brutella/dnssd usage exactly).
func Advertise(ctx context.Context, logger *log.Logger, name string, port int) error {
	cfg := dnssd.Config{
		Name: name,
		Type: serviceType,
		Port: port,
	}
	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("bridge: dnssd service: %w", err)
	}
	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("bridge: dnssd responder: %w", err)
	}
	if _, err := rp.Add(sv); err != nil {
		return fmt.Errorf("bridge: dnssd add: %w", err)
	}

	logger.Info("dns-sd announcing bridge", "name", name, "port", port)
	go func() {
		if err := rp.Respond(ctx); err != nil {
			logger.Warn("dns-sd responder stopped", "err", err)
		}
	}()
	return nil
}

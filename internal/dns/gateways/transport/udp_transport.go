package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/etdns/etdns/internal/dns/common/log"
	"github.com/etdns/etdns/internal/dns/domain"
	"github.com/etdns/etdns/internal/dns/gateways/wire"
)

// drainTimeout bounds how long Stop waits for in-flight requests.
const drainTimeout = 10 * time.Second

// udpReadBuffer must cover the largest EDNS payload we advertise.
const udpReadBuffer = wire.MaxUDPPayload

// UDPTransport serves DNS over UDP (RFC 1035 §4.2.1). Every datagram is an
// independent request handled on its own goroutine; no per-client state is
// kept.
type UDPTransport struct {
	addr   string
	conn   *net.UDPConn
	codec  wire.DNSCodec
	logger log.Logger

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
}

// NewUDPTransport creates a UDP transport bound to addr when started.
func NewUDPTransport(addr string, codec wire.DNSCodec, logger log.Logger) *UDPTransport {
	return &UDPTransport{
		addr:   addr,
		codec:  codec,
		logger: logger,
	}
}

// Start binds the UDP socket and launches the read loop. A bind failure is
// returned to the caller and is fatal to startup.
func (t *UDPTransport) Start(ctx context.Context, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("resolve UDP address %s: %w", t.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   conn.LocalAddr().String(),
	}, "DNS transport started")

	t.wg.Add(1)
	go t.listenLoop(ctx, handler)
	return nil
}

// Stop closes the socket and waits for in-flight handlers, up to the drain
// timeout.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	closeErr := t.conn.Close()
	t.mu.Unlock()

	waitWithTimeout(&t.wg, drainTimeout, t.logger, "udp")

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport stopped")
	return closeErr
}

// Address returns the bound address, which may differ from the configured
// one when port 0 was requested.
func (t *UDPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

func (t *UDPTransport) listenLoop(ctx context.Context, handler Handler) {
	defer t.wg.Done()
	buffer := make([]byte, udpReadBuffer)

	for {
		n, clientAddr, err := t.conn.ReadFromUDP(buffer)
		if err != nil {
			t.mu.RLock()
			running := t.running
			t.mu.RUnlock()
			if !running || ctx.Err() != nil {
				return
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "Failed to read UDP packet")
			continue
		}

		packet := make([]byte, n)
		copy(packet, buffer[:n])
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.handlePacket(ctx, packet, clientAddr, handler)
		}()
	}
}

// handlePacket runs the decode, handle, encode, send cycle for one datagram.
func (t *UDPTransport) handlePacket(ctx context.Context, data []byte, clientAddr *net.UDPAddr, handler Handler) {
	query, err := t.codec.DecodeQuery(data)
	if err != nil {
		t.answerDecodeFailure(data, clientAddr, err)
		return
	}

	response := handler.HandleQuery(ctx, query, clientAddr)

	responseData, err := t.codec.EncodeResponse(response, wire.PayloadLimit(query))
	if err != nil {
		t.logger.Error(map[string]any{
			"client":   clientAddr.String(),
			"query_id": query.ID,
			"error":    err.Error(),
		}, "Failed to encode DNS response")
		return
	}

	if _, err := t.conn.WriteToUDP(responseData, clientAddr); err != nil {
		t.logger.Error(map[string]any{
			"client":   clientAddr.String(),
			"query_id": response.ID,
			"error":    err.Error(),
		}, "Failed to send DNS response")
	}
}

// answerDecodeFailure sends a header-only error response when the broken
// packet still yields a transaction ID; otherwise the datagram is dropped.
func (t *UDPTransport) answerDecodeFailure(data []byte, clientAddr *net.UDPAddr, decodeErr error) {
	t.logger.Warn(map[string]any{
		"client": clientAddr.String(),
		"error":  decodeErr.Error(),
		"size":   len(data),
	}, "Failed to decode DNS query")

	id, ok := wire.ExtractID(data)
	if !ok {
		return
	}
	resp := domain.NewErrorResponse(id, errorRCode(decodeErr))
	responseData, err := t.codec.EncodeResponse(resp, wire.MinUDPPayload)
	if err != nil {
		return
	}
	_, _ = t.conn.WriteToUDP(responseData, clientAddr)
}

// waitWithTimeout waits for wg up to timeout, logging when the drain gives
// up early.
func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration, logger log.Logger, transport string) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn(map[string]any{
			"transport": transport,
			"timeout":   timeout.String(),
		}, "Shutdown drain timed out with requests still in flight")
	}
}

var _ ServerTransport = &UDPTransport{}

package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/etdns/etdns/internal/dns/common/log"
	"github.com/etdns/etdns/internal/dns/domain"
	"github.com/etdns/etdns/internal/dns/gateways/wire"
)

const (
	// tcpReadTimeout closes idle connections; clients that pipeline must
	// keep sending within this window.
	tcpReadTimeout = 5 * time.Second

	// maxTCPMessage rejects absurd length prefixes before any allocation.
	// Far below the protocol's 64 KiB ceiling; authoritative answers never
	// come close.
	maxTCPMessage = 16384
)

// TCPTransport serves DNS over TCP (RFC 1035 §4.2.2): each message on a
// connection is preceded by a two-byte length, and a connection may carry
// any number of queries before either side closes it.
type TCPTransport struct {
	addr     string
	listener net.Listener
	codec    wire.DNSCodec
	logger   log.Logger

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
}

// NewTCPTransport creates a TCP transport bound to addr when started.
func NewTCPTransport(addr string, codec wire.DNSCodec, logger log.Logger) *TCPTransport {
	return &TCPTransport{
		addr:   addr,
		codec:  codec,
		logger: logger,
	}
}

// Start binds the TCP listener and launches the accept loop.
func (t *TCPTransport) Start(ctx context.Context, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("TCP transport already running")
	}

	listener, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("bind TCP socket on %s: %w", t.addr, err)
	}

	t.listener = listener
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "tcp",
		"address":   listener.Addr().String(),
	}, "DNS transport started")

	t.wg.Add(1)
	go t.acceptLoop(ctx, handler)
	return nil
}

// Stop closes the listener and waits for open connections, up to the drain
// timeout.
func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	closeErr := t.listener.Close()
	t.mu.Unlock()

	waitWithTimeout(&t.wg, drainTimeout, t.logger, "tcp")

	t.logger.Info(map[string]any{
		"transport": "tcp",
		"address":   t.addr,
	}, "DNS transport stopped")
	return closeErr
}

// Address returns the bound address.
func (t *TCPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

func (t *TCPTransport) acceptLoop(ctx context.Context, handler Handler) {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			t.mu.RLock()
			running := t.running
			t.mu.RUnlock()
			if !running || ctx.Err() != nil {
				return
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "Failed to accept TCP connection")
			continue
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.serveConn(ctx, conn, handler)
		}()
	}
}

// serveConn reads length-prefixed messages off one connection until the
// client closes it, a read times out, or a message is unusable.
func (t *TCPTransport) serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()
	client := conn.RemoteAddr()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(tcpReadTimeout)); err != nil {
			return
		}

		msg, err := readMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !isTimeout(err) {
				t.logger.Warn(map[string]any{
					"client": client.String(),
					"error":  err.Error(),
				}, "Closing TCP connection")
			}
			return
		}

		query, err := t.codec.DecodeQuery(msg)
		if err != nil {
			t.logger.Warn(map[string]any{
				"client": client.String(),
				"error":  err.Error(),
			}, "Failed to decode DNS query")
			if id, ok := wire.ExtractID(msg); ok {
				resp := domain.NewErrorResponse(id, errorRCode(err))
				if data, encErr := t.codec.EncodeResponse(resp, 0); encErr == nil {
					_ = writeMessage(conn, data)
				}
			}
			continue
		}

		response := handler.HandleQuery(ctx, query, client)

		// TCP has no payload limit below the length prefix's own 64 KiB.
		data, err := t.codec.EncodeResponse(response, 0)
		if err != nil {
			t.logger.Error(map[string]any{
				"client":   client.String(),
				"query_id": query.ID,
				"error":    err.Error(),
			}, "Failed to encode DNS response")
			return
		}
		if err := writeMessage(conn, data); err != nil {
			t.logger.Error(map[string]any{
				"client":   client.String(),
				"query_id": query.ID,
				"error":    err.Error(),
			}, "Failed to send DNS response")
			return
		}
	}
}

// readMessage reads one length-prefixed DNS message. A length below the
// header size or above maxTCPMessage is rejected.
func readMessage(conn net.Conn) ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(prefix[:]))
	if length < 12 {
		return nil, fmt.Errorf("message length %d below header size", length)
	}
	if length > maxTCPMessage {
		return nil, fmt.Errorf("message length %d exceeds maximum", length)
	}
	msg := make([]byte, length)
	if _, err := io.ReadFull(conn, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// writeMessage writes one length-prefixed DNS message.
func writeMessage(conn net.Conn, data []byte) error {
	if len(data) > maxTCPMessage {
		return fmt.Errorf("response of %d bytes exceeds TCP message maximum", len(data))
	}
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(data)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ ServerTransport = &TCPTransport{}

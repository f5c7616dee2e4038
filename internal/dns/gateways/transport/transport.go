// Package transport provides the network listeners for the DNS server. It
// converts between wire format and domain objects at the edge, so the
// service layer only ever sees domain types.
package transport

import (
	"context"
	"errors"
	"net"

	"github.com/etdns/etdns/internal/dns/domain"
	"github.com/etdns/etdns/internal/dns/gateways/wire"
)

// ServerTransport is implemented by each listener protocol.
type ServerTransport interface {
	// Start binds the socket and begins serving queries through handler.
	// A bind failure is returned synchronously so startup can abort before
	// any traffic is accepted.
	Start(ctx context.Context, handler Handler) error

	// Stop drains in-flight requests and closes the socket.
	Stop() error

	// Address returns the bound network address.
	Address() string
}

// Handler processes one decoded query and always produces a response; per
// query failures are expressed as RCodes, never as transport errors.
type Handler interface {
	HandleQuery(ctx context.Context, q domain.Question, clientAddr net.Addr) domain.DNSResponse
}

// Type names a listener protocol.
type Type string

const (
	TypeUDP Type = "udp"
	TypeTCP Type = "tcp"
)

// errorRCode classifies a decode failure: structurally valid queries with
// an opcode we do not serve get NOTIMP, everything else FORMERR.
func errorRCode(err error) domain.RCode {
	if errors.Is(err, wire.ErrUnsupportedOpcode) {
		return domain.RCodeNotImp
	}
	return domain.RCodeFormErr
}

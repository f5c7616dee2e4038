package transport

import (
	"fmt"

	"github.com/etdns/etdns/internal/dns/common/log"
	"github.com/etdns/etdns/internal/dns/gateways/wire"
)

// NewTransport creates a transport for the given protocol type. New
// protocols (DoT, DoH) slot in here without touching callers.
func NewTransport(transportType Type, addr string, codec wire.DNSCodec, logger log.Logger) (ServerTransport, error) {
	switch transportType {
	case TypeUDP:
		return NewUDPTransport(addr, codec, logger), nil
	case TypeTCP:
		return NewTCPTransport(addr, codec, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", transportType)
	}
}

// SupportedTransports lists the protocols this build can serve.
func SupportedTransports() []Type {
	return []Type{TypeUDP, TypeTCP}
}

// Package wire encodes and decodes DNS messages per RFC 1035, including
// EDNS payload size negotiation (RFC 6891) and response truncation.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/etdns/etdns/internal/dns/domain"
)

// ErrUnsupportedOpcode marks a structurally valid query whose opcode the
// server does not implement. Callers answer it with NOTIMP rather than
// FORMERR.
var ErrUnsupportedOpcode = errors.New("unsupported opcode")

// UDP payload bounds. Without EDNS the classic 512-byte limit applies; an
// EDNS-advertised size is clamped into [MinUDPPayload, MaxUDPPayload].
const (
	MinUDPPayload = 512
	MaxUDPPayload = 4096
)

// MalformedQueryError reports an inbound packet that fails to parse. The
// transport answers it with FORMERR when the header ID is recoverable, and
// drops the packet otherwise.
type MalformedQueryError struct {
	Reason string
}

func (e *MalformedQueryError) Error() string {
	return "malformed query: " + e.Reason
}

// DNSCodec translates between wire format and domain objects. DecodeQuery
// and EncodeResponse serve inbound traffic; EncodeQuery and DecodeResponse
// exist for clients and end-to-end tests.
type DNSCodec interface {
	DecodeQuery(data []byte) (domain.Question, error)
	EncodeResponse(resp domain.DNSResponse, maxSize int) ([]byte, error)

	EncodeQuery(query domain.Question) ([]byte, error)
	DecodeResponse(data []byte, expectedID uint16) (domain.DNSResponse, error)
}

// ExtractID recovers the transaction ID from a packet that may otherwise be
// unparseable, so error responses can still be correlated by the client.
func ExtractID(data []byte) (uint16, bool) {
	if len(data) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(data[0:2]), true
}

// PayloadLimit returns the response size limit for a query sent over UDP:
// 512 bytes without EDNS, otherwise the advertised size clamped into
// [MinUDPPayload, MaxUDPPayload].
func PayloadLimit(q domain.Question) int {
	if q.ClientUDPSize == 0 {
		return MinUDPPayload
	}
	size := int(q.ClientUDPSize)
	if size < MinUDPPayload {
		return MinUDPPayload
	}
	if size > MaxUDPPayload {
		return MaxUDPPayload
	}
	return size
}

func malformed(format string, args ...any) error {
	return &MalformedQueryError{Reason: fmt.Sprintf(format, args...)}
}

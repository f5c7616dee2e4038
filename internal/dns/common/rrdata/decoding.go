package rrdata

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/etdns/etdns/internal/dns/domain"
)

// Decode converts wire-format RDATA back to its presentation form.
// Only types whose RDATA carries no compression pointers are supported;
// records produced by this server never use compression inside RDATA.
func Decode(rrType domain.RRType, data []byte) (string, error) {
	switch rrType {
	case domain.RRTypeA:
		if len(data) != 4 {
			return "", fmt.Errorf("A record RDATA must be 4 bytes, got %d", len(data))
		}
		return net.IP(data).String(), nil
	case domain.RRTypeAAAA:
		if len(data) != 16 {
			return "", fmt.Errorf("AAAA record RDATA must be 16 bytes, got %d", len(data))
		}
		return net.IP(data).String(), nil
	case domain.RRTypeNS, domain.RRTypeCNAME, domain.RRTypePTR:
		return decodeDomainName(data)
	case domain.RRTypeMX:
		if len(data) < 3 {
			return "", fmt.Errorf("MX record RDATA too short")
		}
		pref := binary.BigEndian.Uint16(data[0:2])
		exchange, err := decodeDomainName(data[2:])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %s", pref, exchange), nil
	case domain.RRTypeTXT:
		return decodeTXTData(data)
	default:
		return "", fmt.Errorf("%s record decoding not supported", rrType)
	}
}

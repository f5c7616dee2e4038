package rrdata

import (
	"fmt"

	"github.com/etdns/etdns/internal/dns/domain"
)

// Encode encodes a record value based on its type, to its binary representation.
func Encode(rrType domain.RRType, data string) ([]byte, error) {
	switch rrType {
	case domain.RRTypeA: // 1
		return EncodeAData(data)
	case domain.RRTypeNS: // 2
		return EncodeNSData(data)
	case domain.RRTypeCNAME: // 5
		return EncodeCNAMEData(data)
	case domain.RRTypeSOA: // 6
		return EncodeSOAData(data)
	case domain.RRTypePTR: // 12
		return EncodePTRData(data)
	case domain.RRTypeMX: // 15
		return EncodeMXData(data)
	case domain.RRTypeTXT: // 16
		return EncodeTXTData(data)
	case domain.RRTypeAAAA: // 28
		return EncodeAAAAData(data)
	case domain.RRTypeSRV: // 33
		return EncodeSRVData(data)
	case domain.RRTypeOPT: // 41
		return nil, fmt.Errorf("%s record type not allowed in zone data", rrType)
	case domain.RRTypeCAA: // 257
		return EncodeCAAData(data)
	default:
		return nil, fmt.Errorf("%s record encoding not supported", rrType)
	}
}

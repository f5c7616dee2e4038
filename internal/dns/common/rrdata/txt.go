package rrdata

import (
	"fmt"
	"strings"
)

// EncodeTXTData encodes a TXT record string into its binary representation.
// Multiple character-strings may be separated by semicolons; see RFC 1035
// section 3.3.14.
func EncodeTXTData(data string) ([]byte, error) {
	segments := strings.Split(data, ";")
	var encoded []byte
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if len(segment) > 255 {
			return nil, fmt.Errorf("TXT segment too long: %d bytes", len(segment))
		}
		encoded = append(encoded, byte(len(segment)))
		encoded = append(encoded, []byte(segment)...)
	}
	if len(encoded) == 0 {
		return nil, fmt.Errorf("TXT record must contain at least one segment")
	}
	return encoded, nil
}

// decodeTXTData converts TXT RDATA back to presentation form, joining
// character-strings with "; ".
func decodeTXTData(data []byte) (string, error) {
	var segments []string
	for i := 0; i < len(data); {
		segLen := int(data[i])
		i++
		if i+segLen > len(data) {
			return "", fmt.Errorf("invalid TXT record encoding")
		}
		segments = append(segments, string(data[i:i+segLen]))
		i += segLen
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("empty TXT record")
	}
	return strings.Join(segments, "; "), nil
}

package rrdata

// EncodeNSData encodes an NS record string into its binary representation.
func EncodeNSData(data string) ([]byte, error) {
	return encodeDomainName(data)
}

// EncodeCNAMEData encodes a CNAME record string into its binary representation.
func EncodeCNAMEData(data string) ([]byte, error) {
	return encodeDomainName(data)
}

// EncodePTRData encodes a PTR record string into its binary representation.
func EncodePTRData(data string) ([]byte, error) {
	return encodeDomainName(data)
}

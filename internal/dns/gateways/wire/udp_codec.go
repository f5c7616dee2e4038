package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/etdns/etdns/internal/dns/common/log"
	"github.com/etdns/etdns/internal/dns/domain"
)

// Header flag bits, RFC 1035 §4.1.1.
const (
	flagQR = 1 << 15
	flagAA = 1 << 10
	flagTC = 1 << 9
	flagRD = 1 << 8
)

const headerLen = 12

// qnameOffset is where the question name starts; every compression pointer
// in a response targets it.
const qnameOffset = headerLen

// udpCodec implements DNSCodec for the standard DNS message format. The same
// encoding serves TCP; only the size limit differs.
type udpCodec struct {
	logger log.Logger
}

// NewCodec returns a DNSCodec logging through the provided logger.
func NewCodec(logger log.Logger) *udpCodec {
	return &udpCodec{logger: logger}
}

// DecodeQuery parses an inbound DNS query. Any structural problem yields a
// MalformedQueryError; the caller answers FORMERR without crashing. An EDNS
// OPT record in the additional section sets the question's ClientUDPSize.
func (c *udpCodec) DecodeQuery(data []byte) (domain.Question, error) {
	if len(data) < headerLen {
		return domain.Question{}, malformed("message of %d bytes is shorter than the header", len(data))
	}

	id := binary.BigEndian.Uint16(data[0:2])
	flags := binary.BigEndian.Uint16(data[2:4])
	if flags&flagQR != 0 {
		return domain.Question{}, malformed("QR bit set, not a query")
	}
	if opcode := (flags >> 11) & 0xF; opcode != 0 {
		return domain.Question{}, fmt.Errorf("%w: %d", ErrUnsupportedOpcode, opcode)
	}
	qdCount := binary.BigEndian.Uint16(data[4:6])
	if qdCount != 1 {
		return domain.Question{}, malformed("expected exactly one question, got %d", qdCount)
	}
	arCount := binary.BigEndian.Uint16(data[10:12])

	name, qtype, qclass, offset, err := decodeQuestion(data, headerLen)
	if err != nil {
		return domain.Question{}, malformed("question section: %v", err)
	}

	q, err := domain.NewQuestion(id, name, domain.RRType(qtype), domain.RRClass(qclass))
	if err != nil {
		return domain.Question{}, malformed("question: %v", err)
	}
	q.RecursionDesired = flags&flagRD != 0

	// Queries carry no answer or authority records, so the additional
	// section follows the question directly. Scan it for an OPT record.
	for i := 0; i < int(arCount); i++ {
		rrType, class, next, err := skipRecord(data, offset)
		if err != nil {
			return domain.Question{}, malformed("additional section: %v", err)
		}
		if rrType == uint16(domain.RRTypeOPT) {
			q.ClientUDPSize = class
		}
		offset = next
	}

	return q, nil
}

// EncodeResponse serializes a response. When maxSize is positive and the
// message would exceed it, records are dropped whole (answers last) and the
// TC bit is set so the client retries over TCP.
func (c *udpCodec) EncodeResponse(resp domain.DNSResponse, maxSize int) ([]byte, error) {
	question, err := encodeQuestionSection(resp.Question)
	if err != nil {
		return nil, fmt.Errorf("encode question: %w", err)
	}

	// An EDNS response carries its own OPT record advertising our receive
	// capacity. Only sent when the query negotiated EDNS.
	var opt []byte
	if resp.Question.ClientUDPSize > 0 {
		opt = encodeOPT(MaxUDPPayload)
	}

	fixed := headerLen + len(question) + len(opt)
	if maxSize > 0 && fixed > maxSize {
		return nil, fmt.Errorf("question section alone exceeds %d byte limit", maxSize)
	}

	sections := [3][]domain.ResourceRecord{resp.Answers, resp.Authority, resp.Additional}
	var counts [3]uint16
	var records bytes.Buffer
	truncated := resp.Truncated

encode:
	for si, rrs := range sections {
		for _, rr := range rrs {
			encoded, err := encodeRecord(rr, resp.Question.Name)
			if err != nil {
				return nil, fmt.Errorf("encode record %s: %w", rr.Name, err)
			}
			if maxSize > 0 && fixed+records.Len()+len(encoded) > maxSize {
				truncated = true
				break encode
			}
			records.Write(encoded)
			counts[si]++
		}
	}

	flags := uint16(flagQR)
	if resp.Authoritative {
		flags |= flagAA
	}
	if truncated {
		flags |= flagTC
	}
	if resp.Question.RecursionDesired {
		flags |= flagRD
	}
	flags |= uint16(resp.RCode) & 0xF

	qdCount := uint16(0)
	if len(question) > 0 {
		qdCount = 1
	}
	arCount := counts[2]
	if len(opt) > 0 {
		arCount++
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, resp.ID)
	binary.Write(&buf, binary.BigEndian, flags)
	binary.Write(&buf, binary.BigEndian, qdCount)
	binary.Write(&buf, binary.BigEndian, counts[0])
	binary.Write(&buf, binary.BigEndian, counts[1])
	binary.Write(&buf, binary.BigEndian, arCount)
	buf.Write(question)
	buf.Write(records.Bytes())
	buf.Write(opt)

	c.logger.Debug(map[string]any{
		"id":        resp.ID,
		"rcode":     resp.RCode.String(),
		"answers":   counts[0],
		"truncated": truncated,
		"size":      buf.Len(),
	}, "Encoded DNS response")

	return buf.Bytes(), nil
}

// EncodeQuery serializes a Question, used by clients and tests.
func (c *udpCodec) EncodeQuery(query domain.Question) ([]byte, error) {
	flags := uint16(0)
	if query.RecursionDesired {
		flags |= flagRD
	}
	arCount := uint16(0)
	if query.ClientUDPSize > 0 {
		arCount = 1
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, query.ID)
	binary.Write(&buf, binary.BigEndian, flags)
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, arCount)

	name, err := encodeDomainName(query.Name)
	if err != nil {
		return nil, err
	}
	buf.Write(name)
	binary.Write(&buf, binary.BigEndian, uint16(query.Type))
	binary.Write(&buf, binary.BigEndian, uint16(query.Class))

	if query.ClientUDPSize > 0 {
		buf.Write(encodeOPT(int(query.ClientUDPSize)))
	}
	return buf.Bytes(), nil
}

// DecodeResponse parses a response message, used by clients and tests.
func (c *udpCodec) DecodeResponse(data []byte, expectedID uint16) (domain.DNSResponse, error) {
	if len(data) < headerLen {
		return domain.DNSResponse{}, errors.New("response too short")
	}
	id := binary.BigEndian.Uint16(data[0:2])
	if id != expectedID {
		return domain.DNSResponse{}, fmt.Errorf("ID mismatch: expected %d, got %d", expectedID, id)
	}

	flags := binary.BigEndian.Uint16(data[2:4])
	resp := domain.DNSResponse{
		ID:            id,
		RCode:         domain.RCode(flags & 0xF),
		Authoritative: flags&flagAA != 0,
		Truncated:     flags&flagTC != 0,
	}

	qdCount := binary.BigEndian.Uint16(data[4:6])
	anCount := binary.BigEndian.Uint16(data[6:8])
	nsCount := binary.BigEndian.Uint16(data[8:10])
	arCount := binary.BigEndian.Uint16(data[10:12])

	offset := headerLen
	for i := 0; i < int(qdCount); i++ {
		name, qtype, qclass, next, err := decodeQuestion(data, offset)
		if err != nil {
			return domain.DNSResponse{}, fmt.Errorf("question section: %w", err)
		}
		if i == 0 {
			resp.Question = domain.Question{
				ID:    id,
				Name:  name,
				Type:  domain.RRType(qtype),
				Class: domain.RRClass(qclass),
			}
		}
		offset = next
	}

	sections := []*[]domain.ResourceRecord{&resp.Answers, &resp.Authority, &resp.Additional}
	for si, count := range []uint16{anCount, nsCount, arCount} {
		for i := 0; i < int(count); i++ {
			rr, next, err := decodeRecord(data, offset)
			if err != nil {
				return domain.DNSResponse{}, fmt.Errorf("record section %d: %w", si, err)
			}
			offset = next
			if rr.Type == domain.RRTypeOPT {
				continue
			}
			*sections[si] = append(*sections[si], rr)
		}
	}

	return resp, nil
}

// encodeQuestionSection renders the echoed question, or nothing for a
// header-only error response.
func encodeQuestionSection(q domain.Question) ([]byte, error) {
	if q.Name == "" {
		return nil, nil
	}
	name, err := encodeDomainName(q.Name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(name)
	binary.Write(&buf, binary.BigEndian, uint16(q.Type))
	binary.Write(&buf, binary.BigEndian, uint16(q.Class))
	return buf.Bytes(), nil
}

// encodeRecord renders one resource record. Owner names equal to the
// question name compress to a pointer at the question's fixed offset.
func encodeRecord(rr domain.ResourceRecord, questionName string) ([]byte, error) {
	var buf bytes.Buffer
	if questionName != "" && strings.EqualFold(rr.Name, questionName) {
		buf.Write([]byte{0xC0 | byte(qnameOffset>>8), byte(qnameOffset & 0xFF)})
	} else {
		name, err := encodeDomainName(rr.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
	}
	binary.Write(&buf, binary.BigEndian, uint16(rr.Type))
	binary.Write(&buf, binary.BigEndian, uint16(rr.Class))
	binary.Write(&buf, binary.BigEndian, rr.TTL)
	if len(rr.Data) > 0xFFFF {
		return nil, fmt.Errorf("rdata of %d bytes exceeds length field", len(rr.Data))
	}
	binary.Write(&buf, binary.BigEndian, uint16(len(rr.Data)))
	buf.Write(rr.Data)
	return buf.Bytes(), nil
}

// encodeOPT renders a minimal EDNS OPT pseudo-record advertising the given
// payload size.
func encodeOPT(payload int) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0) // root owner name
	binary.Write(&buf, binary.BigEndian, uint16(domain.RRTypeOPT))
	binary.Write(&buf, binary.BigEndian, uint16(payload))
	binary.Write(&buf, binary.BigEndian, uint32(0)) // extended RCODE and flags
	binary.Write(&buf, binary.BigEndian, uint16(0)) // no options
	return buf.Bytes()
}

// encodeDomainName renders a name in uncompressed wire format.
func encodeDomainName(name string) ([]byte, error) {
	var buf bytes.Buffer
	name = strings.TrimSuffix(name, ".")
	if name != "" {
		for _, label := range strings.Split(name, ".") {
			if len(label) == 0 {
				return nil, fmt.Errorf("empty label in %q", name)
			}
			if len(label) > 63 {
				return nil, fmt.Errorf("label too long: %s", label)
			}
			buf.WriteByte(byte(len(label)))
			buf.WriteString(label)
		}
	}
	buf.WriteByte(0)
	return buf.Bytes(), nil
}

// decodeName reads a possibly compressed name starting at offset, returning
// the name and the offset just past it in the original stream. A bounded
// jump count defends against pointer loops.
func decodeName(data []byte, offset int) (string, int, error) {
	var labels []string
	next := -1
	jumps := 0
	for {
		if offset >= len(data) {
			return "", 0, errors.New("name runs past end of message")
		}
		length := int(data[offset])
		if length == 0 {
			offset++
			break
		}
		if length&0xC0 == 0xC0 {
			if offset+1 >= len(data) {
				return "", 0, errors.New("compression pointer out of bounds")
			}
			if jumps++; jumps > 16 {
				return "", 0, errors.New("compression pointer loop")
			}
			if next < 0 {
				next = offset + 2
			}
			offset = int(binary.BigEndian.Uint16(data[offset:offset+2]) & 0x3FFF)
			continue
		}
		offset++
		if offset+length > len(data) {
			return "", 0, errors.New("label runs past end of message")
		}
		labels = append(labels, string(data[offset:offset+length]))
		offset += length
	}
	if next < 0 {
		next = offset
	}
	return strings.Join(labels, "."), next, nil
}

// decodeQuestion reads one question entry at offset.
func decodeQuestion(data []byte, offset int) (name string, qtype, qclass uint16, next int, err error) {
	name, offset, err = decodeName(data, offset)
	if err != nil {
		return "", 0, 0, 0, err
	}
	if offset+4 > len(data) {
		return "", 0, 0, 0, errors.New("truncated question")
	}
	qtype = binary.BigEndian.Uint16(data[offset : offset+2])
	qclass = binary.BigEndian.Uint16(data[offset+2 : offset+4])
	return name, qtype, qclass, offset + 4, nil
}

// skipRecord walks over one resource record, returning its type, class, and
// the offset just past its rdata.
func skipRecord(data []byte, offset int) (rrType, class uint16, next int, err error) {
	_, offset, err = decodeName(data, offset)
	if err != nil {
		return 0, 0, 0, err
	}
	if offset+10 > len(data) {
		return 0, 0, 0, errors.New("truncated record header")
	}
	rrType = binary.BigEndian.Uint16(data[offset : offset+2])
	class = binary.BigEndian.Uint16(data[offset+2 : offset+4])
	rdLen := int(binary.BigEndian.Uint16(data[offset+8 : offset+10]))
	next = offset + 10 + rdLen
	if next > len(data) {
		return 0, 0, 0, errors.New("truncated rdata")
	}
	return rrType, class, next, nil
}

// decodeRecord reads one full resource record at offset.
func decodeRecord(data []byte, offset int) (domain.ResourceRecord, int, error) {
	name, offset, err := decodeName(data, offset)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	if offset+10 > len(data) {
		return domain.ResourceRecord{}, 0, errors.New("truncated record header")
	}
	rrType := domain.RRType(binary.BigEndian.Uint16(data[offset : offset+2]))
	class := domain.RRClass(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
	ttl := binary.BigEndian.Uint32(data[offset+4 : offset+8])
	rdLen := int(binary.BigEndian.Uint16(data[offset+8 : offset+10]))
	offset += 10
	if offset+rdLen > len(data) {
		return domain.ResourceRecord{}, 0, errors.New("truncated rdata")
	}
	rdata := make([]byte, rdLen)
	copy(rdata, data[offset:offset+rdLen])
	offset += rdLen

	if rrType == domain.RRTypeOPT {
		// Pseudo-record; carries no owner data worth validating.
		return domain.ResourceRecord{Name: name, Type: rrType, Class: class, TTL: ttl, Data: rdata}, offset, nil
	}
	rr, err := domain.NewResourceRecord(name, rrType, class, ttl, rdata, "")
	if err != nil {
		return domain.ResourceRecord{}, 0, fmt.Errorf("invalid record: %w", err)
	}
	return rr, offset, nil
}

var _ DNSCodec = &udpCodec{}

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/etdns/etdns/internal/dns/common/log"
	"github.com/etdns/etdns/internal/dns/domain"
)

func testCodec() *udpCodec {
	return NewCodec(log.NewNoopLogger())
}

func testQuestion(t *testing.T, id uint16, name string, rrType domain.RRType) domain.Question {
	t.Helper()
	q, err := domain.NewQuestion(id, name, rrType, domain.RRClassIN)
	if err != nil {
		t.Fatalf("NewQuestion: %v", err)
	}
	return q
}

func aRecord(t *testing.T, name string, ip ...byte) domain.ResourceRecord {
	t.Helper()
	rr, err := domain.NewResourceRecord(name, domain.RRTypeA, domain.RRClassIN, 60, ip, "")
	if err != nil {
		t.Fatalf("NewResourceRecord: %v", err)
	}
	return rr
}

func TestQueryRoundTrip(t *testing.T) {
	c := testCodec()
	q := testQuestion(t, 0x1234, "www.et.internal", domain.RRTypeA)
	q.RecursionDesired = true

	data, err := c.EncodeQuery(q)
	if err != nil {
		t.Fatalf("EncodeQuery: %v", err)
	}
	decoded, err := c.DecodeQuery(data)
	if err != nil {
		t.Fatalf("DecodeQuery: %v", err)
	}
	if decoded.ID != 0x1234 || decoded.Name != "www.et.internal" || decoded.Type != domain.RRTypeA {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
	if !decoded.RecursionDesired {
		t.Error("RD flag lost in round trip")
	}
	if decoded.ClientUDPSize != 0 {
		t.Errorf("unexpected EDNS size %d", decoded.ClientUDPSize)
	}
}

func TestDecodeQuery_EDNS(t *testing.T) {
	c := testCodec()
	q := testQuestion(t, 7, "www.et.internal", domain.RRTypeA)
	q.ClientUDPSize = 1232

	data, err := c.EncodeQuery(q)
	if err != nil {
		t.Fatalf("EncodeQuery: %v", err)
	}
	decoded, err := c.DecodeQuery(data)
	if err != nil {
		t.Fatalf("DecodeQuery: %v", err)
	}
	if decoded.ClientUDPSize != 1232 {
		t.Errorf("ClientUDPSize = %d, want 1232", decoded.ClientUDPSize)
	}
}

func TestDecodeQuery_Malformed(t *testing.T) {
	c := testCodec()

	response := make([]byte, 12)
	binary.BigEndian.PutUint16(response[2:4], flagQR)
	binary.BigEndian.PutUint16(response[4:6], 1)

	twoQuestions := make([]byte, 12)
	binary.BigEndian.PutUint16(twoQuestions[4:6], 2)

	truncatedName := append(make([]byte, 12), 63)
	binary.BigEndian.PutUint16(truncatedName[4:6], 1)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{0, 1, 2}},
		{"response not query", response},
		{"two questions", twoQuestions},
		{"truncated name", truncatedName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeQuery(tt.data)
			var mqe *MalformedQueryError
			if !errors.As(err, &mqe) {
				t.Errorf("expected MalformedQueryError, got %v", err)
			}
		})
	}
}

func TestDecodeQuery_UnsupportedOpcode(t *testing.T) {
	data := make([]byte, 12)
	binary.BigEndian.PutUint16(data[2:4], 2<<11) // STATUS opcode
	binary.BigEndian.PutUint16(data[4:6], 1)

	_, err := testCodec().DecodeQuery(data)
	if !errors.Is(err, ErrUnsupportedOpcode) {
		t.Errorf("expected ErrUnsupportedOpcode, got %v", err)
	}
}

func TestEncodeResponse_RoundTrip(t *testing.T) {
	c := testCodec()
	q := testQuestion(t, 42, "www.et.internal", domain.RRTypeA)
	resp, err := domain.NewDNSResponse(q, domain.RCodeNoError, []domain.ResourceRecord{
		aRecord(t, "www.et.internal", 123, 123, 123, 123),
	})
	if err != nil {
		t.Fatalf("NewDNSResponse: %v", err)
	}

	data, err := c.EncodeResponse(resp, 0)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	decoded, err := c.DecodeResponse(data, 42)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if decoded.RCode != domain.RCodeNoError || !decoded.Authoritative {
		t.Errorf("header mismatch: %+v", decoded)
	}
	if len(decoded.Answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(decoded.Answers))
	}
	ans := decoded.Answers[0]
	if ans.Name != "www.et.internal" || ans.TTL != 60 || !bytes.Equal(ans.Data, []byte{123, 123, 123, 123}) {
		t.Errorf("answer mismatch: %+v", ans)
	}
}

func TestEncodeResponse_CompressionPointer(t *testing.T) {
	c := testCodec()
	q := testQuestion(t, 1, "www.et.internal", domain.RRTypeA)
	resp, _ := domain.NewDNSResponse(q, domain.RCodeNoError, []domain.ResourceRecord{
		aRecord(t, "www.et.internal", 1, 2, 3, 4),
	})

	data, err := c.EncodeResponse(resp, 0)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}

	// The answer owner equals the question name so it must be a pointer to
	// offset 12, not a second copy of the name.
	question, _ := encodeDomainName("www.et.internal")
	answerStart := headerLen + len(question) + 4
	if data[answerStart] != 0xC0 || data[answerStart+1] != 0x0C {
		t.Errorf("expected compression pointer at %d, got %x %x", answerStart, data[answerStart], data[answerStart+1])
	}
}

func TestEncodeResponse_HeaderOnlyFormErr(t *testing.T) {
	c := testCodec()
	resp := domain.NewErrorResponse(99, domain.RCodeFormErr)

	data, err := c.EncodeResponse(resp, MinUDPPayload)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if len(data) != headerLen {
		t.Fatalf("header-only response is %d bytes, want %d", len(data), headerLen)
	}
	if got := binary.BigEndian.Uint16(data[0:2]); got != 99 {
		t.Errorf("ID = %d", got)
	}
	flags := binary.BigEndian.Uint16(data[2:4])
	if flags&flagQR == 0 {
		t.Error("QR bit not set")
	}
	if rcode := domain.RCode(flags & 0xF); rcode != domain.RCodeFormErr {
		t.Errorf("rcode = %s", rcode)
	}
	if qd := binary.BigEndian.Uint16(data[4:6]); qd != 0 {
		t.Errorf("QDCOUNT = %d, want 0", qd)
	}
}

func TestEncodeResponse_Truncation(t *testing.T) {
	c := testCodec()
	q := testQuestion(t, 5, "www.et.internal", domain.RRTypeTXT)

	// Each TXT answer is large enough that only one fits under 512 bytes.
	big := make([]byte, 300)
	for i := range big {
		big[i] = 'x'
	}
	var answers []domain.ResourceRecord
	for i := 0; i < 3; i++ {
		rr, err := domain.NewResourceRecord("www.et.internal", domain.RRTypeTXT, domain.RRClassIN, 60, big, "")
		if err != nil {
			t.Fatalf("NewResourceRecord: %v", err)
		}
		answers = append(answers, rr)
	}
	resp, err := domain.NewDNSResponse(q, domain.RCodeNoError, answers)
	if err != nil {
		t.Fatalf("NewDNSResponse: %v", err)
	}

	data, err := c.EncodeResponse(resp, MinUDPPayload)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if len(data) > MinUDPPayload {
		t.Fatalf("response is %d bytes, exceeds %d", len(data), MinUDPPayload)
	}

	decoded, err := c.DecodeResponse(data, 5)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !decoded.Truncated {
		t.Error("TC bit not set on truncated response")
	}
	if len(decoded.Answers) != 1 {
		t.Errorf("got %d whole answers, want 1", len(decoded.Answers))
	}
}

func TestEncodeResponse_EDNSEcho(t *testing.T) {
	c := testCodec()
	q := testQuestion(t, 9, "www.et.internal", domain.RRTypeA)
	q.ClientUDPSize = 4096
	resp, _ := domain.NewDNSResponse(q, domain.RCodeNoError, []domain.ResourceRecord{
		aRecord(t, "www.et.internal", 1, 2, 3, 4),
	})

	data, err := c.EncodeResponse(resp, PayloadLimit(q))
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if ar := binary.BigEndian.Uint16(data[10:12]); ar != 1 {
		t.Errorf("ARCOUNT = %d, want 1 OPT record", ar)
	}
}

func TestPayloadLimit(t *testing.T) {
	tests := []struct {
		advertised uint16
		want       int
	}{
		{0, 512},
		{100, 512},
		{512, 512},
		{1232, 1232},
		{4096, 4096},
		{65535, 4096},
	}
	for _, tt := range tests {
		q := domain.Question{ClientUDPSize: tt.advertised}
		if got := PayloadLimit(q); got != tt.want {
			t.Errorf("PayloadLimit(%d) = %d, want %d", tt.advertised, got, tt.want)
		}
	}
}

func TestExtractID(t *testing.T) {
	if _, ok := ExtractID([]byte{7}); ok {
		t.Error("one byte should not yield an ID")
	}
	id, ok := ExtractID([]byte{0x12, 0x34, 0xFF})
	if !ok || id != 0x1234 {
		t.Errorf("ExtractID = %d, %v", id, ok)
	}
}

func TestDecodeName_CompressionLoop(t *testing.T) {
	// A pointer that points at itself must not recurse forever.
	data := make([]byte, 14)
	binary.BigEndian.PutUint16(data[4:6], 1)
	data[12] = 0xC0
	data[13] = 0x0C

	if _, err := testCodec().DecodeQuery(data); err == nil {
		t.Error("expected error for self-referential compression pointer")
	}
}

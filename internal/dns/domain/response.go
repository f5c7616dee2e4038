package domain

import "fmt"

// DNSResponse represents a complete DNS response message, RFC 1035 §4.1.1.
// Question carries the echoed question section; a zero-value Question (empty
// Name) encodes a header-only response, used for FORMERR replies to queries
// whose question section never parsed.
type DNSResponse struct {
	ID            uint16
	RCode         RCode
	Question      Question
	Authoritative bool
	Truncated     bool
	Answers       []ResourceRecord
	Authority     []ResourceRecord
	Additional    []ResourceRecord
}

// NewDNSResponse constructs a DNSResponse answering the given question and
// validates its fields.
func NewDNSResponse(q Question, rcode RCode, answers []ResourceRecord) (DNSResponse, error) {
	resp := DNSResponse{
		ID:            q.ID,
		RCode:         rcode,
		Question:      q,
		Authoritative: true,
		Answers:       answers,
	}
	if err := resp.Validate(); err != nil {
		return DNSResponse{}, err
	}
	return resp, nil
}

// NewErrorResponse creates a header-only DNSResponse with the specified ID
// and response code. Used when the inbound message could not be decoded.
func NewErrorResponse(id uint16, rcode RCode) DNSResponse {
	return DNSResponse{
		ID:    id,
		RCode: rcode,
	}
}

// Validate checks whether the DNSResponse fields are structurally valid.
func (resp DNSResponse) Validate() error {
	if !resp.RCode.IsValid() {
		return fmt.Errorf("invalid RCode: %d", resp.RCode)
	}
	for i, rr := range resp.Answers {
		if err := rr.Validate(); err != nil {
			return fmt.Errorf("invalid answer record at index %d: %w", i, err)
		}
	}
	for i, rr := range resp.Authority {
		if err := rr.Validate(); err != nil {
			return fmt.Errorf("invalid authority record at index %d: %w", i, err)
		}
	}
	for i, rr := range resp.Additional {
		if err := rr.Validate(); err != nil {
			return fmt.Errorf("invalid additional record at index %d: %w", i, err)
		}
	}
	return nil
}

// IsError returns true if the response indicates an error condition.
func (resp DNSResponse) IsError() bool {
	return resp.RCode != RCodeNoError
}

// HasAnswers returns true if the response contains answer records.
func (resp DNSResponse) HasAnswers() bool {
	return len(resp.Answers) > 0
}

// MinAnswerTTL returns the smallest TTL among the answer records, or 0 when
// there are none. The response cache uses this as the entry lifetime.
func (resp DNSResponse) MinAnswerTTL() uint32 {
	if len(resp.Answers) == 0 {
		return 0
	}
	min := resp.Answers[0].TTL
	for _, rr := range resp.Answers[1:] {
		if rr.TTL < min {
			min = rr.TTL
		}
	}
	return min
}

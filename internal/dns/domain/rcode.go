package domain

import "fmt"

// RCode represents a DNS response code indicating the result of a query.
type RCode uint8

// Response codes returned by the server (RFC 1035 §4.1.1).
const (
	RCodeNoError  RCode = 0 // NOERROR
	RCodeFormErr  RCode = 1 // FORMERR
	RCodeServFail RCode = 2 // SERVFAIL
	RCodeNXDomain RCode = 3 // NXDOMAIN
	RCodeNotImp   RCode = 4 // NOTIMP
	RCodeRefused  RCode = 5 // REFUSED
)

// IsValid returns true if the RCode is within the supported response code range.
func (r RCode) IsValid() bool {
	return r <= 10
}

// String returns the textual representation of the RCode.
func (r RCode) String() string {
	switch r {
	case RCodeNoError:
		return "NOERROR"
	case RCodeFormErr:
		return "FORMERR"
	case RCodeServFail:
		return "SERVFAIL"
	case RCodeNXDomain:
		return "NXDOMAIN"
	case RCodeNotImp:
		return "NOTIMP"
	case RCodeRefused:
		return "REFUSED"
	case 6:
		return "YXDOMAIN"
	case 7:
		return "YXRRSET"
	case 8:
		return "NXRRSET"
	case 9:
		return "NOTAUTH"
	case 10:
		return "NOTZONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(r))
	}
}

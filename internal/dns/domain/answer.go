package domain

// Outcome classifies the result of an authoritative zone lookup.
type Outcome uint8

const (
	// OutcomeAnswered means the owner name holds records of the queried type.
	OutcomeAnswered Outcome = iota
	// OutcomeNoData means the owner name exists but has no records of the
	// queried type (encoded as NOERROR with zero answers).
	OutcomeNoData
	// OutcomeNameError means the owner name does not exist anywhere in the
	// zone, not even as a parent of existing names (encoded as NXDOMAIN).
	OutcomeNameError
)

// String returns the textual representation of the Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "ANSWERED"
	case OutcomeNoData:
		return "NODATA"
	case OutcomeNameError:
		return "NAMEERROR"
	default:
		return "UNKNOWN"
	}
}

// Answer is the typed result of a Zone Authority lookup: the outcome plus the
// matching records (a CNAME chain followed by the terminal RRset when alias
// chasing occurred).
type Answer struct {
	Outcome Outcome
	Records []ResourceRecord
}

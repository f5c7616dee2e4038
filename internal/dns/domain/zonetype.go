package domain

// ZoneType identifies the role this server plays for a zone. The set is a
// closed enum: secondary zones are modeled but not implemented, and the
// authority constructor rejects them.
type ZoneType uint8

const (
	// ZonePrimary serves records loaded from local configuration.
	ZonePrimary ZoneType = iota
	// ZoneSecondary would mirror a primary via zone transfer; unimplemented.
	ZoneSecondary
)

// String returns the textual representation of the ZoneType.
func (t ZoneType) String() string {
	switch t {
	case ZonePrimary:
		return "primary"
	case ZoneSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

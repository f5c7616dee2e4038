package domain

import "fmt"

// ConfigurationError reports a zone record that cannot be loaded: an owner
// name outside its zone, or a type/value pair the encoders reject. It is
// raised at load time, before the server starts serving.
type ConfigurationError struct {
	Zone   string
	Record string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("zone %q: record %q: %s", e.Zone, e.Record, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Package errs defines the closed set of failure kinds that travel on the
// wire in a reply header's error field.
//
// Only the server→client direction carries kinds over the network;
// client-local conditions (ClientNotAvailable) are raised directly to the
// caller without a round trip.
package errs

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates the failure categories.
type Kind uint8

const (
	Other              Kind = iota // Unclassified failure
	NoSuchMethod                   // The named method is not present on the addressed service
	ArgumentsNotMatch              // Request body did not decode into the method's argument tuple
	ClientNotAvailable             // Client refused to register a call (closing or shut down)
	SystemIO                       // A transport-level read or write failed
)

var kindNames = map[Kind]string{
	Other:              "Other",
	NoSuchMethod:       "NoSuchMethod",
	ArgumentsNotMatch:  "ArgumentsNotMatch",
	ClientNotAvailable: "ClientNotAvailable",
	SystemIO:           "SystemIO",
}

var kindValues = map[string]Kind{
	"Other":              Other,
	"NoSuchMethod":       NoSuchMethod,
	"ArgumentsNotMatch":  ArgumentsNotMatch,
	"ClientNotAvailable": ClientNotAvailable,
	"SystemIO":           SystemIO,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Other"
}

// MarshalJSON encodes the kind as its name so the wire form stays readable
// and stable across releases.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name. Unknown names fold into Other rather
// than failing the whole header decode.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := kindValues[name]; ok {
		*k = v
	} else {
		*k = Other
	}
	return nil
}

// Error is the wire-serialisable failure carried in a reply header.
// Detail is empty for kinds that need no elaboration.
type Error struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// New builds an Error of the given kind with a formatted detail string.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "srpc: " + e.Kind.String()
	}
	return "srpc: " + e.Kind.String() + ": " + e.Detail
}

// Is reports whether target is an *Error of the same kind, so callers can
// match with errors.Is against an *Error that carries only a kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

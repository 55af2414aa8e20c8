// Package message defines the wire envelope exchanged between client and server.
//
// Three shapes travel on the stream, each as a length-prefixed JSON frame:
//
//   - Handshake: the first frame on any connection, a fixed magic number.
//   - Header:    per-call metadata: service, method, seq, optional error.
//   - Body:      the call payload: the positional argument array on a
//     request, the method's return value on a reply.
//
// A call's header and body are grouped into ONE frame whose payload is a
// two-element JSON array [Header, Body], so each call costs a single length
// prefix in either direction.
package message

import (
	"encoding/json"

	"srpc/errs"
)

// MagicNumber is the fixed handshake value. A server drops any connection
// whose first frame does not carry it.
const MagicNumber int32 = 0x37373737

// Handshake is the payload of the first frame sent by a client after
// connecting, before any call frame.
type Handshake struct {
	MagicNumber int32 `json:"magic_number"`
}

// Header carries the per-call metadata.
//
//   - On request:  Seq is the client-assigned correlation id, Error is nil.
//   - On reply:    Seq, Service and Method echo the request unchanged;
//     Error is nil on success or names the failure kind.
type Header struct {
	Service string      `json:"service"`
	Method  string      `json:"method"`
	Seq     uint64      `json:"seq"`
	Error   *errs.Error `json:"error"`
}

// Body wraps the call payload. Contents stays raw JSON so each side decodes
// it into the shape it expects: the server into the method's argument tuple,
// the client into the caller's result type.
type Body struct {
	Contents json.RawMessage `json:"contents"`
}

// NewBody marshals v into a Body. On a request v is the positional argument
// slice; on a reply it is the method's return value.
func NewBody(v any) (*Body, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Body{Contents: raw}, nil
}

// Package codec implements the length-prefixed JSON framing over a single
// connection.
//
// It solves TCP's sticky packet problem with a length prefix: every
// structured frame is an 8-byte big-endian length followed by exactly that
// many bytes of UTF-8 JSON. The receiver reads the prefix first, then reads
// the payload with io.ReadFull so partial reads can never split a frame.
//
// Frame format:
//
//	0              8
//	┌──────────────┬────────────────────┐
//	│ len (uint64) │  JSON payload ...  │
//	│  big-endian  │     len bytes      │
//	└──────────────┴────────────────────┘
//
// A codec is bound to exactly one connection. Writes are serialised by an
// internal mutex so a logical frame is never interleaved with another on the
// wire; reads are only ever performed by one goroutine per codec.
//
// The HTTP debug branch uses a distinct plain-text line mode (ReadPlain /
// WritePlain) and never mixes with structured frames on the same connection.
package codec

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"srpc/message"
)

// prefixSize is the byte width of the frame length prefix.
const prefixSize = 8

// maxFrameSize bounds a single frame's payload. A prefix beyond this is
// treated as stream corruption rather than an allocation request.
const maxFrameSize = 64 << 20

// Codec frames JSON values over one connection.
type Codec struct {
	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex // Serialises writers; concurrent frames must not interleave
}

// New binds a codec to the given connection.
func New(conn net.Conn) *Codec {
	return &Codec{
		conn: conn,
		r:    bufio.NewReader(conn),
	}
}

// Encode writes one structured frame: the JSON serialisation of v behind an
// 8-byte big-endian length prefix. The prefix and payload go out in a single
// Write so the frame hits the wire atomically with respect to other writers.
func (c *Codec) Encode(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	buf := make([]byte, prefixSize+len(payload))
	binary.BigEndian.PutUint64(buf[:prefixSize], uint64(len(payload)))
	copy(buf[prefixSize:], payload)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.conn.Write(buf); err != nil {
		return err
	}
	return nil
}

// Decode reads one structured frame into v. io.ReadFull guarantees exactly
// prefixSize bytes for the length and exactly len bytes for the payload.
func (c *Codec) Decode(v any) error {
	prefix := make([]byte, prefixSize)
	if _, err := io.ReadFull(c.r, prefix); err != nil {
		return err
	}

	length := binary.BigEndian.Uint64(prefix)
	if length > maxFrameSize {
		return fmt.Errorf("frame length %d exceeds limit %d", length, maxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

// EncodeCall writes a (header, body) pair as one structured frame whose
// payload is the two-element JSON array [header, body].
func (c *Codec) EncodeCall(h *message.Header, b *message.Body) error {
	return c.Encode([2]any{h, b})
}

// DecodeCall reads one (header, body) pair. The frame payload must parse as
// a two-element JSON array.
func (c *Codec) DecodeCall() (*message.Header, *message.Body, error) {
	var pair []json.RawMessage
	if err := c.Decode(&pair); err != nil {
		return nil, nil, err
	}
	if len(pair) != 2 {
		return nil, nil, fmt.Errorf("call frame has %d elements, want 2", len(pair))
	}

	header := &message.Header{}
	if err := json.Unmarshal(pair[0], header); err != nil {
		return nil, nil, err
	}
	body := &message.Body{}
	if err := json.Unmarshal(pair[1], body); err != nil {
		return nil, nil, err
	}
	return header, body, nil
}

// ReadPlain reads one CRLF-terminated line in plain-text mode. The returned
// line excludes the terminator.
func (c *Codec) ReadPlain() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// WritePlain writes raw bytes in plain-text mode.
func (c *Codec) WritePlain(s string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := io.WriteString(c.conn, s)
	return err
}

// Close closes the underlying connection. A reader blocked in Decode
// observes the close as a read error.
func (c *Codec) Close() error {
	return c.conn.Close()
}

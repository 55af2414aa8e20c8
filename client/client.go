// Package client implements the RPC client: a call multiplexer that lets
// many goroutines share one connection.
//
// Each call gets a unique sequence number, and a background receive pump
// continuously reads reply frames and routes them to the matching caller
// through per-call completion channels:
//
//	goroutine-1 ──Go(seq=1)──┐
//	goroutine-2 ──Go(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Go(seq=3)──┘
//
//	recv:  ←── reply(seq=2) → pending[2].Done ← reply → goroutine-2 wakes up
//
// Replies arrive in any order; demultiplexing is purely by sequence number.
package client

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"go.uber.org/zap"

	"srpc/codec"
	"srpc/errs"
	"srpc/message"
)

// Call is one in-flight request awaiting its reply.
type Call struct {
	Seq     uint64
	Service string
	Method  string
	Body    *message.Body // Reply body, set on success
	Error   *errs.Error   // Failure, set instead of Body
	Done    chan *Call    // Receives the call itself exactly once, when it completes
}

// done signals completion. Done is buffered, so the send never blocks the
// pump; the select guards against a caller-supplied channel that is already
// full.
func (call *Call) done() {
	select {
	case call.Done <- call:
	default:
	}
}

// Client multiplexes calls over one connection.
type Client struct {
	codec *codec.Codec
	log   *zap.Logger

	// sending orders the wire: held across seq assignment and the frame
	// write, so frames reach the wire in seq order.
	sending sync.Mutex

	mu       sync.Mutex // Guards seq, pending, closing, shutdown together
	seq      uint64     // Next sequence number, strictly increasing from 1
	pending  map[uint64]*Call
	closing  bool // Close was called
	shutdown bool // The receive pump observed a fatal error
}

// Dial connects to addr, sends the handshake frame, and starts the receive
// pump. The client is ready to Call when Dial returns.
func Dial(addr string) (*Client, error) {
	return DialWithLogger(addr, nil)
}

// DialWithLogger is Dial with an injected logger.
func DialWithLogger(addr string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	c := &Client{
		codec:   codec.New(conn),
		log:     log,
		seq:     1,
		pending: make(map[uint64]*Call),
	}
	if err := c.codec.Encode(&message.Handshake{MagicNumber: message.MagicNumber}); err != nil {
		conn.Close()
		return nil, err
	}

	go c.recv()
	return c, nil
}

// Close marks the client closing and closes the connection. The receive
// pump observes the closed stream and terminates any calls still pending.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return errs.New(errs.ClientNotAvailable, "already closed")
	}
	c.closing = true
	c.mu.Unlock()
	return c.codec.Close()
}

// Go starts an asynchronous call. args is the positional argument tuple;
// done receives the finished call and must be buffered (nil allocates one).
func (c *Client) Go(service, method string, args []any, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	}
	call := &Call{
		Service: service,
		Method:  method,
		Done:    done,
	}
	c.send(call, args)
	return call
}

// Call performs a synchronous call and decodes the result into reply.
// A nil reply discards the result.
func (c *Client) Call(service, method string, args []any, reply any) error {
	call := <-c.Go(service, method, args, nil).Done
	return call.Finish(reply)
}

// CallContext is Call honouring context cancellation while waiting for the
// reply. On cancellation the pending entry is dropped; a reply that still
// arrives for it is logged by the pump and discarded.
func (c *Client) CallContext(ctx context.Context, service, method string, args []any, reply any) error {
	call := c.Go(service, method, args, nil)
	select {
	case <-ctx.Done():
		c.removeCall(call.Seq)
		return ctx.Err()
	case call = <-call.Done:
		return call.Finish(reply)
	}
}

// Finish resolves a completed call into the caller's reply value: the
// call's error if it failed, otherwise the reply body decoded into reply.
// A nil reply discards the result.
func (call *Call) Finish(reply any) error {
	if call.Error != nil {
		return call.Error
	}
	if reply == nil || call.Body == nil {
		return nil
	}
	return json.Unmarshal(call.Body.Contents, reply)
}

// send registers the call and writes its frame. The sending mutex spans
// both steps so wire order matches seq order.
func (c *Client) send(call *Call, args []any) {
	if args == nil {
		args = []any{}
	}
	body, err := message.NewBody(args)
	if err != nil {
		call.Error = errs.New(errs.Other, "arguments not encodable: %v", err)
		call.done()
		return
	}

	c.sending.Lock()
	defer c.sending.Unlock()

	if regErr := c.registerCall(call); regErr != nil {
		call.Error = regErr
		call.done()
		return
	}

	header := &message.Header{
		Service: call.Service,
		Method:  call.Method,
		Seq:     call.Seq,
	}
	if err := c.codec.EncodeCall(header, body); err != nil {
		// Send-path transport failure: the connection is gone for everyone
		c.removeCall(call.Seq)
		sysErr := errs.New(errs.SystemIO, "%v", err)
		call.Error = sysErr
		call.done()
		c.terminateCalls(sysErr)
	}
}

// registerCall assigns the next sequence number and inserts the call into
// the pending map, refusing when the client is closing or shut down.
func (c *Client) registerCall(call *Call) *errs.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || c.shutdown {
		return errs.New(errs.ClientNotAvailable, "")
	}
	call.Seq = c.seq
	c.pending[call.Seq] = call
	c.seq++
	return nil
}

// removeCall atomically removes and returns the pending entry for seq,
// or nil when no call is waiting under that number.
func (c *Client) removeCall(seq uint64) *Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.pending[seq]
	delete(c.pending, seq)
	return call
}

// terminateCalls shuts the client down and wakes every pending caller with
// the broadcast error. No registration succeeds afterwards.
func (c *Client) terminateCalls(e *errs.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = true
	for seq, call := range c.pending {
		call.Error = e
		call.done()
		delete(c.pending, seq)
	}
}

// recv is the receive pump. It runs on its own goroutine from Dial until
// the connection fails, decoding replies and completing their calls.
//
// A reply whose header carries an error completes just that call; the pump
// keeps serving the connection. A reply matching no pending call is logged
// and dropped. Only a transport failure is fatal: it broadcast-terminates
// everything still pending.
func (c *Client) recv() {
	for {
		header, body, err := c.codec.DecodeCall()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()
			if !closing {
				c.log.Warn("connection read failed", zap.Error(err))
			}
			c.terminateCalls(errs.New(errs.SystemIO, "%v", err))
			return
		}

		call := c.removeCall(header.Seq)
		switch {
		case call == nil:
			c.log.Warn("reply matches no pending call", zap.Uint64("seq", header.Seq))
		case header.Error != nil:
			call.Error = header.Error
			call.done()
		default:
			call.Body = body
			call.done()
		}
	}
}

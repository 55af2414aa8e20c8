// Package server implements the RPC server: a flat registry of named
// services, a connection-handling worker pool, and the per-connection
// dispatch loop.
//
// Request processing pipeline:
//
//	Accept conn → pool.Submit(handleConn)
//	  → handshake check (magic number)
//	  → loop: DecodeCall → middleware chain → Service.Invoke → EncodeCall reply
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"srpc/codec"
	"srpc/errs"
	"srpc/message"
	"srpc/middleware"
	"srpc/workerpool"
)

// defaultWorkers is the connection-handling pool size when none is set.
const defaultWorkers = 10

// Server registers services and serves framed calls over TCP, or the debug
// page over HTTP, depending on the address protocol.
type Server struct {
	mu       sync.RWMutex       // Guards services; writers only before Run
	services map[string]Service // Flat name space: "Calc" → adapter

	workers     int
	pool        *workerpool.Pool
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc

	protocol string // "tcp" or "http", parsed from the Run address
	listener net.Listener
	lnMu     sync.Mutex
	shutdown atomic.Bool

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	log *zap.Logger
}

// NewServer creates a server with an empty service map and default settings.
func NewServer() *Server {
	return &Server{
		services: make(map[string]Service),
		workers:  defaultWorkers,
		conns:    make(map[net.Conn]struct{}),
		log:      zap.NewNop(),
	}
}

// SetLogger replaces the server's logger. Call before Run.
func (s *Server) SetLogger(log *zap.Logger) {
	if log != nil {
		s.log = log
	}
}

// SetWorkers sets the connection-handling pool size. Call before Run.
func (s *Server) SetWorkers(n int) {
	s.workers = n
}

// Use appends a middleware. Middlewares run in registration order around
// dispatch.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Register exposes a struct pointer's exported methods under the struct's
// own name via the reflection adapter.
func (s *Server) Register(rcvr any) error {
	svc, err := NewService(rcvr)
	if err != nil {
		return err
	}
	return s.RegisterService(svc.name, svc)
}

// RegisterName is Register under an explicit service name.
func (s *Server) RegisterName(name string, rcvr any) error {
	svc, err := NewService(rcvr)
	if err != nil {
		return err
	}
	return s.RegisterService(name, svc)
}

// RegisterService inserts a hand-written adapter under the given name.
// Registration happens only during configuration, before Run.
func (s *Server) RegisterService(name string, svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.services[name]; dup {
		return fmt.Errorf("rpc: service %q already registered", name)
	}
	s.services[name] = svc
	return nil
}

// Run listens on an address of the form "protocol@host:port" and serves
// until Shutdown. protocol selects the per-connection handler: "http" runs
// the debug handler, anything else (including a bare "host:port" with no
// protocol) runs the RPC dispatch loop.
func (s *Server) Run(addr string) error {
	protocol, hostport, ok := strings.Cut(addr, "@")
	if !ok {
		protocol, hostport = "tcp", addr
	}
	s.protocol = protocol

	listener, err := net.Listen("tcp", hostport)
	if err != nil {
		return err
	}
	s.lnMu.Lock()
	s.listener = listener
	s.lnMu.Unlock()

	pool, err := workerpool.New(s.workers, s.log)
	if err != nil {
		listener.Close()
		return err
	}
	s.pool = pool

	// Build the middleware chain once at startup, dispatch innermost
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)

	s.log.Info("server listening",
		zap.String("protocol", protocol),
		zap.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener; that Accept failure is expected
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		if err := s.pool.Submit(func() { s.handleConn(conn) }); err != nil {
			conn.Close()
		}
	}
}

// Addr returns the bound listen address, or nil before Run has bound it.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting, closes live connections, and waits up to
// timeout for the worker pool to drain.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdown.Store(true)
	s.lnMu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.lnMu.Unlock()

	s.connMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		if s.pool != nil {
			s.pool.Close()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("rpc: timeout waiting for connections to drain")
	}
}

// handleConn owns one accepted connection for its lifetime.
func (s *Server) handleConn(conn net.Conn) {
	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()

	defer func() {
		conn.Close()
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
	}()

	c := codec.New(conn)
	if s.protocol == "http" {
		s.serveHTTP(c)
		return
	}
	s.serveTCP(c, conn)
}

// serveTCP validates the handshake and then answers framed calls until the
// peer closes or the transport fails.
func (s *Server) serveTCP(c *codec.Codec, conn net.Conn) {
	var hs message.Handshake
	if err := c.Decode(&hs); err != nil {
		s.log.Warn("handshake read failed",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Error(err))
		return
	}
	if hs.MagicNumber != message.MagicNumber {
		// Wrong protocol on the wire: drop without reading further frames
		s.log.Warn("magic number mismatched",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Int32("got", hs.MagicNumber))
		return
	}

	ctx := context.Background()
	for {
		header, body, err := c.DecodeCall()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.shutdown.Load() {
				s.log.Warn("connection read failed", zap.Error(err))
			}
			return
		}

		resp := s.handler(ctx, &middleware.Request{
			Service: header.Service,
			Method:  header.Method,
			Seq:     header.Seq,
			Args:    body.Contents,
		})

		reply := &message.Header{
			Service: header.Service,
			Method:  header.Method,
			Seq:     header.Seq, // Same seq as the request; this is the demultiplexing key
			Error:   resp.Err,
		}
		replyBody, err := message.NewBody(resp.Result)
		if err != nil {
			// Result is not JSON-encodable; report that instead of the value
			reply.Error = errs.New(errs.Other, "result not encodable: %v", err)
			replyBody = &message.Body{Contents: []byte("null")}
		}
		if err := c.EncodeCall(reply, replyBody); err != nil {
			s.log.Warn("reply write failed", zap.Error(err))
			return
		}
	}
}

// dispatch is the innermost handler: service lookup plus adapter invoke.
// The registry lock is released before the user-supplied Invoke runs so a
// slow method cannot serialise calls to other services.
func (s *Server) dispatch(_ context.Context, req *middleware.Request) *middleware.Response {
	s.mu.RLock()
	svc, ok := s.services[req.Service]
	s.mu.RUnlock()
	if !ok {
		return &middleware.Response{
			Err: errs.New(errs.Other, "no such service '%s'", req.Service),
		}
	}

	result, callErr := svc.Invoke(req.Method, req.Args)
	return &middleware.Response{Result: result, Err: callErr}
}

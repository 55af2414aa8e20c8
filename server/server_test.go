package server

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"srpc/client"
	"srpc/codec"
	"srpc/errs"
	"srpc/message"
)

// startServer runs svr on an ephemeral port and returns its address once the
// listener is bound.
func startServer(t *testing.T, svr *Server, protocol string) string {
	t.Helper()
	go svr.Run(protocol + "@127.0.0.1:0")
	deadline := time.Now().Add(3 * time.Second)
	for svr.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind a listener")
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Cleanup(func() { svr.Shutdown(3 * time.Second) })
	return svr.Addr().String()
}

func TestServeCall(t *testing.T) {
	svr := NewServer()
	svr.SetLogger(zaptest.NewLogger(t))
	require.NoError(t, svr.Register(&Calc{}))
	addr := startServer(t, svr, "tcp")

	cli, err := client.Dial(addr)
	require.NoError(t, err)
	defer cli.Close()

	var sum int
	require.NoError(t, cli.Call("Calc", "Add", []any{2, 3}, &sum))
	require.Equal(t, 5, sum)
}

// A connection whose handshake carries the wrong magic number is dropped
// without processing any further frames.
func TestHandshakeMismatchClosesConnection(t *testing.T) {
	svr := NewServer()
	svr.SetLogger(zaptest.NewLogger(t))
	require.NoError(t, svr.Register(&Calc{}))
	addr := startServer(t, svr, "tcp")

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	c := codec.New(conn)
	require.NoError(t, c.Encode(&message.Handshake{MagicNumber: 0}))

	// The server closes its end; the next read must fail rather than
	// deliver a reply.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = c.DecodeCall()
	require.Error(t, err)
}

func TestUnknownServiceReported(t *testing.T) {
	svr := NewServer()
	svr.SetLogger(zaptest.NewLogger(t))
	require.NoError(t, svr.Register(&Calc{}))
	addr := startServer(t, svr, "tcp")

	cli, err := client.Dial(addr)
	require.NoError(t, err)
	defer cli.Close()

	callErr := cli.Call("Nope", "Add", []any{1, 2}, nil)
	var e *errs.Error
	require.ErrorAs(t, callErr, &e)
	require.Equal(t, errs.Other, e.Kind)
}

func TestRegisterNameAndDuplicate(t *testing.T) {
	svr := NewServer()
	require.NoError(t, svr.RegisterName("Math", &Calc{}))
	require.Error(t, svr.RegisterName("Math", &Calc{}))
}

func TestHTTPDebugPage(t *testing.T) {
	svr := NewServer()
	svr.SetLogger(zaptest.NewLogger(t))
	require.NoError(t, svr.Register(&Calc{}))
	addr := startServer(t, svr, "http")

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(status, "HTTP/1.1 200 OK"))

	// Walk the headers, keeping Content-Length to size the body read
	contentLength := 0
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			contentLength, err = strconv.Atoi(v)
			require.NoError(t, err)
		}
	}
	require.Greater(t, contentLength, 0)

	page := make([]byte, contentLength)
	_, err = io.ReadFull(r, page)
	require.NoError(t, err)
	require.Contains(t, string(page), "Calc")
}

func TestShutdownStopsAccepting(t *testing.T) {
	svr := NewServer()
	require.NoError(t, svr.Register(&Calc{}))
	addr := startServer(t, svr, "tcp")

	require.NoError(t, svr.Shutdown(3*time.Second))

	// The listener is gone: either the dial is refused outright, or a
	// stale connection fails on its first call.
	cli, err := client.Dial(addr)
	if err != nil {
		return
	}
	defer cli.Close()
	require.Error(t, cli.Call("Calc", "Add", []any{1, 2}, nil))
}

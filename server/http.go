package server

import (
	"fmt"
	"sort"
	"strings"

	"srpc/codec"
)

// serveHTTP is the debug handler for listeners started with the "http"
// protocol. It answers GET with a static page listing the registered
// services and ignores everything else. It shares nothing with the framed
// RPC protocol: the connection stays in plain-text mode for its lifetime.
func (s *Server) serveHTTP(c *codec.Codec) {
	for {
		line, err := c.ReadPlain()
		if err != nil {
			return
		}
		method, _, _ := strings.Cut(line, " ")
		if method != "GET" {
			continue
		}

		page := s.debugPage()
		response := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n%s",
			len(page), page)
		if err := c.WritePlain(response); err != nil {
			return
		}
	}
}

// debugPage renders the registered service names as a static HTML page.
func (s *Server) debugPage() string {
	s.mu.RLock()
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<html><head><title>SRPC Debug Page</title></head><body><h2>SRPC Services</h2><ul>")
	for _, name := range names {
		b.WriteString("<li>" + name + "</li>")
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

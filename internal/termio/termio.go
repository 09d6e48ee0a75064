/*
 * wangemu-sub000 - optional telnet front-end.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package termio gives the emulator an optional remote terminal
// transport: a single-session telnet listener that multiplexes one
// remote connection's bytes onto the keyboard/CRT byte streams, so
// the machine can be driven headlessly. Grounded on
// telnet/listener.go + telnet/multiplexer.go + telnet/telnet.go's
// Server/Start/Stop shape, narrowed from many concurrent sessions to
// the single console this machine has.
package termio

import (
	"bufio"
	"io"
	"net"
	"sync"
)

// Sink is the keyboard side: bytes read from the remote connection
// are pushed here. Kept minimal so *keyboard.Card satisfies it without
// termio importing the keyboard package.
type Sink interface {
	PushKey(b byte, isFunctionKey bool)
}

// Server is a single-session telnet front-end.
type Server struct {
	wg       sync.WaitGroup
	listener net.Listener
	shutdown chan struct{}

	sink Sink
}

// Listen starts a Server accepting one connection at a time on addr.
func Listen(addr string, sink Sink) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{listener: l, shutdown: make(chan struct{}), sink: sink}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Stop closes the listener and waits for the accept loop to exit.
func (s *Server) Stop() {
	close(s.shutdown)
	s.listener.Close()
	s.wg.Wait()
}

// Addr returns the listener's bound address, useful when addr was
// "127.0.0.1:0" and the OS chose the port.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				continue
			}
		}
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err != io.EOF {
				return
			}
			return
		}
		s.sink.PushKey(b, false)
	}
}

// CRTWriter adapts a net.Conn to an io.Writer usable as the keyboard
// card's CRT sink, so output reaches the remote session.
type CRTWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

// NewCRTWriter wraps conn.
func NewCRTWriter(conn net.Conn) *CRTWriter {
	return &CRTWriter{conn: conn}
}

func (w *CRTWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return len(p), nil
	}
	return w.conn.Write(p)
}

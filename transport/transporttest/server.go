// Package transporttest provides a scriptable SCPI instrument simulator
// for driver and transport tests. It listens on a loopback TCP socket,
// records every command it receives and answers from a configurable
// script, so driver tests can assert exact wire traffic without
// hardware on the bench.
package transporttest

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// HandlerFunc produces a reply for a received command line. Returning
// ok=false sends nothing, like an instrument swallowing a set command.
type HandlerFunc func(line string) (reply string, ok bool)

// Server simulates a SCPI instrument over TCP for testing.
type Server struct {
	lis net.Listener

	mu              sync.RWMutex
	exact           map[string]string
	commands        map[string]HandlerFunc
	fallback        HandlerFunc
	echo            bool
	replyTerminator string
	delay           time.Duration
	requests        []string
	conns           map[net.Conn]struct{}
	closed          bool

	wg sync.WaitGroup
}

// NewServer starts a simulator on a random loopback port.
func NewServer() *Server {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("transporttest: failed to listen: %v", err))
	}

	s := &Server{
		lis:             lis,
		exact:           make(map[string]string),
		commands:        make(map[string]HandlerFunc),
		replyTerminator: "\n",
		conns:           make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.serve()

	return s
}

// Addr returns the host:port the simulator listens on.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Respond registers a static reply for an exact command line.
func (s *Server) Respond(line, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exact[line] = reply
}

// RespondFunc registers a handler for every line whose first token
// matches command. Exact matches registered with Respond win.
func (s *Server) RespondFunc(command string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[command] = fn
}

// SetFallback registers a handler for lines nothing else matched.
func (s *Server) SetFallback(fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = fn
}

// SetEcho makes the simulator echo every received line before its
// reply, like instruments with a terminal-style serial interface.
func (s *Server) SetEcho(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echo = on
}

// SetReplyTerminator changes the terminator appended to replies.
func (s *Server) SetReplyTerminator(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyTerminator = term
}

// SetDelay makes every reply wait, to exercise timeout paths.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns a copy of all command lines received so far.
func (s *Server) Requests() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

// Reset clears the script and the request log.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exact = make(map[string]string)
	s.commands = make(map[string]HandlerFunc)
	s.fallback = nil
	s.echo = false
	s.delay = 0
	s.requests = nil
}

// Close stops the listener and tears down active connections.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	_ = s.lis.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.lis.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Split(scanCommandLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		s.mu.Lock()
		s.requests = append(s.requests, line)
		echo := s.echo
		delay := s.delay
		term := s.replyTerminator
		s.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if echo {
			if _, err := fmt.Fprint(conn, line, term); err != nil {
				return
			}
		}
		if reply, ok := s.lookup(line); ok {
			if _, err := fmt.Fprint(conn, reply, term); err != nil {
				return
			}
		}
	}
}

func (s *Server) lookup(line string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if reply, ok := s.exact[line]; ok {
		return reply, true
	}

	token := line
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		token = line[:i]
	}
	if fn, ok := s.commands[token]; ok {
		return fn(line)
	}

	if s.fallback != nil {
		return s.fallback(line)
	}
	return "", false
}

// scanCommandLines splits on \r, \n or \r\n so the simulator accepts
// every terminator convention the drivers use.
func scanCommandLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corey/hilite/internal/logging"
	"github.com/corey/hilite/internal/logging/logfields"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "socket")

// requestTimeout bounds a single highlight request on the server side.
const requestTimeout = 30 * time.Second

// Backend provides the daemon operations behind the protocol.
// Thread safety is the implementor's responsibility.
type Backend interface {
	// TokenizeWire runs one worker-protocol request and returns the reply bytes.
	TokenizeWire(req []byte) ([]byte, error)
	Highlight(ctx context.Context, p HighlightParams) (HighlightResult, error)
	Grammars() GrammarsResult
	// Health fills everything but Status and Uptime.
	Health() HealthResult
}

// Server is the daemon that listens on a Unix socket and serves highlight requests.
type Server struct {
	backend  Backend
	listener net.Listener
	sockPath string
	started  time.Time

	done         chan struct{}
	shutdownCh   chan struct{} // closed when a remote shutdown request is received
	shutdownOnce sync.Once
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a daemon server backed by backend.
func NewServer(backend Backend, sockPath string) *Server {
	return &Server{
		backend:    backend,
		sockPath:   sockPath,
		done:       make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
}

// Start begins listening on the Unix socket. It handles stale sockets by
// attempting a connection first: if the connection fails, the stale socket
// is removed before binding.
func (s *Server) Start() error {
	// Handle stale socket
	if _, err := os.Stat(s.sockPath); err == nil {
		conn, err := net.DialTimeout("unix", s.sockPath, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return fmt.Errorf("daemon already running at %s", s.sockPath)
		}
		log.WithField(logfields.Socket, s.sockPath).Info("Removing stale socket")
		os.Remove(s.sockPath)
	}

	ln, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln
	s.started = time.Now()

	s.wg.Add(1)
	go s.acceptLoop()

	log.WithField(logfields.Socket, s.sockPath).Info("Socket server listening")
	return nil
}

// Stop gracefully shuts down the server, closing the listener and removing the socket file.
// Idempotent: safe to call multiple times (e.g., after remote shutdown + signal).
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.sockPath)
	})
	return nil
}

// ShutdownCh returns a channel that is closed when a remote shutdown request
// is received. The daemon's main goroutine should select on this alongside
// OS signals so the process actually exits after a remote stop.
func (s *Server) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

// Addr returns the socket path the server is listening on.
func (s *Server) Addr() string {
	return s.sockPath
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 8*1024*1024) // 8MB max message

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(conn, Response{Error: "invalid request JSON"})
			continue
		}

		start := time.Now()
		resp := s.handleRequest(req)
		s.writeResponse(conn, resp)

		log.WithFields(logrus.Fields{
			logfields.Method:    req.Method,
			logfields.RequestID: req.ID,
			logfields.Duration:  time.Since(start),
		}).Debug("Handled request")

		if req.Method == MethodShutdown {
			s.shutdownOnce.Do(func() { close(s.shutdownCh) })
			return
		}
	}
}

func (s *Server) handleRequest(req Request) Response {
	switch req.Method {
	case MethodTokenize:
		return s.handleTokenize(req)
	case MethodHighlight:
		return s.handleHighlight(req)
	case MethodGrammars:
		return Response{ID: req.ID, Result: s.backend.Grammars()}
	case MethodHealth:
		return s.handleHealth(req)
	case MethodShutdown:
		return Response{ID: req.ID, Result: struct{}{}}
	default:
		return Response{ID: req.ID, Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func (s *Server) handleTokenize(req Request) Response {
	// Re-marshal params: they are the worker request verbatim
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return Response{ID: req.ID, Error: "invalid tokenize params"}
	}
	reply, err := s.backend.TokenizeWire(paramsJSON)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	return Response{ID: req.ID, Result: json.RawMessage(reply)}
}

func (s *Server) handleHighlight(req Request) Response {
	// Re-marshal params to decode into HighlightParams
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return Response{ID: req.ID, Error: "invalid highlight params"}
	}
	var params HighlightParams
	if err := json.Unmarshal(paramsJSON, &params); err != nil {
		return Response{ID: req.ID, Error: "invalid highlight params"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result, err := s.backend.Highlight(ctx, params)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	return Response{ID: req.ID, Result: result}
}

func (s *Server) handleHealth(req Request) Response {
	h := s.backend.Health()
	h.Status = "ok"
	h.Uptime = time.Since(s.started).Round(time.Second).String()
	return Response{ID: req.ID, Result: h}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.WithError(err).Warn("Failed to marshal response")
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}

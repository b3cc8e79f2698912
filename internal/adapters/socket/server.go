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

	"go.uber.org/zap"
)

// Commands is what the daemon exposes over the socket. Implementations
// serialize calls onto their own loop; the server calls them from one
// goroutine per connection.
type Commands interface {
	Run(ctx context.Context, document, url string) (RunResult, error)
	Watch(ctx context.Context, document, url string) (StatusResult, error)
	Stop() StatusResult
	Status() StatusResult
	History(document string, limit int) (HistoryResult, error)
	ProjectRoot() string
}

// Server is the daemon that listens on a Unix socket and serves requests.
type Server struct {
	cmds     Commands
	log      *zap.Logger
	listener net.Listener
	sockPath string
	started  time.Time

	ctx    context.Context
	cancel context.CancelFunc

	done         chan struct{}
	shutdownCh   chan struct{} // closed when a remote shutdown request is received
	shutdownOnce sync.Once
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a daemon server dispatching to cmds. log may be nil.
func NewServer(sockPath string, cmds Commands, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cmds:       cmds,
		log:        log,
		sockPath:   sockPath,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
}

// Start begins listening on the Unix socket. It handles stale sockets by
// attempting a connection first. If the connection fails, the stale socket
// is removed before binding.
func (s *Server) Start() error {
	if _, err := os.Stat(s.sockPath); err == nil {
		conn, err := net.DialTimeout("unix", s.sockPath, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return fmt.Errorf("daemon already running at %s", s.sockPath)
		}
		// Stale socket, remove it
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

	return nil
}

// Stop gracefully shuts down the server, closing the listener and removing the socket file.
// In-flight requests see their context cancelled.
// Idempotent: safe to call multiple times (e.g., after remote shutdown + signal).
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancel()
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

	// Unblock the scanner when the server stops.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-s.done:
			conn.Close()
		case <-finished:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB max message

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

		resp := s.handleRequest(req)
		if resp.Error != "" {
			s.log.Debug("request failed", zap.String("method", req.Method), zap.String("error", resp.Error))
		}
		s.writeResponse(conn, resp)

		if req.Method == MethodShutdown {
			s.shutdownOnce.Do(func() { close(s.shutdownCh) })
			return
		}
	}
}

func (s *Server) handleRequest(req Request) Response {
	switch req.Method {
	case MethodRun:
		return s.handleRun(req)
	case MethodWatch:
		return s.handleWatch(req)
	case MethodStop:
		return Response{ID: req.ID, Result: s.cmds.Stop()}
	case MethodStatus:
		return Response{ID: req.ID, Result: s.cmds.Status()}
	case MethodHistory:
		return s.handleHistory(req)
	case MethodHealth:
		return s.handleHealth(req)
	case MethodShutdown:
		return Response{ID: req.ID, Result: struct{}{}}
	default:
		return Response{ID: req.ID, Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func (s *Server) handleRun(req Request) Response {
	var params TargetParams
	if err := decodeInto(req.Params, &params); err != nil || params.Document == "" {
		return Response{ID: req.ID, Error: "invalid run params"}
	}
	result, err := s.cmds.Run(s.ctx, params.Document, params.URL)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	return Response{ID: req.ID, Result: result}
}

func (s *Server) handleWatch(req Request) Response {
	var params TargetParams
	if err := decodeInto(req.Params, &params); err != nil || params.Document == "" {
		return Response{ID: req.ID, Error: "invalid watch params"}
	}
	result, err := s.cmds.Watch(s.ctx, params.Document, params.URL)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	return Response{ID: req.ID, Result: result}
}

func (s *Server) handleHistory(req Request) Response {
	var params HistoryParams
	if req.Params != nil {
		if err := decodeInto(req.Params, &params); err != nil {
			return Response{ID: req.ID, Error: "invalid history params"}
		}
	}
	if params.Limit <= 0 {
		params.Limit = 20
	}
	result, err := s.cmds.History(params.Document, params.Limit)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	return Response{ID: req.ID, Result: result}
}

func (s *Server) handleHealth(req Request) Response {
	return Response{ID: req.ID, Result: HealthResult{
		Status:        "ok",
		SessionStatus: s.cmds.Status().Status,
		ProjectRoot:   s.cmds.ProjectRoot(),
		Uptime:        time.Since(s.started).Truncate(time.Second).String(),
	}}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}

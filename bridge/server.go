package bridge

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"

	"pushrelay/push"
)

// Error codes returned in Response.Code.
const (
	CodeParse       = -32700
	CodeInvalid     = -32602
	CodeUnknownType = -32601
)

// Server listens on a Unix socket and routes messages to a Router.
type Server struct {
	router   Router
	listener net.Listener
	sockPath string
	logger   *zap.Logger
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer creates a Server bound to sockPath, or to SocketPath when empty.
func NewServer(sockPath string, router Router, logger *zap.Logger) (*Server, error) {
	if sockPath == "" {
		sockPath = SocketPath()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Remove stale socket file.
	_ = os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		router:   router,
		listener: listener,
		sockPath: sockPath,
		logger:   logger,
		conns:    map[net.Conn]struct{}{},
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.sockPath }

// Serve accepts connections and handles them. It returns nil once Close was
// called.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close shuts down the server: closes the listener and open connections,
// waits for handlers, removes the socket.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	_ = os.Remove(s.sockPath)
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	// Allow up to 10MB lines.
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		resp := s.handleMessage(scanner.Bytes())

		data, err := json.Marshal(resp)
		if err != nil {
			data, _ = json.Marshal(Response{
				Type:    "Error",
				Code:    -1,
				Message: err.Error(),
			})
		}
		data = append(data, '\n')

		if _, err := conn.Write(data); err != nil {
			return
		}
	}
}

func (s *Server) handleMessage(line []byte) Response {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Response{
			Type:    "Error",
			Code:    CodeParse,
			Message: "parse error: " + err.Error(),
		}
	}

	switch msg.Type {
	case TypeOnline:
		s.router.Online(msg.Value)
	case TypeLogin:
		s.router.Login(msg.Value)
	case TypeBadge:
		s.router.Badge(msg.Count)
	case TypePrompt:
		s.router.Prompt()
	case TypePush, TypeReplay, TypeClip:
		kind := msg.Kind
		if kind == "" {
			kind = push.KindPush
		}
		item, err := push.Parse(kind, msg.Item)
		if err != nil {
			return Response{ID: msg.ID, Type: "Error", Code: CodeInvalid, Message: err.Error()}
		}
		switch msg.Type {
		case TypeClip:
			s.router.Clip(item)
		case TypeReplay:
			s.router.Replay(item)
		default:
			s.router.Push(item, msg.Sound)
		}
	default:
		s.logger.Warn("bridge: unknown message type", zap.String("type", msg.Type))
		return Response{
			ID:      msg.ID,
			Type:    "Error",
			Code:    CodeUnknownType,
			Message: "unknown message type: " + msg.Type,
		}
	}
	return Response{ID: msg.ID, Type: "OK"}
}

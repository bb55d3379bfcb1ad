package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/peripheral"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
)

// Server errors.
var (
	// ErrServerRunning indicates Start was called twice.
	ErrServerRunning = errors.New("server already running")

	// ErrServerNotRunning indicates Stop was called on a stopped server.
	ErrServerNotRunning = errors.New("server not running")
)

// ServerConfig configures a bridge server.
type ServerConfig struct {
	// Address to listen on. Default ":0".
	Address string

	// Device answers every frame received.
	Device *peripheral.Device

	// ResponseDelay simulates radio latency before each response.
	ResponseDelay time.Duration

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger

	// Protocol receives frame capture events. Nil disables capture.
	Protocol log.Logger

	// OnConnect is called when a central connects.
	OnConnect func(connID string, remote net.Addr)

	// OnDisconnect is called when the central goes away.
	OnDisconnect func(connID string)
}

// Server exposes one simulated controller over TCP. Like a BLE peripheral
// it serves a single central at a time; further connections are refused
// until the current one closes.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger

	listener net.Listener
	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	active net.Conn
}

// NewServer creates a server for cfg.Device.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Device == nil {
		return nil, errors.New("bridge: device is required")
	}
	if cfg.Address == "" {
		cfg.Address = ":0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		cfg:    cfg,
		logger: logger.With("device", cfg.Device.ID()),
	}, nil
}

// Start begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}

	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("bridge listening", "addr", ln.Addr().String())
	return nil
}

// Stop closes the listener and the active connection, then waits for the
// connection goroutines.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return ErrServerNotRunning
	}

	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	if s.active != nil {
		s.active.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Connected reports whether a central is attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Kick closes the active connection, simulating link loss.
func (s *Server) Kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active.Close()
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.logger.Warn("accept failed", "error", err)
			}
			continue
		}

		s.mu.Lock()
		busy := s.active != nil
		if !busy {
			s.active = conn
		}
		s.mu.Unlock()

		if busy {
			s.logger.Debug("refusing second central", "remote", conn.RemoteAddr().String())
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.serve(conn)
	}
}

// serve hands each frame to the device and writes back its response.
func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.NewString()
	emitter := log.NewEmitter(s.cfg.Protocol, connID, s.cfg.Device.ID())
	framer := transport.NewFramer(conn, emitter)

	s.logger.Info("central connected", "conn", connID, "remote", conn.RemoteAddr().String())
	emitter.State(log.StateEntityConnection, "", "CONNECTED", conn.RemoteAddr().String())
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(connID, conn.RemoteAddr())
	}

	for {
		frame, err := framer.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && s.running.Load() {
				s.logger.Debug("read failed", "conn", connID, "error", err)
			}
			break
		}

		if s.cfg.ResponseDelay > 0 {
			select {
			case <-time.After(s.cfg.ResponseDelay):
			case <-s.ctx.Done():
			}
		}

		resp := s.cfg.Device.Handle(frame)
		if resp == nil {
			continue
		}
		if err := framer.WriteFrame(resp); err != nil {
			s.logger.Debug("write failed", "conn", connID, "error", err)
			break
		}
	}

	conn.Close()
	s.cfg.Device.LinkLost()

	s.mu.Lock()
	if s.active == conn {
		s.active = nil
	}
	s.mu.Unlock()

	s.logger.Info("central disconnected", "conn", connID)
	emitter.State(log.StateEntityConnection, "CONNECTED", "DISCONNECTED", "")
	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(connID)
	}
}

// Package udp is the datagram transport in front of the EGM interface: one socket,
// one read loop, one reply per handled datagram.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qcr/abb-libegm/internal/ports"
)

const (
	// DefaultPort is the port RobotWare's EGM UDPUC device is usually configured with.
	DefaultPort = 6510

	socketBufferSize = 2 * 1024 * 1024
	datagramSize     = 65536
	readTimeout      = 100 * time.Millisecond
)

type Config struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// Server reads EGM datagrams and hands them to a ports.Handler. The handler is only
// ever called from the read loop.
type Server struct {
	cfg     Config
	handler ports.Handler
	obs     ports.Observability
	onBound func(bool)

	mu      sync.RWMutex
	conn    *net.UDPConn
	running atomic.Bool
	wg      sync.WaitGroup
	done    chan struct{}

	packets atomic.Uint64
	errs    atomic.Uint64
}

type Option func(*Server)

// WithBoundHook is called with true once the socket is bound and with false when the
// server stops. The interface uses it as its initialized flag.
func WithBoundHook(fn func(bool)) Option {
	return func(s *Server) { s.onBound = fn }
}

func WithObservability(obs ports.Observability) Option {
	return func(s *Server) { s.obs = obs }
}

func NewServer(cfg Config, h ports.Handler, opts ...Option) *Server {
	s := &Server{cfg: cfg, handler: h, onBound: func(bool) {}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the socket and launches the read loop. A failed bind is returned and
// leaves the server stopped.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.cfg.Address(), err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address(), err)
	}
	if err := conn.SetReadBuffer(socketBufferSize); err != nil && s.obs != nil {
		s.obs.LogError("could not set udp read buffer", err, ports.Field{Key: "bytes", Value: socketBufferSize})
	}

	s.conn = conn
	s.done = make(chan struct{})
	s.running.Store(true)
	s.onBound(true)
	if s.obs != nil {
		s.obs.LogInfo("egm endpoint listening", ports.Field{Key: "addr", Value: conn.LocalAddr().String()})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		s.readLoop(ctx, conn)
	}()
	return nil
}

// Addr is the bound local address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop closes the socket and waits up to timeout for the read loop to exit.
func (s *Server) Stop(timeout time.Duration) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	conn, done := s.conn, s.done
	s.conn = nil
	s.mu.Unlock()

	_ = conn.Close()
	s.onBound(false)

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("udp server: stop timed out after %v", timeout)
	}
}

// Done is closed when the read loop has exited.
func (s *Server) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Packets is the number of datagrams handed to the handler.
func (s *Server) Packets() uint64 { return s.packets.Load() }

// Errors is the number of socket read/write failures.
func (s *Server) Errors() uint64 { return s.errs.Load() }

func (s *Server) readLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, datagramSize)

	for s.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) || !s.running.Load() {
				return
			}
			s.socketError("udp read failed", err)
			continue
		}
		if n == 0 {
			continue
		}

		s.packets.Add(1)
		if s.obs != nil {
			s.obs.IncCounter(ports.MetricBytesReceived, float64(n))
		}

		reply := s.handler.OnMessage(buf[:n])
		if len(reply) == 0 {
			continue
		}
		if _, err := conn.WriteToUDP(reply, remote); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.socketError("udp reply failed", err)
		}
	}
}

func (s *Server) socketError(msg string, err error) {
	s.errs.Add(1)
	if s.obs != nil {
		s.obs.IncCounter(ports.MetricSocketErrors, 1)
		s.obs.LogError(msg, err)
	}
}

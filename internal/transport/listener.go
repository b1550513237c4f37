package transport

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
)

// Listener binds a TCP port and hands every accepted connection to the
// coordinator as a framed Line transport.
type Listener struct {
	addr       string
	logger     *slog.Logger
	queueDepth int

	ln       net.Listener
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewListener prepares a listener for host:port. An empty host binds the
// wildcard address.
func NewListener(host string, port int, logger *slog.Logger, queueDepth int) *Listener {
	return &Listener{
		addr:       net.JoinHostPort(host, strconv.Itoa(port)),
		logger:     logger,
		queueDepth: queueDepth,
		quit:       make(chan struct{}),
	}
}

// Start binds the passive socket.
func (s *Listener) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("listening for connections", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address as "ip:port". Empty before Start.
func (s *Listener) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve accepts connections until Stop, invoking handle with a fresh Line
// per established connection. It returns once the accept loop exits.
func (s *Listener) Serve(handle func(*Line)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.ln.Accept()
			if err != nil {
				select {
				case <-s.quit:
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed", "err", err)
				continue
			}
			s.logger.Info("connection established", "remote", conn.RemoteAddr().String())
			handle(NewLine(conn, s.logger, s.queueDepth))
		}
	}()
}

// Stop is idempotent; it terminates any in-flight accept and waits for
// the accept loop to drain.
func (s *Listener) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.ln != nil {
			_ = s.ln.Close()
		}
	})
	s.wg.Wait()
}

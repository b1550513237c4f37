// Package transport frames a TCP connection as a bidirectional stream of
// newline-terminated text messages.
package transport

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Status classifies the outcome of a receive.
type Status int

const (
	StatusOK        Status = iota // a complete line was delivered
	StatusTransient               // recoverable I/O hiccup, keep reading
	StatusClosed                  // terminal: peer hung up or Close was called
)

// DefaultQueueDepth bounds the outbound mailbox of a connection. A client
// that falls this far behind starts losing broadcasts rather than
// stalling the commit path.
const DefaultQueueDepth = 256

type readResult struct {
	line   string
	status Status
}

// Line owns one accepted connection. Sends are enqueued and written by a
// single writer goroutine in FIFO order; received lines are delivered in
// arrival order with CR bytes elided, so CRLF and LF framings are
// equivalent. Close is idempotent and fails all pending receives.
type Line struct {
	id     uuid.UUID
	conn   net.Conn
	logger *slog.Logger

	sendCh chan string
	recvCh chan readResult
	done   chan struct{}

	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewLine wraps conn and starts its read and write pumps. queueDepth <= 0
// selects DefaultQueueDepth.
func NewLine(conn net.Conn, logger *slog.Logger, queueDepth int) *Line {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	l := &Line{
		id:     uuid.New(),
		conn:   conn,
		logger: logger,
		sendCh: make(chan string, queueDepth),
		recvCh: make(chan readResult, 16),
		done:   make(chan struct{}),
	}
	go l.writeLoop()
	go l.readLoop()
	return l
}

// ID identifies the connection for registries and logs.
func (l *Line) ID() uuid.UUID { return l.id }

// RemoteAddr is the peer address as "ip:port".
func (l *Line) RemoteAddr() string { return l.conn.RemoteAddr().String() }

// Dropped is the number of messages discarded because the transport was
// closed or its queue saturated.
func (l *Line) Dropped() uint64 { return l.dropped.Load() }

// Send enqueues msg for transmission and returns immediately. A newline
// is appended when missing. Messages to a closed or saturated transport
// are dropped and counted; delivery is FIFO otherwise.
func (l *Line) Send(msg string) {
	select {
	case <-l.done:
		l.dropped.Add(1)
		return
	default:
	}

	select {
	case l.sendCh <- msg:
	default:
		l.dropped.Add(1)
		l.logger.Warn("slow consumer, dropping message",
			"conn_id", l.id, "remote", l.RemoteAddr())
	}
}

// ReadLine blocks for the next complete line, terminator stripped. After
// Close, or once the peer hangs up, every call returns StatusClosed.
func (l *Line) ReadLine() (string, Status) {
	select {
	case r := <-l.recvCh:
		return r.line, r.status
	case <-l.done:
		return "", StatusClosed
	}
}

// Close transitions the transport to its terminal state: pending and
// future receives fail with StatusClosed, new sends are discarded, and
// the socket is closed exactly once.
func (l *Line) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

func (l *Line) writeLoop() {
	for {
		select {
		case <-l.done:
			return
		case msg := <-l.sendCh:
			if !strings.HasSuffix(msg, "\n") {
				msg += "\n"
			}
			if _, err := l.conn.Write([]byte(msg)); err != nil {
				l.logger.Debug("write failed", "conn_id", l.id, "err", err)
				l.Close()
				return
			}
		}
	}
}

func (l *Line) readLoop() {
	br := bufio.NewReader(l.conn)
	for {
		raw, err := br.ReadString('\n')
		if err != nil {
			st := classify(err)
			if !l.deliver(readResult{status: st}) || st == StatusClosed {
				return
			}
			continue
		}
		line := strings.ReplaceAll(raw, "\r", "")
		line = strings.TrimSuffix(line, "\n")
		if !l.deliver(readResult{line: line, status: StatusOK}) {
			return
		}
	}
}

func (l *Line) deliver(r readResult) bool {
	select {
	case l.recvCh <- r:
		return true
	case <-l.done:
		return false
	}
}

// classify maps a read error onto the receive status taxonomy. A zero-byte
// read (EOF) and a locally closed socket are terminal; timeouts are the
// transient case.
func classify(err error) Status {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return StatusTransient
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return StatusClosed
	}
	return StatusClosed
}

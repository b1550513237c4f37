// Package tcp runs the primary line-protocol surface: one goroutine per
// accepted connection reads framed lines and feeds the coordinator.
package tcp

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/collabsheet/sheet-service/internal/service"
	"github.com/collabsheet/sheet-service/internal/transport"
)

// Handler owns the listener and every live TCP transport.
type Handler struct {
	coord    *service.Coordinator
	listener *transport.Listener
	logger   *slog.Logger

	conns sync.Map
	wg    sync.WaitGroup
}

// NewHandler builds the TCP surface over the given listener.
func NewHandler(coord *service.Coordinator, listener *transport.Listener, logger *slog.Logger) *Handler {
	return &Handler{coord: coord, listener: listener, logger: logger}
}

// Start binds the port and begins accepting connections.
func (h *Handler) Start() error {
	if err := h.listener.Start(); err != nil {
		return err
	}
	h.listener.Serve(h.attach)
	return nil
}

// Stop unbinds the port, closes every client transport and waits for the
// per-connection loops to drain. Idempotent.
func (h *Handler) Stop() {
	h.listener.Stop()
	h.conns.Range(func(_, v any) bool {
		v.(*transport.Line).Close()
		return true
	})
	h.wg.Wait()
}

func (h *Handler) attach(line *transport.Line) {
	h.conns.Store(line.ID(), line)
	h.wg.Add(1)
	go h.serve(line)
}

// serve is the receive-dispatch loop of one connection. Commands are
// processed serially: the next line is not read until the previous
// command has returned.
func (h *Handler) serve(line *transport.Line) {
	defer h.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in connection loop",
				"remote", line.RemoteAddr(), "err", r, "stack", string(debug.Stack()))
			h.coord.Detach(line)
			line.Close()
		}
	}()

	for {
		msg, status := line.ReadLine()
		switch status {
		case transport.StatusOK:
			h.coord.Dispatch(line, msg)
		case transport.StatusTransient:
			h.coord.HandleTransient(line)
		case transport.StatusClosed:
			h.coord.Detach(line)
			h.conns.Delete(line.ID())
			line.Close()
			return
		}
	}
}

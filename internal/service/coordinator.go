// Package service implements the protocol semantics: the coordinator
// multiplexes client connections over the username registry and the
// document hub, mapping wire commands to session operations.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/collabsheet/sheet-service/internal/domain/model"
	"github.com/collabsheet/sheet-service/internal/domain/registry"
)

// Wire texts for error replies. The exact strings are part of the
// protocol; existing clients match on them.
const (
	msgAlreadyConnected  = "You are already connected to a Spreadsheet: you must connect to a new Spreadsheet using a new connection."
	msgLoadFailed        = "The spreadsheet could not be loaded correctly."
	msgDuplicateAttach   = "You are already connected to this spreadsheet."
	msgRegisterUnbound   = "You must be connected to a spreadsheet in order to register a user name."
	msgDuplicateRegister = "The username you are trying to register is already registered."
	msgEditUnbound       = "You must be connected to a spreadsheet in order to use an edit command."
	msgUndoUnbound       = "You must be connected to a spreadsheet in order to use an undo command."
	msgUndoFailed        = "Your undo command was unable to be processed."
	msgIOError           = "An error occurred while sending or receiving data."
)

type commandFunc func(c registry.Client, args string)

// Coordinator routes one command at a time per connection. Each registry
// it owns has its own mutex, held only for single lookups and never
// across I/O or another lock, so unrelated sessions do not contend.
type Coordinator struct {
	users  *UserRegistry
	hub    *registry.Hub
	logger *slog.Logger

	routes map[string]commandFunc

	mu       sync.Mutex
	bindings map[uuid.UUID]*registry.Session

	stopOnce sync.Once
}

// NewCoordinator wires the dispatch table.
func NewCoordinator(users *UserRegistry, hub *registry.Hub, logger *slog.Logger) *Coordinator {
	co := &Coordinator{
		users:    users,
		hub:      hub,
		logger:   logger,
		bindings: make(map[uuid.UUID]*registry.Session),
	}
	co.routes = map[string]commandFunc{
		model.CmdConnect:  co.handleConnect,
		model.CmdRegister: co.handleRegister,
		model.CmdCell:     co.handleCell,
		model.CmdUndo:     co.handleUndo,
	}
	return co
}

// Dispatch handles one received line. The first space-delimited token
// selects the command (case-sensitive, lowercase); the remainder is the
// verbatim argument string. Unknown commands echo as a code 2 error.
func (co *Coordinator) Dispatch(c registry.Client, line string) {
	co.logger.Debug("command received", "remote", c.RemoteAddr(), "line", line)

	cmd, args := model.SplitCommand(line)
	fn, ok := co.routes[cmd]
	if !ok {
		c.Send(model.ErrorLine(model.ErrCodeBadCommand, cmd))
		return
	}
	fn(c, args)
}

// HandleTransient reports a recoverable I/O problem to the client; the
// connection stays up and receives continue.
func (co *Coordinator) HandleTransient(c registry.Client) {
	c.Send(model.ErrorLine(model.ErrCodeIO, msgIOError))
}

// Detach cleans up after a closed connection: the client leaves its
// session, and a session left without participants is saved and
// destroyed.
func (co *Coordinator) Detach(c registry.Client) {
	co.mu.Lock()
	sess, bound := co.bindings[c.ID()]
	delete(co.bindings, c.ID())
	co.mu.Unlock()

	if bound {
		co.hub.Release(sess, c)
	}
	co.logger.Info("connection closed", "remote", c.RemoteAddr())
}

// Stats exposes the hub snapshot for the operational endpoint.
func (co *Coordinator) Stats() model.HubStats {
	return co.hub.Stats()
}

// Stop saves every open document, rewrites the users file and clears the
// per-connection state. Safe to invoke twice; transports are closed by
// their handlers.
func (co *Coordinator) Stop(ctx context.Context) error {
	var err error
	co.stopOnce.Do(func() {
		if herr := co.hub.Shutdown(ctx); herr != nil {
			err = herr
		}
		if uerr := co.users.SaveAll(); uerr != nil && err == nil {
			err = uerr
		}
		co.mu.Lock()
		co.bindings = make(map[uuid.UUID]*registry.Session)
		co.mu.Unlock()
	})
	return err
}

func (co *Coordinator) session(c registry.Client) (*registry.Session, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	sess, ok := co.bindings[c.ID()]
	return sess, ok
}

// handleConnect opens or creates the named document and attaches the
// connection. Preconditions: the connection is unbound and the username
// is recognized.
func (co *Coordinator) handleConnect(c registry.Client, args string) {
	if _, bound := co.session(c); bound {
		c.Send(model.ErrorLine(model.ErrCodeBadCommand, msgAlreadyConnected))
		return
	}

	username, sheet := model.SplitField(args)
	if !co.users.Contains(username) {
		c.Send(model.ErrorLine(model.ErrCodeUsername, username))
		return
	}

	sess, err := co.hub.Open(sheet)
	if err != nil {
		co.logger.Error("document open failed", "document", sheet, "err", err)
		c.Send(model.ErrorLine(model.ErrCodeIO, msgLoadFailed))
		return
	}

	// AddClient delivers the `connected N` line and the initial cell
	// burst atomically with respect to concurrent edits.
	if !sess.AddClient(c) {
		c.Send(model.ErrorLine(model.ErrCodePrecondition, msgDuplicateAttach))
		return
	}

	co.mu.Lock()
	co.bindings[c.ID()] = sess
	co.mu.Unlock()

	co.logger.Info("client connected",
		"username", username, "document", sheet, "remote", c.RemoteAddr())
}

// handleRegister records a new username. No positive acknowledgement is
// sent on success; existing clients depend on the silence.
func (co *Coordinator) handleRegister(c registry.Client, args string) {
	if _, bound := co.session(c); !bound {
		c.Send(model.ErrorLine(model.ErrCodePrecondition, msgRegisterUnbound))
		return
	}

	username, _ := model.SplitField(args)
	if !co.users.Register(username) {
		c.Send(model.ErrorLine(model.ErrCodeUsername, msgDuplicateRegister))
		return
	}
	co.logger.Info("username registered", "username", username)
}

// handleCell applies one edit; a circular dependency is reported to the
// initiating connection only and nothing is broadcast.
func (co *Coordinator) handleCell(c registry.Client, args string) {
	sess, bound := co.session(c)
	if !bound {
		c.Send(model.ErrorLine(model.ErrCodePrecondition, msgEditUnbound))
		return
	}

	name, contents := model.SplitField(args)
	if !sess.EditCell(name, contents) {
		c.Send(model.ErrorLine(model.ErrCodeCircular,
			"When trying to edit cell "+name+", a circular dependency occurred: the edit was not made."))
	}
}

// handleUndo reverses the most recent edit of the bound document.
func (co *Coordinator) handleUndo(c registry.Client, _ string) {
	sess, bound := co.session(c)
	if !bound {
		c.Send(model.ErrorLine(model.ErrCodePrecondition, msgUndoUnbound))
		return
	}

	if !sess.UndoAll() {
		c.Send(model.ErrorLine(model.ErrCodePrecondition, msgUndoFailed))
	}
}

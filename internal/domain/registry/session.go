// Package registry holds the in-memory state of open documents.
//
// Every open spreadsheet is represented by an isolated Session that owns
// the document's cell map, its formula dependency graph, its undo history
// and the set of attached client transports. A Hub keyed by document name
// creates sessions lazily on first connect and reclaims them when the
// last participant leaves.
package registry

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/collabsheet/sheet-service/internal/domain/graph"
	"github.com/collabsheet/sheet-service/internal/domain/model"
)

// Client is one attached transport as the session sees it. Send must be
// non-blocking; a disconnected client silently loses its copy.
type Client interface {
	ID() uuid.UUID
	Send(msg string)
	RemoteAddr() string
}

// DocumentStore abstracts document persistence for sessions.
type DocumentStore interface {
	OpenOrCreate(name string) ([]model.CellEntry, error)
	SaveDocument(name string, cells map[string]string) error
}

// EditPublisher receives a copy of every committed edit for the
// observational feed. Implementations must not block.
type EditPublisher interface {
	PublishEdit(ev model.EditEvent)
}

// Session is the state of one open document.
//
// Two locks: clientsMu guards the attached set, cellsMu guards cells,
// graph and history. The cells lock is held across the dependency
// replacement, the map update, the history push and the broadcast loop,
// so every attached client observes edits in commit order. It is not held
// across saves.
type Session struct {
	name   string
	store  DocumentStore
	refs   *model.RefCache
	feed   EditPublisher
	logger *slog.Logger

	clientsMu sync.RWMutex
	clients   map[uuid.UUID]Client

	cellsMu sync.Mutex
	cells   map[string]string
	graph   *graph.Dependency
	history []model.CellEntry
	loaded  bool
}

// NewSession constructs an empty session for the named document. It does
// not load the document or attach any clients.
func NewSession(name string, store DocumentStore, refs *model.RefCache, feed EditPublisher, logger *slog.Logger) *Session {
	return &Session{
		name:    name,
		store:   store,
		refs:    refs,
		feed:    feed,
		logger:  logger.With("document", name),
		clients: make(map[uuid.UUID]Client),
		cells:   make(map[string]string),
		graph:   graph.New(),
	}
}

// Name is the document's file-system name.
func (s *Session) Name() string { return s.name }

// Load reads the document from disk into the cell map and dependency
// graph, creating an empty file when none exists. It is idempotent: a
// session that already holds state is not reloaded.
func (s *Session) Load() error {
	s.cellsMu.Lock()
	defer s.cellsMu.Unlock()

	if s.loaded || len(s.cells) > 0 || len(s.history) > 0 {
		return nil
	}

	entries, err := s.store.OpenOrCreate(s.name)
	if err != nil {
		return err
	}
	for _, e := range entries {
		// A cycle in a hand-edited file leaves that cell unset.
		if !s.updateCellLocked(model.NormalizeCellName(e.Name), e.Contents) {
			s.logger.Warn("skipping cell with circular dependency on load", "cell", e.Name)
		}
	}
	s.loaded = true
	return nil
}

// Save writes the current cell map to disk. Best effort: it runs without
// the cells lock, so it may observe the post-commit state of a later edit,
// which is fine because every successful edit is followed by its own save.
func (s *Session) Save() error {
	s.cellsMu.Lock()
	snapshot := make(map[string]string, len(s.cells))
	for n, c := range s.cells {
		snapshot[n] = c
	}
	s.cellsMu.Unlock()

	return s.store.SaveDocument(s.name, snapshot)
}

// AddClient attaches c and sends it the initial sync: a `connected N`
// line followed by one `cell` line per non-absent cell. Attaching the
// same transport twice reports false. The sync is atomic with respect to
// concurrent edits, so N always matches the burst.
func (s *Session) AddClient(c Client) bool {
	s.cellsMu.Lock()
	defer s.cellsMu.Unlock()

	s.clientsMu.Lock()
	if _, attached := s.clients[c.ID()]; attached {
		s.clientsMu.Unlock()
		return false
	}
	s.clients[c.ID()] = c
	s.clientsMu.Unlock()

	c.Send(model.ConnectedLine(len(s.cells)))
	for name, contents := range s.cells {
		c.Send(model.CellLine(name, contents))
	}
	s.logger.Info("client attached", "conn_id", c.ID(), "remote", c.RemoteAddr())
	return true
}

// RemoveClient detaches c, reporting whether it was attached.
func (s *Session) RemoveClient(c Client) bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if _, attached := s.clients[c.ID()]; !attached {
		return false
	}
	delete(s.clients, c.ID())
	return true
}

// UserCount is the number of currently attached clients.
func (s *Session) UserCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// CellCount is the number of non-absent cells.
func (s *Session) CellCount() int {
	s.cellsMu.Lock()
	defer s.cellsMu.Unlock()
	return len(s.cells)
}

// EditCell atomically applies one edit: the dependency graph is updated
// first and a circular dependency rejects the whole edit, otherwise the
// cell map changes, the previous value is pushed onto the undo stack and
// the new value is broadcast to every attached client in commit order.
// Reports false only on a cycle.
func (s *Session) EditCell(name, contents string) bool {
	name = model.NormalizeCellName(name)

	s.cellsMu.Lock()
	old := s.cells[name]
	if !s.updateCellLocked(name, contents) {
		s.cellsMu.Unlock()
		return false
	}
	s.history = append(s.history, model.CellEntry{Name: name, Contents: old})
	s.broadcastLocked(name, contents)
	s.cellsMu.Unlock()

	s.saveAfterEdit()
	s.publish(name, contents, model.OriginEdit)
	return true
}

// UndoAll reverses the most recent edit, broadcasting and saving exactly
// like a normal edit. Reports false when there is nothing to undo. The
// name is historical: one call reverses one edit.
func (s *Session) UndoAll() bool {
	s.cellsMu.Lock()
	if len(s.history) == 0 {
		s.cellsMu.Unlock()
		return false
	}
	last := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]

	// Restoring a previously valid value cannot introduce a cycle.
	s.updateCellLocked(last.Name, last.Contents)
	s.broadcastLocked(last.Name, last.Contents)
	s.cellsMu.Unlock()

	s.saveAfterEdit()
	s.publish(last.Name, last.Contents, model.OriginUndo)
	return true
}

// updateCellLocked rewires the dependency graph for the new contents and
// updates the cell map. Empty contents delete the cell. Reports false,
// leaving graph and map untouched, when the new references would close a
// cycle. Caller holds cellsMu.
func (s *Session) updateCellLocked(name, contents string) bool {
	refs := mapset.NewThreadUnsafeSet[string]()
	for _, r := range s.refs.Refs(contents) {
		refs.Add(r)
	}

	if !s.graph.ReplaceDependees(name, refs) {
		return false
	}

	if contents == "" {
		delete(s.cells, name)
	} else {
		s.cells[name] = contents
	}
	return true
}

// broadcastLocked fans one cell line out to every attached client.
// Enqueueing is non-blocking, so a stalled client never delays commit.
// Caller holds cellsMu; per-client FIFO order therefore equals commit
// order.
func (s *Session) broadcastLocked(name, contents string) {
	line := model.CellLine(name, contents)
	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.Send(line)
	}
	s.clientsMu.RUnlock()
}

func (s *Session) saveAfterEdit() {
	if err := s.Save(); err != nil {
		s.logger.Error("post-edit save failed", "err", err)
	}
}

func (s *Session) publish(name, contents string, origin model.EditOrigin) {
	if s.feed == nil {
		return
	}
	s.feed.PublishEdit(model.NewEditEvent(s.name, name, contents, origin))
}

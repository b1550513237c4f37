package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/collabsheet/sheet-service/internal/domain/model"
)

// Hub is the document registry: it maps document names to live sessions,
// creating them lazily on first connect and reclaiming them when their
// last participant leaves.
type Hub struct {
	store  DocumentStore
	feed   EditPublisher
	refs   *model.RefCache
	logger *slog.Logger

	// docs stores map[string]*docEntry. Lookups dominate, so the map is
	// lock-free; per-entry loading is serialized by a sync.Once.
	docs      sync.Map
	startedAt time.Time

	config hubConfig
}

type docEntry struct {
	session *Session
	once    sync.Once
	err     error
}

// NewHub builds the registry around the given persistence and edit feed.
func NewHub(store DocumentStore, feed EditPublisher, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		store:     store,
		feed:      feed,
		logger:    logger,
		startedAt: time.Now(),
		config: hubConfig{
			refCacheSize: defaultRefCacheSize,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.refs = model.NewRefCache(h.config.refCacheSize)
	return h
}

// Open returns the live session for the named document, creating and
// loading it on first use. Concurrent first opens load the file exactly
// once. A load failure removes the placeholder so a later connect can
// retry.
func (h *Hub) Open(name string) (*Session, error) {
	v, _ := h.docs.LoadOrStore(name, &docEntry{
		session: NewSession(name, h.store, h.refs, h.feed, h.logger),
	})
	e := v.(*docEntry)
	e.once.Do(func() {
		e.err = e.session.Load()
	})
	if e.err != nil {
		h.docs.Delete(name)
		return nil, e.err
	}
	return e.session, nil
}

// Release detaches c from s. When the last participant leaves, the
// document is saved and the session destroyed; a fresh connect re-opens
// it from disk. Reports whether the session was destroyed.
func (h *Hub) Release(s *Session, c Client) bool {
	s.RemoveClient(c)
	if s.UserCount() > 0 {
		return false
	}

	if err := s.Save(); err != nil {
		h.logger.Error("save on session teardown failed", "document", s.Name(), "err", err)
	}
	h.docs.Delete(s.Name())
	h.logger.Info("session closed", "document", s.Name())
	return true
}

// Stats snapshots the registry for the operational endpoint.
func (h *Hub) Stats() model.HubStats {
	stats := model.HubStats{Uptime: time.Since(h.startedAt)}
	h.docs.Range(func(_, v any) bool {
		e := v.(*docEntry)
		stats.OpenDocuments++
		stats.TotalConnections += e.session.UserCount()
		return true
	})
	return stats
}

// Shutdown saves every open document concurrently and clears the
// registry. Safe to invoke twice.
func (h *Hub) Shutdown(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	h.docs.Range(func(k, v any) bool {
		e := v.(*docEntry)
		g.Go(func() error {
			return e.session.Save()
		})
		h.docs.Delete(k)
		return true
	})
	return g.Wait()
}

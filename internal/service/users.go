package service

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// AdminUser is always recognized, whether or not it appears in the users
// file.
const AdminUser = "sysadmin"

// UserStore abstracts the users-file persistence.
type UserStore interface {
	LoadUsers() ([]string, error)
	AppendUser(name string) error
	SaveUsers(names []string) error
	UsersPath() string
}

// UserRegistry is the set of recognized usernames. Names register over
// the wire and are appended to the users file immediately; removing a
// name happens only by administrative edit of the file, which the
// registry picks up through a file watcher.
type UserRegistry struct {
	store  UserStore
	logger *slog.Logger

	mu    sync.Mutex
	names map[string]struct{}

	watcher *fsnotify.Watcher
}

// NewUserRegistry builds an empty registry over the given store.
func NewUserRegistry(store UserStore, logger *slog.Logger) *UserRegistry {
	return &UserRegistry{
		store:  store,
		logger: logger,
		names:  map[string]struct{}{AdminUser: {}},
	}
}

// Load replaces the in-memory set with the users file contents plus the
// built-in admin entry.
func (r *UserRegistry) Load() error {
	names, err := r.store.LoadUsers()
	if err != nil {
		return fmt.Errorf("load usernames: %w", err)
	}

	set := map[string]struct{}{AdminUser: {}}
	for _, n := range names {
		set[n] = struct{}{}
	}

	r.mu.Lock()
	r.names = set
	r.mu.Unlock()

	r.logger.Info("usernames loaded", "count", len(set))
	return nil
}

// Contains reports whether name is recognized.
func (r *UserRegistry) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[name]
	return ok
}

// Register inserts name and appends it to the users file. Reports false
// when the name is already taken; there is no positive acknowledgement
// at the wire level.
func (r *UserRegistry) Register(name string) bool {
	r.mu.Lock()
	if _, dup := r.names[name]; dup {
		r.mu.Unlock()
		return false
	}
	r.names[name] = struct{}{}
	r.mu.Unlock()

	if err := r.store.AppendUser(name); err != nil {
		r.logger.Error("append to users file failed", "username", name, "err", err)
	}
	return true
}

// SaveAll rewrites the users file with the whole registered set.
func (r *UserRegistry) SaveAll() error {
	r.mu.Lock()
	names := make([]string, 0, len(r.names))
	for n := range r.names {
		names = append(names, n)
	}
	r.mu.Unlock()

	return r.store.SaveUsers(names)
}

// Watch reloads the registry whenever the users file is rewritten out of
// band. The parent directory is watched because editors typically
// replace the file rather than write it in place.
func (r *UserRegistry) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("users watcher: %w", err)
	}
	r.watcher = w

	path := r.store.UsersPath()
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		r.watcher = nil
		return fmt.Errorf("watch %q: %w", dir, err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
					if err := r.Load(); err != nil {
						r.logger.Error("reload after users file change failed", "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("users watcher error", "err", err)
			}
		}
	}()
	return nil
}

// StopWatch closes the file watcher if one is running.
func (r *UserRegistry) StopWatch() {
	if r.watcher != nil {
		_ = r.watcher.Close()
		r.watcher = nil
	}
}

// Package storage persists documents and the username registry as plain
// text files: one file per document under the spreadsheets directory,
// `name contents` per line, and a users file with one name per line.
package storage

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/collabsheet/sheet-service/internal/domain/model"
)

// Store performs all file I/O of the service. Document writes pass
// through a circuit breaker: persistence is best effort and the
// in-memory state stays authoritative for the process lifetime, so a
// failing disk must not slow down the edit path.
type Store struct {
	dir       string
	usersPath string
	logger    *slog.Logger
	breaker   *gobreaker.CircuitBreaker
}

// NewStore returns a store rooted at dir for documents and usersPath for
// the username registry.
func NewStore(dir, usersPath string, logger *slog.Logger) *Store {
	return &Store{
		dir:       dir,
		usersPath: usersPath,
		logger:    logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "document-save",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("save breaker state changed",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// UsersPath is the location of the users file, for the change watcher.
func (s *Store) UsersPath() string { return s.usersPath }

// OpenOrCreate reads the named document, creating the spreadsheets
// directory and an empty file on first use. Each line splits on the first
// space into name and verbatim contents; trailing blank lines are
// tolerated.
func (s *Store) OpenOrCreate(name string) ([]model.CellEntry, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spreadsheets dir: %w", err)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		created, cerr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if cerr != nil {
			return nil, fmt.Errorf("create document %q: %w", name, cerr)
		}
		_ = created.Close()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open document %q: %w", name, err)
	}
	defer f.Close()

	var entries []model.CellEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			continue
		}
		cell, contents := model.SplitField(line)
		entries = append(entries, model.CellEntry{Name: cell, Contents: contents})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read document %q: %w", name, err)
	}
	return entries, nil
}

// SaveDocument overwrites the named document with the given cell map,
// one `name contents` line per non-absent cell. A tripped breaker skips
// the write; callers treat saves as best effort.
func (s *Store) SaveDocument(name string, cells map[string]string) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.writeDocument(name, cells)
	})
	if err != nil {
		s.logger.Error("document save failed", "document", name, "err", err)
	}
	return err
}

func (s *Store) writeDocument(name string, cells map[string]string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create spreadsheets dir: %w", err)
	}

	names := make([]string, 0, len(cells))
	for n := range cells {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte(' ')
		b.WriteString(cells[n])
		b.WriteByte('\n')
	}

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write document %q: %w", name, err)
	}
	return nil
}

// LoadUsers reads the users file, skipping blank lines. A missing file is
// not an error; the registry starts with its built-in entries. The loop
// terminates only on EOF, so the last line is read exactly once.
func (s *Store) LoadUsers() ([]string, error) {
	f, err := os.Open(s.usersPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSuffix(sc.Text(), "\r")
		if name != "" {
			names = append(names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return names, nil
}

// AppendUser appends one name to the users file immediately; the full set
// is rewritten on shutdown.
func (s *Store) AppendUser(name string) error {
	f, err := os.OpenFile(s.usersPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(name + "\n"); err != nil {
		return fmt.Errorf("append user %q: %w", name, err)
	}
	return nil
}

// SaveUsers rewrites the users file with the whole registered set.
func (s *Store) SaveUsers(names []string) error {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	var b strings.Builder
	for _, n := range sorted {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(s.usersPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	return nil
}

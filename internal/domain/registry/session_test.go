package registry

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabsheet/sheet-service/internal/domain/model"
)

type fakeClient struct {
	id uuid.UUID

	mu    sync.Mutex
	lines []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{id: uuid.New()}
}

func (c *fakeClient) ID() uuid.UUID      { return c.id }
func (c *fakeClient) RemoteAddr() string { return "127.0.0.1:0" }

func (c *fakeClient) Send(msg string) {
	c.mu.Lock()
	c.lines = append(c.lines, msg)
	c.mu.Unlock()
}

func (c *fakeClient) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

type memStore struct {
	mu    sync.Mutex
	docs  map[string][]model.CellEntry
	saved map[string]map[string]string
	fail  bool
}

func newMemStore() *memStore {
	return &memStore{
		docs:  make(map[string][]model.CellEntry),
		saved: make(map[string]map[string]string),
	}
}

func (m *memStore) OpenOrCreate(name string) ([]model.CellEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, fmt.Errorf("disk unavailable")
	}
	return m.docs[name], nil
}

func (m *memStore) SaveDocument(name string, cells map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]string, len(cells))
	for k, v := range cells {
		snapshot[k] = v
	}
	m.saved[name] = snapshot
	return nil
}

func (m *memStore) Saved(name string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[name]
}

type recordingFeed struct {
	mu     sync.Mutex
	events []model.EditEvent
}

func (f *recordingFeed) PublishEdit(ev model.EditEvent) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *recordingFeed) Events() []model.EditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.EditEvent(nil), f.events...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, name string, store DocumentStore) *Session {
	t.Helper()
	s := NewSession(name, store, model.NewRefCache(64), nil, testLogger())
	require.NoError(t, s.Load())
	return s
}

func TestAddClientInitialSync(t *testing.T) {
	store := newMemStore()
	store.docs["sheet1"] = []model.CellEntry{
		{Name: "A1", Contents: "5"},
		{Name: "B2", Contents: "=A1+1"},
	}
	s := newTestSession(t, "sheet1", store)

	c := newFakeClient()
	require.True(t, s.AddClient(c))

	lines := c.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "connected 2", lines[0])
	assert.ElementsMatch(t, []string{"cell A1 5", "cell B2 =A1+1"}, lines[1:])

	// Attaching the same transport twice is rejected.
	require.False(t, s.AddClient(c))
	assert.Equal(t, 1, s.UserCount())
}

func TestAddClientEmptyDocument(t *testing.T) {
	s := newTestSession(t, "sheet1", newMemStore())

	c := newFakeClient()
	require.True(t, s.AddClient(c))
	assert.Equal(t, []string{"connected 0"}, c.Lines())
}

func TestEditCellBroadcastFanOut(t *testing.T) {
	s := newTestSession(t, "sheet1", newMemStore())
	a, b := newFakeClient(), newFakeClient()
	require.True(t, s.AddClient(a))
	require.True(t, s.AddClient(b))

	require.True(t, s.EditCell("A1", "=B1+1"))
	require.True(t, s.EditCell("B1", "42"))

	want := []string{"cell A1 =B1+1", "cell B1 42"}
	assert.Equal(t, want, a.Lines()[1:], "client A sees edits in commit order")
	assert.Equal(t, want, b.Lines()[1:], "client B sees edits in commit order")
}

func TestEditCellRejectsCycle(t *testing.T) {
	s := newTestSession(t, "sheet1", newMemStore())
	c := newFakeClient()
	require.True(t, s.AddClient(c))
	require.True(t, s.EditCell("A1", "=B1"))

	before := len(c.Lines())
	require.False(t, s.EditCell("B1", "=A1"))

	// No broadcast for the rejected edit, cell untouched.
	assert.Len(t, c.Lines(), before)
	assert.Equal(t, 1, s.CellCount())
}

func TestEditCellNormalizesNames(t *testing.T) {
	s := newTestSession(t, "sheet1", newMemStore())
	require.True(t, s.EditCell("a1", "5"))
	require.True(t, s.EditCell("A1", "7"))
	assert.Equal(t, 1, s.CellCount())
}

func TestEditCellEmptyContentsDeletes(t *testing.T) {
	store := newMemStore()
	s := newTestSession(t, "sheet1", store)
	require.True(t, s.EditCell("A1", "5"))
	require.Equal(t, 1, s.CellCount())

	require.True(t, s.EditCell("A1", ""))
	assert.Equal(t, 0, s.CellCount())
	assert.Empty(t, store.Saved("sheet1"))
}

func TestUndoRestoresPreviousValue(t *testing.T) {
	s := newTestSession(t, "sheet1", newMemStore())
	c := newFakeClient()
	require.True(t, s.AddClient(c))

	require.True(t, s.EditCell("A1", "5"))
	require.True(t, s.EditCell("A1", "7"))
	require.True(t, s.UndoAll())

	assert.Equal(t, []string{"cell A1 5", "cell A1 7", "cell A1 5"}, c.Lines()[1:])
}

func TestUndoBeyondHistory(t *testing.T) {
	s := newTestSession(t, "sheet1", newMemStore())
	require.True(t, s.EditCell("A1", "5"))

	require.True(t, s.UndoAll())
	assert.Equal(t, 0, s.CellCount(), "undoing the first edit removes the cell")
	assert.False(t, s.UndoAll(), "empty history cannot be undone")
}

func TestEditSavesAfterCommit(t *testing.T) {
	store := newMemStore()
	s := newTestSession(t, "sheet1", store)

	require.True(t, s.EditCell("A1", "hello world"))
	assert.Equal(t, map[string]string{"A1": "hello world"}, store.Saved("sheet1"))
}

func TestEditPublishesToFeed(t *testing.T) {
	feed := &recordingFeed{}
	s := NewSession("sheet1", newMemStore(), model.NewRefCache(64), feed, testLogger())
	require.NoError(t, s.Load())

	require.True(t, s.EditCell("A1", "5"))
	require.True(t, s.UndoAll())

	events := feed.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.OriginEdit, events[0].Origin)
	assert.Equal(t, model.OriginUndo, events[1].Origin)
	assert.Equal(t, "sheet1", events[0].Document)
}

func TestLoadIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.docs["sheet1"] = []model.CellEntry{{Name: "A1", Contents: "5"}}
	s := newTestSession(t, "sheet1", store)
	require.Equal(t, 1, s.CellCount())

	// A second load must not re-apply the file.
	require.NoError(t, s.Load())
	assert.Equal(t, 1, s.CellCount())
}

func TestRemoveClient(t *testing.T) {
	s := newTestSession(t, "sheet1", newMemStore())
	c := newFakeClient()
	require.True(t, s.AddClient(c))
	require.Equal(t, 1, s.UserCount())

	assert.True(t, s.RemoveClient(c))
	assert.False(t, s.RemoveClient(c))
	assert.Equal(t, 0, s.UserCount())
}

func TestConcurrentEditsStayOrdered(t *testing.T) {
	s := newTestSession(t, "sheet1", newMemStore())
	c := newFakeClient()
	require.True(t, s.AddClient(c))

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.True(t, s.EditCell(fmt.Sprintf("A%d", w+1), fmt.Sprintf("%d", i)))
			}
		}(w)
	}
	wg.Wait()

	// connected line plus one broadcast per committed edit.
	assert.Len(t, c.Lines(), 1+writers*perWriter)

	// Per-cell broadcasts preserve commit order.
	last := make(map[string]int)
	for _, line := range c.Lines()[1:] {
		var cell string
		var val int
		_, err := fmt.Sscanf(line, "cell %s %d", &cell, &val)
		require.NoError(t, err)
		if prev, ok := last[cell]; ok {
			assert.Equal(t, prev+1, val)
		}
		last[cell] = val
	}
}

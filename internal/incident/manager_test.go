package incident

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uptimer-dev/uptimer/internal/notifier"
	"github.com/uptimer-dev/uptimer/internal/storage"
)

type captureSink struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (c *captureSink) Dispatch(_ context.Context, ev notifier.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func testManager(t *testing.T) (*Manager, *captureSink, storage.Store) {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), 2)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sink := &captureSink{}
	m := NewManager(s, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Now = func() int64 { return 5000 }
	return m, sink, s
}

func TestCreateIncident(t *testing.T) {
	m, sink, s := testManager(t)
	ctx := context.Background()

	inc := &storage.Incident{Title: "elevated errors", Impact: storage.ImpactMajor, Message: "investigating"}
	require.NoError(t, m.Create(ctx, inc))
	require.NotZero(t, inc.ID)
	assert.Equal(t, storage.IncidentInvestigating, inc.Status)
	assert.Equal(t, int64(5000), inc.StartedAt)

	updates, err := s.ListIncidentUpdates(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "incident.created", ev.Type)
	assert.Equal(t, "incident.created:1:1", ev.Key)
	assert.Equal(t, "elevated errors", ev.Payload["title"])
	assert.Equal(t, "major", ev.Payload["impact"])
}

func TestCreateIncidentRequiresTitle(t *testing.T) {
	m, sink, _ := testManager(t)
	err := m.Create(context.Background(), &storage.Incident{Title: "  "})
	require.Error(t, err)
	assert.Empty(t, sink.events)
}

func TestAddUpdateAndResolve(t *testing.T) {
	m, sink, s := testManager(t)
	ctx := context.Background()

	inc := &storage.Incident{Title: "elevated errors"}
	require.NoError(t, m.Create(ctx, inc))

	_, err := m.AddUpdate(ctx, inc.ID, storage.IncidentIdentified, "bad deploy")
	require.NoError(t, err)

	got, err := s.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IncidentIdentified, got.Status)
	assert.Nil(t, got.ResolvedAt)

	resolved, err := m.Resolve(ctx, inc.ID, "rolled back")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, int64(5000), *resolved.ResolvedAt)

	// Resolved incidents accept no further updates.
	_, err = m.AddUpdate(ctx, inc.ID, storage.IncidentMonitoring, "nope")
	require.Error(t, err)

	require.Len(t, sink.events, 3)
	assert.Equal(t, "incident.created", sink.events[0].Type)
	assert.Equal(t, "incident.updated", sink.events[1].Type)
	assert.Equal(t, "incident.resolved", sink.events[2].Type)
	// Keys follow the immutable timeline rows.
	assert.Equal(t, "incident.updated:1:2", sink.events[1].Key)
	assert.Equal(t, "incident.resolved:1:3", sink.events[2].Key)

	updates, err := s.ListIncidentUpdates(ctx, inc.ID)
	require.NoError(t, err)
	assert.Len(t, updates, 3)
}

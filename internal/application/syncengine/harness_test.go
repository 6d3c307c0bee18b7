package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/wikisync/internal/adapters/index"
	"github.com/jbctechsolutions/wikisync/internal/adapters/localcache"
	remotestore "github.com/jbctechsolutions/wikisync/internal/adapters/remote"
	"github.com/jbctechsolutions/wikisync/internal/adapters/remote/memory"
	"github.com/jbctechsolutions/wikisync/internal/application/localstore"
	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/testutil"
)

const testInterval = 30 * time.Minute

// harness wires an orchestrator to an in-memory remote and cache sharing
// one fake clock.
type harness struct {
	t        *testing.T
	ctx      context.Context
	clock    *testutil.Clock
	remote   *memory.Transport
	docs     *remotestore.DocumentStore
	store    *localstore.Store
	registry *conflict.Registry
	orch     *Orchestrator
	editor   *Editor
}

func newHarness(t *testing.T, storeOpts ...remotestore.Option) *harness {
	t.Helper()
	clock := testutil.NewClock()
	tr := memory.New(memory.WithClock(clock.Now))

	base := []remotestore.Option{
		remotestore.WithBackoff(time.Millisecond, 2*time.Millisecond),
		remotestore.WithCallTimeout(2 * time.Second),
		remotestore.WithMaxRetries(1),
		remotestore.WithLogger(logging.Discard()),
	}
	docs := remotestore.NewDocumentStore(tr, index.NewSummaryCodec(), append(base, storeOpts...)...)
	store := localstore.New(localcache.NewMemoryStore(), index.NewSummaryCodec()).WithClock(clock.Now)

	registry, err := conflict.NewRegistry(conflict.DefaultStrategy)
	require.NoError(t, err)

	ctx := context.Background()
	orch, err := New(ctx, store, docs, registry,
		WithClock(clock.Now),
		WithLogger(logging.Discard()),
		WithInterval(testInterval),
		WithBackendName(tr.Name()),
	)
	require.NoError(t, err)

	return &harness{
		t:        t,
		ctx:      ctx,
		clock:    clock,
		remote:   tr,
		docs:     docs,
		store:    store,
		registry: registry,
		orch:     orch,
		editor:   NewEditor(orch),
	}
}

// seeded returns a harness whose cache already holds the sample wiki.
func seeded(t *testing.T, storeOpts ...remotestore.Option) *harness {
	t.Helper()
	h := newHarness(t, storeOpts...)
	testutil.SeedWiki(h.remote, remotestore.DefaultIndexPath)
	h.sync()
	h.clock.Advance(time.Minute)
	return h
}

// sync runs a manual cycle that must succeed.
func (h *harness) sync() *Report {
	h.t.Helper()
	report, err := h.orch.RunCycle(h.ctx)
	require.NoError(h.t, err)
	require.NotNil(h.t, report)
	return report
}

func (h *harness) state() *syncstate.State {
	h.t.Helper()
	st, err := h.store.LoadState(h.ctx)
	require.NoError(h.t, err)
	return st
}

func (h *harness) remoteContent(path string) (string, string) {
	h.t.Helper()
	content, rev, ok := h.remote.Content(path)
	require.True(h.t, ok, "remote has no %s", path)
	return content, rev
}

// writtenPaths returns the paths written through the transport, in order.
func (h *harness) writtenPaths() []string {
	var paths []string
	for _, w := range h.remote.Writes() {
		paths = append(paths, w.Path)
	}
	return paths
}

// eventsFor returns the history entries of one cycle with type t.
func (h *harness) eventsFor(cycleID string, t syncstate.EventType) []syncstate.Event {
	var out []syncstate.Event
	for _, e := range h.state().History {
		if e.CycleID == cycleID && e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

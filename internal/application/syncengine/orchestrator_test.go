package syncengine

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/wikisync/internal/adapters/index"
	"github.com/jbctechsolutions/wikisync/internal/adapters/localcache"
	remotestore "github.com/jbctechsolutions/wikisync/internal/adapters/remote"
	"github.com/jbctechsolutions/wikisync/internal/adapters/remote/memory"
	"github.com/jbctechsolutions/wikisync/internal/application/localstore"
	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/testutil"
)

func TestFirstCyclePullsEveryIndexedPage(t *testing.T) {
	h := newHarness(t)
	revs := testutil.SeedWiki(h.remote, remotestore.DefaultIndexPath)

	report := h.sync()

	assert.Equal(t, 3, report.Pulled)
	assert.Zero(t, report.Conflicts)
	assert.Zero(t, report.Pushed)
	assert.Empty(t, report.Failed)
	assert.Empty(t, h.remote.Writes(), "a pull-only cycle writes nothing remotely")

	pages, err := h.store.LoadAllPages(h.ctx)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for path, content := range testutil.SamplePages {
		id := path[:len(path)-len(".md")]
		page, ok := pages[id]
		require.True(t, ok, "page %s not cached", id)
		assert.Equal(t, content, page.Content)
		assert.Equal(t, revs[path], page.Revision)
		assert.False(t, page.LocallyModified())
	}
	assert.Equal(t, "guides", pages["guides/rules"].CategoryID)
	assert.Equal(t, "FAQ", pages["faq"].Title)

	sum, err := h.store.LoadSummary(h.ctx)
	require.NoError(t, err)
	assert.True(t, sum.LastSync.Equal(testutil.Epoch), "summary.lastSync must be updated")
	assert.Equal(t, revs[remotestore.DefaultIndexPath], sum.Version)

	st := h.state()
	assert.Equal(t, syncstate.StatusIdle, st.Status)
	assert.Zero(t, st.ErrorCount)
	assert.True(t, st.NextSync.Equal(testutil.Epoch.Add(testInterval)))
	require.Len(t, h.eventsFor(report.CycleID, syncstate.EventSuccess), 1)
}

func TestUnchangedCycleIsANoop(t *testing.T) {
	h := seeded(t)

	report := h.sync()

	assert.Zero(t, report.Pulled)
	assert.Zero(t, report.Pushed)
	assert.Zero(t, report.Conflicts)
	assert.False(t, report.IndexPushed)
	assert.Empty(t, h.remote.Writes())
}

func TestOnCycleHooksSeeEveryReport(t *testing.T) {
	h := seeded(t)

	var seen []string
	h.orch.OnCycle(func(_ context.Context, r *Report) {
		seen = append(seen, r.CycleID)
	})

	first := h.sync()
	second := h.sync()

	assert.Equal(t, []string{first.CycleID, second.CycleID}, seen)
}

func TestLocalEditIsPushed(t *testing.T) {
	h := seeded(t)
	_, before := h.remoteContent("guides/rules.md")

	_, err := h.editor.UpdatePage(h.ctx, "guides/rules", "# Rules\n\nBe very kind.\n")
	require.NoError(t, err)
	n, err := h.orch.Queue().Len(h.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	report := h.sync()

	assert.Zero(t, report.Conflicts)
	assert.Equal(t, 1, report.Pushed)
	assert.Equal(t, []string{"guides/rules.md"}, h.writtenPaths())

	content, after := h.remoteContent("guides/rules.md")
	assert.Equal(t, "# Rules\n\nBe very kind.\n", content)
	assert.Equal(t, "2", after)
	assert.Equal(t, "1", before)

	n, err = h.orch.Queue().Len(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "queue must be cleared")

	page, err := h.store.GetPage(h.ctx, "guides/rules")
	require.NoError(t, err)
	assert.Equal(t, after, page.Revision)
	assert.False(t, page.LocallyModified())
}

func TestRevertedEditIsPushedLast(t *testing.T) {
	h := seeded(t)

	for _, content := range []string{"v-x", "v-y", "v-x"} {
		_, err := h.editor.UpdatePage(h.ctx, "faq", content)
		require.NoError(t, err)
		h.clock.Advance(time.Second)
	}
	n, err := h.orch.Queue().Len(h.ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	h.sync()

	content, _ := h.remoteContent("faq.md")
	assert.Equal(t, "v-x", content)
	page, err := h.store.GetPage(h.ctx, "faq")
	require.NoError(t, err)
	assert.Equal(t, "v-x", page.Content)
	assert.False(t, page.LocallyModified())
}

func TestRemoteEditIsPulled(t *testing.T) {
	h := seeded(t)
	rev := h.remote.Seed("faq.md", "# FAQ\n\nNew answers.\n")

	report := h.sync()

	assert.Equal(t, 1, report.Pulled)
	page, err := h.store.GetPage(h.ctx, "faq")
	require.NoError(t, err)
	assert.Equal(t, "# FAQ\n\nNew answers.\n", page.Content)
	assert.Equal(t, rev, page.Revision)
}

func TestMergePicksLaterSide(t *testing.T) {
	tests := []struct {
		name        string
		localFirst  bool
		wantContent string
	}{
		{name: "local edit is later", localFirst: false, wantContent: "local welcome"},
		{name: "remote edit is later", localFirst: true, wantContent: "remote welcome"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := seeded(t)
			require.NoError(t, h.registry.Set("welcome", conflict.StrategyMerge))

			editLocal := func() {
				_, err := h.editor.UpdatePage(h.ctx, "welcome", "local welcome")
				require.NoError(t, err)
			}
			editRemote := func() { h.remote.Seed("welcome.md", "remote welcome") }
			if tt.localFirst {
				editLocal()
				h.clock.Advance(5 * time.Minute)
				editRemote()
			} else {
				editRemote()
				h.clock.Advance(5 * time.Minute)
				editLocal()
			}
			resolvedAt := h.clock.Advance(time.Minute)

			report := h.sync()

			assert.Equal(t, 1, report.Conflicts)
			assert.Equal(t, []string{"welcome"}, report.Resolved)
			assert.Empty(t, report.Parked)

			page, err := h.store.GetPage(h.ctx, "welcome")
			require.NoError(t, err)
			assert.Equal(t, tt.wantContent, page.Content)
			assert.True(t, page.LastModified.Equal(resolvedAt), "merged page is re-stamped with the sync time")
			assert.False(t, page.LocallyModified())

			content, rev := h.remoteContent("welcome.md")
			assert.Equal(t, tt.wantContent, content)
			assert.Equal(t, rev, page.Revision)

			events := h.eventsFor(report.CycleID, syncstate.EventSuccess)
			require.Len(t, events, 1)
			assert.Equal(t, "welcome", events[0].Details["resolved"])
			assert.Equal(t, "1", events[0].Details["conflicts"])

			n, err := h.orch.Queue().Len(h.ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestDefaultStrategyKeepsRemote(t *testing.T) {
	h := seeded(t)
	_, err := h.editor.UpdatePage(h.ctx, "faq", "local faq")
	require.NoError(t, err)
	h.remote.Seed("faq.md", "remote faq")

	report := h.sync()

	assert.Equal(t, []string{"faq"}, report.Resolved)
	page, err := h.store.GetPage(h.ctx, "faq")
	require.NoError(t, err)
	assert.Equal(t, "remote faq", page.Content)
	assert.Empty(t, h.remote.Writes(), "remote-wins never writes the page")
}

func TestPushConflictRetriesOnceThenParks(t *testing.T) {
	h := seeded(t)
	require.NoError(t, h.registry.Set("faq", conflict.StrategyLocalWins))

	var racing atomic.Int32
	h.remote.SetFault(func(_ context.Context, op, path string) error {
		if op == memory.OpWrite && path == "faq.md" {
			// Another writer gets in first every time.
			racing.Add(1)
			h.remote.Seed("faq.md", "someone else's faq")
		}
		return nil
	})

	_, err := h.editor.UpdatePage(h.ctx, "faq", "my faq")
	require.NoError(t, err)
	_, err = h.editor.UpdatePage(h.ctx, "guides/rules", "my rules")
	require.NoError(t, err)

	report := h.sync()

	assert.Equal(t, int32(2), racing.Load(), "one push and exactly one retry")
	assert.Equal(t, []string{"faq"}, report.Parked)
	assert.Equal(t, 1, report.Conflicts)
	assert.Empty(t, report.Error)
	assert.Equal(t, 1, report.Pushed, "other pages still go out")

	content, _ := h.remoteContent("guides/rules.md")
	assert.Equal(t, "my rules", content)

	st := h.state()
	assert.Equal(t, syncstate.StatusIdle, st.Status)
	assert.Zero(t, st.ErrorCount)
	require.Contains(t, st.Manual, "faq")
	assert.Equal(t, conflict.TypeContent, st.Manual["faq"].Type)
	require.Len(t, st.PendingChanges, 1, "parked page keeps its queued change")
	assert.Equal(t, "faq", st.PendingChanges[0].TargetID)

	var warned bool
	for _, e := range st.History {
		if e.Type == syncstate.EventWarning && e.Details["id"] == "faq" {
			warned = true
		}
	}
	assert.True(t, warned, "parking is surfaced as a warning event")

	// Parked items are left alone until released.
	h.remote.SetFault(nil)
	writes := len(h.remote.Writes())
	report = h.sync()
	assert.Empty(t, report.Resolved)
	assert.Len(t, h.remote.Writes(), writes)

	require.NoError(t, h.orch.ReleaseConflict(h.ctx, "faq", conflict.StrategyLocalWins))
	report = h.sync()
	assert.Equal(t, []string{"faq"}, report.Resolved)
	content, _ = h.remoteContent("faq.md")
	assert.Equal(t, "my faq", content)

	st = h.state()
	assert.Empty(t, st.Manual)
	assert.Empty(t, st.Overrides, "operator decision is applied once")
	assert.Empty(t, st.PendingChanges)
}

func TestPushConflictRecoversWithSingleRetry(t *testing.T) {
	h := seeded(t)
	require.NoError(t, h.registry.Set("faq", conflict.StrategyLocalWins))

	var raced atomic.Bool
	h.remote.SetFault(func(_ context.Context, op, path string) error {
		if op == memory.OpWrite && path == "faq.md" && raced.CompareAndSwap(false, true) {
			h.remote.Seed("faq.md", "someone else's faq")
		}
		return nil
	})
	_, err := h.editor.UpdatePage(h.ctx, "faq", "my faq")
	require.NoError(t, err)

	report := h.sync()

	assert.Equal(t, []string{"faq"}, report.Resolved)
	assert.Empty(t, report.Parked)
	content, rev := h.remoteContent("faq.md")
	assert.Equal(t, "my faq", content)
	page, err := h.store.GetPage(h.ctx, "faq")
	require.NoError(t, err)
	assert.Equal(t, rev, page.Revision)
	assert.Empty(t, h.state().PendingChanges)
}

func TestIndexTimeoutAbortsCycle(t *testing.T) {
	h := newHarness(t, remotestore.WithCallTimeout(20*time.Millisecond), remotestore.WithMaxRetries(0))
	testutil.SeedWiki(h.remote, remotestore.DefaultIndexPath)
	h.remote.SetFault(memory.Hang(memory.OpRead))

	report, err := h.orch.RunCycle(h.ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransientNetwork)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.Error)
	assert.Zero(t, report.Pulled)

	pages, err := h.store.ListPages(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, pages, "no page is written by an aborted cycle")
	assert.Empty(t, h.remote.Writes())

	st := h.state()
	assert.Equal(t, syncstate.StatusIdle, st.Status, "error always returns to idle")
	assert.Equal(t, 1, st.ErrorCount)
	assert.NotEmpty(t, st.LastError)
	assert.True(t, st.NextSync.Equal(testutil.Epoch.Add(testInterval)))
	assert.True(t, st.LastSync.IsZero())
	require.Len(t, h.eventsFor(report.CycleID, syncstate.EventError), 1)
}

func TestErrorCountTracksConsecutiveFailures(t *testing.T) {
	h := newHarness(t)
	testutil.SeedWiki(h.remote, remotestore.DefaultIndexPath)
	h.remote.SetFault(memory.FailOn(memory.OpList, "", errors.Transient("connection reset", nil)))

	for want := 1; want <= 2; want++ {
		now := h.clock.Advance(time.Minute)
		_, err := h.orch.RunCycle(h.ctx)
		require.Error(t, err)

		st := h.state()
		assert.Equal(t, want, st.ErrorCount)
		assert.True(t, st.NextSync.Equal(now.Add(testInterval)))
	}

	h.remote.SetFault(nil)
	h.sync()
	st := h.state()
	assert.Zero(t, st.ErrorCount)
	assert.Empty(t, st.LastError)
}

func TestAuthFailureAbortsCycle(t *testing.T) {
	h := seeded(t)
	h.remote.SetFault(memory.FailOn(memory.OpPing, "", errors.NewError(errors.CodeUnauthenticated, "token expired", nil)))

	_, err := h.orch.RunCycle(h.ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	assert.Equal(t, 1, h.state().ErrorCount)
}

func TestDocumentFailureDoesNotAbortCycle(t *testing.T) {
	h := seeded(t)
	h.remote.SetFault(memory.FailOn(memory.OpWrite, "faq.md", errors.Transient("connection reset", nil)))
	_, err := h.editor.UpdatePage(h.ctx, "faq", "my faq")
	require.NoError(t, err)
	_, err = h.editor.UpdatePage(h.ctx, "welcome", "my welcome")
	require.NoError(t, err)

	report := h.sync()

	assert.Equal(t, []string{"faq"}, report.Failed)
	assert.Equal(t, 1, report.Pushed)
	content, _ := h.remoteContent("welcome.md")
	assert.Equal(t, "my welcome", content)

	st := h.state()
	require.Len(t, st.PendingChanges, 1, "the failed change stays queued")
	assert.Equal(t, "faq", st.PendingChanges[0].TargetID)
	assert.Len(t, h.eventsFor(report.CycleID, syncstate.EventWarning), 1)
	assert.Len(t, h.eventsFor(report.CycleID, syncstate.EventSuccess), 1)

	h.remote.SetFault(nil)
	report = h.sync()
	assert.Empty(t, report.Failed)
	content, _ = h.remoteContent("faq.md")
	assert.Equal(t, "my faq", content)
}

func TestQueuedChangesArePushedInOrder(t *testing.T) {
	h := seeded(t)
	for _, title := range []string{"One", "Two", "Three"} {
		_, err := h.editor.CreatePage(h.ctx, CreateRequest{Title: title, CategoryID: "guides", Content: "page " + title})
		require.NoError(t, err)
	}
	_, err := h.editor.UpdatePage(h.ctx, "faq", "faq v2")
	require.NoError(t, err)

	report := h.sync()

	assert.Equal(t, 4, report.Pushed)
	assert.True(t, report.IndexPushed)
	assert.Equal(t, []string{
		"guides/one.md",
		"guides/two.md",
		"guides/three.md",
		"faq.md",
		remotestore.DefaultIndexPath,
	}, h.writtenPaths())

	toc, err := h.docs.FetchTableOfContents(h.ctx)
	require.NoError(t, err)
	for _, id := range []string{"guides/one", "guides/two", "guides/three"} {
		p, ok := toc.Locate(id)
		require.True(t, ok, "%s must be published in the index", id)
		assert.Equal(t, "guides", p.CategoryID)
	}

	// A second run settles nothing new.
	writes := len(h.remote.Writes())
	report = h.sync()
	assert.Zero(t, report.Pushed)
	assert.Zero(t, report.Pulled)
	assert.Len(t, h.remote.Writes(), writes)
}

func TestLocalDeletePropagatesThroughIndex(t *testing.T) {
	h := seeded(t)
	require.NoError(t, h.editor.DeletePage(h.ctx, "faq"))

	report := h.sync()

	assert.Equal(t, 1, report.Pushed)
	assert.True(t, report.IndexPushed)
	toc, err := h.docs.FetchTableOfContents(h.ctx)
	require.NoError(t, err)
	_, listed := toc.Locate("faq")
	assert.False(t, listed)
	assert.Empty(t, h.state().PendingChanges)

	report = h.sync()
	assert.Zero(t, report.Pulled, "an unlisted page is not pulled back")
	exists, err := h.store.PageExists(h.ctx, "faq")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRemoteDeleteRemovesCleanLocalCopy(t *testing.T) {
	h := seeded(t)
	h.remote.Seed(remotestore.DefaultIndexPath, "# Summary\n\n* [Welcome](welcome.md)\n\n## Guides\n\n* [Rules](guides/rules.md)\n")

	h.sync()

	exists, err := h.store.PageExists(h.ctx, "faq")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = h.store.PageExists(h.ctx, "welcome")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewPageSurvivesRemoteIndexChange(t *testing.T) {
	h := seeded(t)
	_, err := h.editor.CreatePage(h.ctx, CreateRequest{ID: "news", Title: "News", Content: "fresh"})
	require.NoError(t, err)
	h.remote.Seed(remotestore.DefaultIndexPath, testutil.SampleSummary+"* [Etiquette](guides/etiquette.md)\n")
	h.remote.Seed("guides/etiquette.md", "bow")

	report := h.sync()

	assert.Equal(t, 1, report.Pulled)
	assert.Empty(t, report.Failed)
	toc, err := h.docs.FetchTableOfContents(h.ctx)
	require.NoError(t, err)
	_, ok := toc.Locate("news")
	assert.True(t, ok, "local page must be published")
	_, ok = toc.Locate("guides/etiquette")
	assert.True(t, ok, "remote page must stay listed")
	content, _ := h.remoteContent("news.md")
	assert.Equal(t, "fresh", content)
}

func TestForceSyncNeverRunsTwoCycles(t *testing.T) {
	h := newHarness(t)
	testutil.SeedWiki(h.remote, remotestore.DefaultIndexPath)

	release := make(chan struct{})
	var pings atomic.Int32
	h.remote.SetFault(func(ctx context.Context, op, _ string) error {
		if op != memory.OpPing {
			return nil
		}
		pings.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	require.True(t, h.orch.ForceSync())
	testutil.Eventually(t, time.Second, func() bool { return pings.Load() == 1 }, "first cycle reaches the remote")
	assert.True(t, h.orch.IsRunning())

	assert.False(t, h.orch.ForceSync(), "a second force sync is a no-op")
	_, err := h.orch.RunCycle(h.ctx)
	assert.ErrorIs(t, err, errors.ErrCycleInProgress)

	close(release)
	h.orch.Wait()

	assert.False(t, h.orch.IsRunning())
	assert.Equal(t, int32(1), pings.Load())
	st := h.state()
	assert.Equal(t, syncstate.StatusIdle, st.Status)
	assert.False(t, st.LastSync.IsZero())
}

func TestStartRunsStartupCycleOnce(t *testing.T) {
	h := newHarness(t)
	testutil.SeedWiki(h.remote, remotestore.DefaultIndexPath)

	h.orch.Start(time.Hour)
	h.orch.Start(2 * time.Hour)
	h.orch.Wait()

	status, err := h.orch.GetStatus(h.ctx)
	require.NoError(t, err)
	assert.True(t, status.Scheduled)
	assert.False(t, status.Running)

	var successes int
	for _, e := range status.State.History {
		if e.Type == syncstate.EventSuccess {
			successes++
			assert.Equal(t, TriggerStartup, e.Details["trigger"])
		}
	}
	assert.Equal(t, 1, successes, "changing the interval does not start another cycle")

	h.orch.Stop()
	status, err = h.orch.GetStatus(h.ctx)
	require.NoError(t, err)
	assert.False(t, status.Scheduled)
	h.orch.Stop()
}

func TestStatusReportsQueueAndParkedItems(t *testing.T) {
	h := seeded(t)
	_, err := h.editor.UpdatePage(h.ctx, "faq", "draft")
	require.NoError(t, err)
	require.NoError(t, h.store.UpdateState(h.ctx, func(s *syncstate.State) error {
		s.Park(conflict.Item{ID: "welcome", Kind: conflict.KindPage, Type: conflict.TypeContent})
		return nil
	}))

	status, err := h.orch.GetStatus(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.QueueLength)
	assert.Equal(t, []string{"welcome"}, status.Parked)

	items, err := h.orch.ParkedConflicts(h.ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "welcome", items[0].ID)

	events, err := h.orch.History(h.ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, syncstate.EventSuccess, events[0].Type)
}

func TestReleaseConflictValidation(t *testing.T) {
	h := seeded(t)

	err := h.orch.ReleaseConflict(h.ctx, "faq", conflict.StrategyLocalWins)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	err = h.orch.ReleaseConflict(h.ctx, "faq", conflict.StrategyManual)
	assert.ErrorIs(t, err, errors.ErrUnknownStrategy)

	err = h.orch.ReleaseConflict(h.ctx, "faq", conflict.Strategy("coin-flip"))
	assert.ErrorIs(t, err, errors.ErrUnknownStrategy)
}

func TestNewRecoversInterruptedCycle(t *testing.T) {
	ctx := context.Background()
	store := localstore.New(localcache.NewMemoryStore(), index.NewSummaryCodec())
	require.NoError(t, store.UpdateState(ctx, func(s *syncstate.State) error {
		s.Status = syncstate.StatusSyncing
		return nil
	}))
	registry, err := conflict.NewRegistry("")
	require.NoError(t, err)
	docs := remotestore.NewDocumentStore(memory.New(), index.NewSummaryCodec(), remotestore.WithLogger(logging.Discard()))

	_, err = New(ctx, store, docs, registry, WithLogger(logging.Discard()))
	require.NoError(t, err)

	st, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncstate.StatusIdle, st.Status)
	require.NotEmpty(t, st.History)
	assert.Equal(t, syncstate.EventWarning, st.History[len(st.History)-1].Type)
}

func TestLockHeldByAnotherProcess(t *testing.T) {
	ctx := context.Background()
	lockPath := filepath.Join(t.TempDir(), "sync.lock")
	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	store := localstore.New(localcache.NewMemoryStore(), index.NewSummaryCodec())
	require.NoError(t, store.UpdateState(ctx, func(s *syncstate.State) error {
		s.Status = syncstate.StatusSyncing
		return nil
	}))
	registry, err := conflict.NewRegistry("")
	require.NoError(t, err)
	tr := memory.New()
	testutil.SeedWiki(tr, remotestore.DefaultIndexPath)
	docs := remotestore.NewDocumentStore(tr, index.NewSummaryCodec(), remotestore.WithLogger(logging.Discard()))

	clock := testutil.NewClock()
	o, err := New(ctx, store, docs, registry,
		WithLogger(logging.Discard()),
		WithLockPath(lockPath),
		WithClock(clock.Now),
		WithInterval(testInterval),
	)
	require.NoError(t, err)

	st, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncstate.StatusSyncing, st.Status, "a live cycle elsewhere is not stale")

	_, err = o.RunCycle(ctx)
	assert.ErrorIs(t, err, errors.ErrCycleInProgress)

	st, err = store.LoadState(ctx)
	require.NoError(t, err)
	assert.True(t, st.NextSync.Equal(clock.Now().UTC().Add(testInterval)), "skipped cycle still schedules the next one")
	assert.Zero(t, st.ErrorCount, "a skipped cycle is not a failure")
	assert.Equal(t, syncstate.StatusSyncing, st.Status)
}

func TestFailedStartStillSchedulesNextCycle(t *testing.T) {
	h := seeded(t)
	before := h.state().ErrorCount

	// Another writer left the record mid-cycle without holding the lock.
	require.NoError(t, h.store.UpdateState(h.ctx, func(s *syncstate.State) error {
		s.Status = syncstate.StatusSyncing
		return nil
	}))

	_, err := h.orch.RunCycle(h.ctx)
	require.Error(t, err)

	st := h.state()
	assert.Equal(t, before+1, st.ErrorCount)
	assert.NotEmpty(t, st.LastError)
	assert.True(t, st.NextSync.Equal(h.clock.Now().UTC().Add(testInterval)))
	require.NotEmpty(t, st.History)
	assert.Equal(t, syncstate.EventError, st.History[len(st.History)-1].Type)
}

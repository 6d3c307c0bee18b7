package syncengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
)

// pageConflict edits id on both sides and returns the matching item.
func pageConflict(t *testing.T, h *harness, id, localContent, remoteContent string) conflict.Item {
	t.Helper()
	local, err := h.editor.UpdatePage(h.ctx, id, localContent)
	require.NoError(t, err)
	rev := h.remote.Seed(local.Path, remoteContent)

	remote := local
	remote.Content = remoteContent
	remote.Rehash()
	remote.Revision = rev
	remote.LastModified = h.clock.Now()

	return conflict.Item{
		ID:         id,
		Kind:       conflict.KindPage,
		Type:       conflict.TypeContent,
		Local:      conflict.Version{Document: &local},
		Remote:     conflict.Version{Document: &remote},
		DetectedAt: h.clock.Now(),
	}
}

func TestResolveLocalWinsIsIdempotent(t *testing.T) {
	h := seeded(t)
	item := pageConflict(t, h, "faq", "local faq", "remote faq")
	again := item
	r := h.orch.Resolver()

	first, err := r.Resolve(h.ctx, &item, conflict.StrategyLocalWins)
	require.NoError(t, err)
	second, err := r.Resolve(h.ctx, &item, conflict.StrategyLocalWins)
	require.NoError(t, err)
	assert.Equal(t, conflict.OutcomeLocalApplied, first)
	assert.Equal(t, first, second)

	content, rev := h.remoteContent("faq.md")
	assert.Equal(t, "local faq", content)
	require.Len(t, h.remote.Writes(), 1)

	// The same conflict detected afresh converges without another write.
	third, err := r.Resolve(h.ctx, &again, conflict.StrategyLocalWins)
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Len(t, h.remote.Writes(), 1)

	page, err := h.store.GetPage(h.ctx, "faq")
	require.NoError(t, err)
	assert.Equal(t, rev, page.Revision)
	assert.False(t, page.LocallyModified())
	assert.Empty(t, h.state().PendingChanges)
}

func TestResolveRemoteWinsIsIdempotent(t *testing.T) {
	h := seeded(t)
	item := pageConflict(t, h, "faq", "local faq", "remote faq")
	again := item
	r := h.orch.Resolver()
	require.Len(t, h.state().PendingChanges, 1)

	for _, it := range []*conflict.Item{&item, &item, &again} {
		outcome, err := r.Resolve(h.ctx, it, conflict.StrategyRemoteWins)
		require.NoError(t, err)
		assert.Equal(t, conflict.OutcomeRemoteApplied, outcome)

		page, err := h.store.GetPage(h.ctx, "faq")
		require.NoError(t, err)
		assert.Equal(t, "remote faq", page.Content)
		assert.Empty(t, h.state().PendingChanges, "obsolete change is dropped")
	}
	assert.Empty(t, h.remote.Writes())
}

func TestResolveRemoteWinsOnDeletedRemote(t *testing.T) {
	h := seeded(t)
	local, err := h.editor.UpdatePage(h.ctx, "faq", "local faq")
	require.NoError(t, err)
	item := conflict.Item{
		ID:    "faq",
		Kind:  conflict.KindPage,
		Type:  conflict.TypeContent,
		Local: conflict.Version{Document: &local},
	}

	outcome, err := h.orch.Resolver().Resolve(h.ctx, &item, conflict.StrategyRemoteWins)
	require.NoError(t, err)
	assert.Equal(t, conflict.OutcomeRemoteApplied, outcome)

	exists, err := h.store.PageExists(h.ctx, "faq")
	require.NoError(t, err)
	assert.False(t, exists)
	toc, _, err := h.store.LoadIndex(h.ctx)
	require.NoError(t, err)
	_, listed := toc.Locate("faq")
	assert.False(t, listed)
}

func TestResolveManualParksItem(t *testing.T) {
	h := seeded(t)
	item := pageConflict(t, h, "faq", "local faq", "remote faq")

	outcome, err := h.orch.Resolver().Resolve(h.ctx, &item, conflict.StrategyManual)
	require.NoError(t, err)
	assert.Equal(t, conflict.OutcomeManual, outcome)

	st := h.state()
	require.Contains(t, st.Manual, "faq")
	assert.Nil(t, st.Manual["faq"].Resolution)
	assert.Len(t, st.PendingChanges, 1, "manual never mutates")
	assert.Empty(t, h.remote.Writes())

	last := st.History[len(st.History)-1]
	assert.Equal(t, syncstate.EventWarning, last.Type)
	assert.Equal(t, "faq", last.Details["id"])

	page, err := h.store.GetPage(h.ctx, "faq")
	require.NoError(t, err)
	assert.Equal(t, "local faq", page.Content)
}

func TestResolveRejectsUnknownStrategy(t *testing.T) {
	h := seeded(t)
	item := pageConflict(t, h, "faq", "local faq", "remote faq")

	_, err := h.orch.Resolver().Resolve(h.ctx, &item, conflict.Strategy("coin-flip"))
	assert.ErrorIs(t, err, errors.ErrUnknownStrategy)
	assert.False(t, item.Resolved())
}

func TestResolveCategory(t *testing.T) {
	local := &document.Category{ID: "guides", Title: "Guides", Pages: []document.PageRef{
		{ID: "guides/rules", Title: "Rules", Path: "guides/rules.md", Order: 0},
		{ID: "guides/local", Title: "Local", Path: "guides/local.md", Order: 1},
	}}
	remote := &document.Category{ID: "guides", Title: "Guides", Pages: []document.PageRef{
		{ID: "guides/rules", Title: "Rules", Path: "guides/rules.md", Order: 0},
		{ID: "guides/remote", Title: "Remote", Path: "guides/remote.md", Order: 1},
	}}

	tests := []struct {
		name     string
		strategy conflict.Strategy
		outcome  conflict.Outcome
		want     []string
	}{
		{"local wins keeps the local index", conflict.StrategyLocalWins, conflict.OutcomeLocalApplied, []string{"guides/rules"}},
		{"remote wins replaces the category", conflict.StrategyRemoteWins, conflict.OutcomeRemoteApplied, []string{"guides/rules", "guides/remote"}},
		{"merge unions members", conflict.StrategyMerge, conflict.OutcomeMerged, []string{"guides/rules", "guides/local", "guides/remote"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := seeded(t)
			item := conflict.Item{
				ID:     "guides",
				Kind:   conflict.KindCategory,
				Type:   conflict.TypeStructure,
				Local:  conflict.Version{Category: local.Clone()},
				Remote: conflict.Version{Category: remote.Clone()},
			}

			outcome, err := h.orch.Resolver().Resolve(h.ctx, &item, tt.strategy)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)

			toc, _, err := h.store.LoadIndex(h.ctx)
			require.NoError(t, err)
			guides := toc.FindCategory("guides")
			require.NotNil(t, guides)
			assert.Equal(t, tt.want, guides.MemberIDs())
			assert.Empty(t, h.remote.Writes(), "category resolutions are published by the index push")
		})
	}
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

func TestTransport_WriteRead(t *testing.T) {
	ctx := context.Background()
	tr := New()

	rev, err := tr.Write(ctx, ports.WriteRequest{Path: "faq.md", Content: []byte("v1"), Message: "create"})
	require.NoError(t, err)
	assert.Equal(t, "1", rev)

	doc, err := tr.Read(ctx, "faq.md")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(doc.Content))
	assert.Equal(t, "1", doc.Revision)

	rev, err = tr.Write(ctx, ports.WriteRequest{Path: "faq.md", Content: []byte("v2"), ExpectedRevision: "1"})
	require.NoError(t, err)
	assert.Equal(t, "2", rev)

	writes := tr.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "create", writes[0].Message)
}

func TestTransport_OptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	tr := New()
	tr.Seed("faq.md", "v1")

	tests := []struct {
		name string
		req  ports.WriteRequest
	}{
		{"create over existing path", ports.WriteRequest{Path: "faq.md", Content: []byte("x")}},
		{"stale revision", ports.WriteRequest{Path: "faq.md", Content: []byte("x"), ExpectedRevision: "7"}},
		{"update of missing path", ports.WriteRequest{Path: "gone.md", Content: []byte("x"), ExpectedRevision: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Write(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrRevisionConflict))
		})
	}

	content, rev, ok := tr.Content("faq.md")
	require.True(t, ok)
	assert.Equal(t, "v1", content)
	assert.Equal(t, "1", rev)
}

func TestTransport_ReadMissing(t *testing.T) {
	_, err := New().Read(context.Background(), "nope.md")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestTransport_ListSortedWithPrefix(t *testing.T) {
	tr := New()
	tr.Seed("guides/rules.md", "r")
	tr.Seed("faq.md", "f")
	tr.Seed("guides/etiquette.md", "e")

	entries, err := tr.List(context.Background(), "guides/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "guides/etiquette.md", entries[0].Path)
	assert.Equal(t, "guides/rules.md", entries[1].Path)
	assert.NotEmpty(t, entries[0].Hash)
}

func TestTransport_Faults(t *testing.T) {
	ctx := context.Background()
	tr := New(WithFault(FailOn(OpPing, "", errors.NewError(errors.CodeForbidden, "denied", nil))))

	err := tr.Ping(ctx)
	assert.True(t, errors.Is(err, errors.ErrForbidden))

	tr.SetFault(nil)
	assert.NoError(t, tr.Ping(ctx))

	tr.SetFault(Hang(OpRead))
	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = tr.Read(ctx, "faq.md")
	assert.True(t, errors.Is(err, errors.ErrTransientNetwork))
}

func TestTransport_Clock(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	tr := New(WithClock(func() time.Time { return at }))
	tr.Seed("faq.md", "v1")

	doc, err := tr.Read(context.Background(), "faq.md")
	require.NoError(t, err)
	assert.Equal(t, at.Truncate(time.Millisecond), doc.UpdatedAt)
}

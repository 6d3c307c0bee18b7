package index

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

func sampleIndex() *document.TableOfContents {
	return &document.TableOfContents{
		Pages: []document.PageRef{
			{ID: "welcome", Title: "Welcome", Path: "welcome.md", Order: 0},
			{ID: "faq", Title: "FAQ", Path: "faq.md", Order: 2},
		},
		Categories: []*document.Category{
			{
				ID: "guides", Title: "Guides", Order: 1,
				Pages: []document.PageRef{
					{ID: "guides/rules", Title: "Rules", Path: "guides/rules.md", Order: 0},
					{ID: "guides/etiquette", Title: "Etiquette", Path: "guides/etiquette.md", Order: 2},
				},
				Children: []*document.Category{
					{
						ID: "guides/towns", Title: "Towns", Order: 1,
						Pages: []document.PageRef{
							{ID: "guides/towns/capital", Title: "Capital", Path: "guides/towns/capital.md", Order: 0},
						},
					},
				},
			},
			{ID: "history", Title: "Lore", Order: 3},
		},
	}
}

func TestSummarySerializeGolden(t *testing.T) {
	data, err := NewSummaryCodec().Serialize(sampleIndex())
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "summary", data)
}

func TestSummaryParse(t *testing.T) {
	data, err := NewSummaryCodec().Serialize(sampleIndex())
	require.NoError(t, err)

	toc, err := NewSummaryCodec().Parse(data)
	require.NoError(t, err)

	var placements []string
	for _, p := range toc.Placements() {
		placements = append(placements, p.CategoryID+":"+p.ID)
	}
	assert.Equal(t, []string{
		":welcome",
		":faq",
		"guides:guides/rules",
		"guides/towns:guides/towns/capital",
		"guides:guides/etiquette",
	}, placements)

	lore := toc.FindCategory("history")
	require.NotNil(t, lore, "explicit id marker not honoured")
	assert.Equal(t, "Lore", lore.Title)
	assert.Equal(t, "Towns", toc.FindCategory("guides/towns").Title)
}

func TestSummaryRoundTripIsStable(t *testing.T) {
	codec := NewSummaryCodec()
	first, err := codec.Serialize(sampleIndex())
	require.NoError(t, err)

	parsed, err := codec.Parse(first)
	require.NoError(t, err)
	second, err := codec.Serialize(parsed)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	reparsed, err := codec.Parse(second)
	require.NoError(t, err)
	assert.Equal(t, parsed.Fingerprint(), reparsed.Fingerprint())
}

func TestSummaryParseTolerance(t *testing.T) {
	input := "# Summary\n\nSome intro prose.\n\n- [Home](/home.md)\n\t- [Nested page](home/child.md)\n\n## Guides\n\n+ Towns\n    + [Port](towns/port.md)\n---\n"

	toc, err := NewSummaryCodec().Parse([]byte(input))
	require.NoError(t, err)

	home, ok := toc.Locate("home")
	require.True(t, ok)
	assert.Equal(t, "home.md", home.Path)

	// Sub-pages of a page stay in the enclosing category.
	child, ok := toc.Locate("home/child")
	require.True(t, ok)
	assert.Equal(t, "", child.CategoryID)

	port, ok := toc.Locate("towns/port")
	require.True(t, ok)
	assert.Equal(t, "guides/towns", port.CategoryID)
}

func TestSummaryParseDuplicateCategoryTitles(t *testing.T) {
	input := "## Guides\n\n## Guides\n"
	toc, err := NewSummaryCodec().Parse([]byte(input))
	require.NoError(t, err)
	require.Len(t, toc.Categories, 2)
	assert.Equal(t, "guides", toc.Categories[0].ID)
	assert.Equal(t, "guides-2", toc.Categories[1].ID)

	out, err := NewSummaryCodec().Serialize(toc)
	require.NoError(t, err)
	assert.Contains(t, string(out), "## Guides <!-- id: guides-2 -->")
}

func TestSummaryParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"malformed link", "* [Broken](broken.md\n"},
		{"empty path", "* [Empty]()\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSummaryCodec().Parse([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrIndexUnreadable)
			assert.Equal(t, errors.CodeStructural, errors.CodeOf(err))
		})
	}
}

func TestForFormat(t *testing.T) {
	c, err := ForFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatSummary, c.Name())

	c, err = ForFormat("yaml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, c.Name())

	_, err = ForFormat("toml")
	assert.Error(t, err)
}

package testutil

import (
	"sort"

	"github.com/jbctechsolutions/wikisync/internal/domain/document"
)

// SampleSummary is a SUMMARY.md index listing the three SamplePages.
const SampleSummary = `# Summary

* [Welcome](welcome.md)
* [FAQ](faq.md)

## Guides

* [Rules](guides/rules.md)
`

// SamplePages are the page files referenced by SampleSummary, keyed by path.
var SamplePages = map[string]string{
	"welcome.md":      "# Welcome\n\nStart here.\n",
	"faq.md":          "# FAQ\n\nAsk away.\n",
	"guides/rules.md": "# Rules\n\nBe kind.\n",
}

// Seeder stores a file on a remote without concurrency checks.
type Seeder interface {
	Seed(path, content string) string
}

// SeedWiki writes the sample pages and then the sample index to remote,
// returning the revision of each path.
func SeedWiki(remote Seeder, indexPath string) map[string]string {
	revs := make(map[string]string, len(SamplePages)+1)
	paths := make([]string, 0, len(SamplePages))
	for p := range SamplePages {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		revs[p] = remote.Seed(p, SamplePages[p])
	}
	revs[indexPath] = remote.Seed(indexPath, SampleSummary)
	return revs
}

// SampleTOC returns the in-memory form of SampleSummary.
func SampleTOC() *document.TableOfContents {
	return &document.TableOfContents{
		Pages: []document.PageRef{
			{ID: "welcome", Title: "Welcome", Path: "welcome.md", Order: 0},
			{ID: "faq", Title: "FAQ", Path: "faq.md", Order: 1},
		},
		Categories: []*document.Category{
			{
				ID:    "guides",
				Title: "Guides",
				Order: 2,
				Pages: []document.PageRef{{ID: "guides/rules", Title: "Rules", Path: "guides/rules.md", Order: 0}},
			},
		},
	}
}

// NewPage builds a document for tests, failing loudly on a bad id.
func NewPage(id, title, content string) document.Document {
	d, err := document.New(id, title, content, Epoch)
	if err != nil {
		panic(err)
	}
	return d
}

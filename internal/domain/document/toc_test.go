package document

import (
	"reflect"
	"testing"
)

func sampleTOC() *TableOfContents {
	return &TableOfContents{
		Pages: []PageRef{{ID: "welcome", Title: "Welcome", Path: "welcome.md", Order: 0}},
		Categories: []*Category{
			{
				ID: "guides", Title: "Guides", Order: 1,
				Pages: []PageRef{
					{ID: "guides/rules", Title: "Rules", Path: "guides/rules.md", Order: 0},
				},
				Children: []*Category{
					{
						ID: "guides/towns", Title: "Towns", Order: 1,
						Pages: []PageRef{{ID: "guides/towns/capital", Title: "Capital", Path: "guides/towns/capital.md", Order: 0}},
					},
				},
			},
		},
	}
}

func placementIDs(toc *TableOfContents) []string {
	var ids []string
	for _, p := range toc.Placements() {
		ids = append(ids, p.CategoryID+":"+p.ID)
	}
	return ids
}

func TestPlacements(t *testing.T) {
	got := placementIDs(sampleTOC())
	want := []string{":welcome", "guides:guides/rules", "guides/towns:guides/towns/capital"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placements() = %v, want %v", got, want)
	}
}

func TestAddPageMovesExistingReference(t *testing.T) {
	toc := sampleTOC()

	if err := toc.AddPage("guides/towns", PageRef{ID: "guides/rules", Title: "Rules", Path: "guides/rules.md"}); err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}

	p, ok := toc.Locate("guides/rules")
	if !ok || p.CategoryID != "guides/towns" {
		t.Fatalf("page not moved: %+v", p)
	}
	if p.Order != 1 {
		t.Errorf("moved page order = %d, want 1", p.Order)
	}
	if len(toc.FindCategory("guides").Pages) != 0 {
		t.Error("page still listed in old category")
	}
}

func TestAddPageUnknownCategory(t *testing.T) {
	toc := sampleTOC()
	if err := toc.AddPage("missing", PageRef{ID: "x"}); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestAddPageRootOrdersAfterCategories(t *testing.T) {
	toc := sampleTOC()
	if err := toc.AddPage("", PageRef{ID: "faq", Title: "FAQ", Path: "faq.md"}); err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}
	entries := toc.Entries()
	last := entries[len(entries)-1]
	if last.Page == nil || last.Page.ID != "faq" {
		t.Errorf("expected faq to be the last root entry, got %+v", last)
	}
}

func TestRemovePage(t *testing.T) {
	toc := sampleTOC()
	if !toc.RemovePage("guides/towns/capital") {
		t.Fatal("RemovePage() = false, want true")
	}
	if toc.RemovePage("guides/towns/capital") {
		t.Error("second RemovePage() should report nothing removed")
	}
	if _, ok := toc.Locate("guides/towns/capital"); ok {
		t.Error("page still present")
	}
}

func TestCloneIsDeep(t *testing.T) {
	toc := sampleTOC()
	clone := toc.Clone()
	clone.FindCategory("guides/towns").Title = "Cities"
	clone.RemovePage("welcome")

	if toc.FindCategory("guides/towns").Title != "Towns" {
		t.Error("clone shares category nodes with the original")
	}
	if _, ok := toc.Locate("welcome"); !ok {
		t.Error("clone shares page slices with the original")
	}
}

func TestCategoryComparisons(t *testing.T) {
	a := sampleTOC().FindCategory("guides")
	b := sampleTOC().FindCategory("guides")

	if !a.SameMembers(b) || !a.SameLayout(b) {
		t.Fatal("identical categories should compare equal")
	}

	b.Pages[0].Order = 5
	if !a.SameMembers(b) {
		t.Error("reordering must not change membership")
	}
	if a.SameLayout(b) {
		t.Error("reordering must change layout")
	}

	b.Pages = append(b.Pages, PageRef{ID: "guides/new"})
	if a.SameMembers(b) {
		t.Error("added page must change membership")
	}
}

func TestReplaceCategory(t *testing.T) {
	toc := sampleTOC()
	ok := toc.ReplaceCategory(&Category{ID: "guides/towns", Title: "Cities"})
	if !ok {
		t.Fatal("ReplaceCategory() = false")
	}
	if toc.FindCategory("guides/towns").Title != "Cities" {
		t.Error("category not replaced")
	}
}

func TestFingerprint(t *testing.T) {
	a, b := sampleTOC(), sampleTOC()
	b.Revision = "12"
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("revision must not affect the fingerprint")
	}

	b.FindCategory("guides").Pages[0].Title = "House rules"
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("retitled page must change the fingerprint")
	}

	var empty *TableOfContents
	if !empty.Empty() || empty.Fingerprint() == "" {
		t.Error("nil index should be empty with a stable fingerprint")
	}
}

func TestPruneDuplicates(t *testing.T) {
	toc := sampleTOC()
	toc.FindCategory("guides/towns").Pages = append(toc.FindCategory("guides/towns").Pages,
		PageRef{ID: "guides/rules", Order: 4})
	toc.Pages = append(toc.Pages, PageRef{ID: "welcome", Order: 9})

	toc.PruneDuplicates(map[string]string{"guides/rules": "guides/towns"})

	p, _ := toc.Locate("guides/rules")
	if p.CategoryID != "guides/towns" {
		t.Errorf("preferred placement not kept: %+v", p)
	}
	if len(toc.FindCategory("guides").Pages) != 0 {
		t.Error("duplicate left in guides")
	}
	if len(toc.Pages) != 1 {
		t.Errorf("root pages = %d, want duplicate welcome removed", len(toc.Pages))
	}
}

func TestReplaceRootCategory(t *testing.T) {
	toc := sampleTOC()
	root := toc.Root().Clone()
	root.Pages = nil
	toc.ReplaceCategory(root)
	if len(toc.Pages) != 0 || len(toc.Categories) != 1 {
		t.Errorf("root not replaced: %+v", toc)
	}
}

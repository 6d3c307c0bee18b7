package document

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RootCategoryID names the implicit category holding root pages and
// top-level categories. It can never collide with a normalized id.
const RootCategoryID = "/"

// PageRef is a leaf of the table of contents pointing at a Document.
type PageRef struct {
	ID    string
	Title string
	Path  string
	Order int
}

// Category is a titled, ordered node of the table of contents.
type Category struct {
	ID           string
	Title        string
	Order        int
	Pages        []PageRef
	Children     []*Category
	LastModified time.Time
}

// TableOfContents is the hierarchical index of the wiki.
type TableOfContents struct {
	Pages      []PageRef   // pages outside any category
	Categories []*Category // top-level categories
	Revision   string      // remote revision of the index file
}

// Root returns the implicit root category. It shares slices with t.
func (t *TableOfContents) Root() *Category {
	return &Category{ID: RootCategoryID, Pages: t.Pages, Children: t.Categories}
}

// SetRoot replaces the root pages and top-level categories with those of c.
func (t *TableOfContents) SetRoot(c *Category) {
	t.Pages = c.Pages
	t.Categories = c.Children
}

// Empty reports whether the index lists nothing.
func (t *TableOfContents) Empty() bool {
	return t == nil || (len(t.Pages) == 0 && len(t.Categories) == 0)
}

// Fingerprint returns a digest of the index layout: ids, titles, paths and
// ordering. Revision and timestamps are excluded.
func (t *TableOfContents) Fingerprint() string {
	if t == nil {
		return ContentHash("")
	}
	var b strings.Builder
	var visit func(entries []Entry, depth int)
	visit = func(entries []Entry, depth int) {
		for _, e := range entries {
			b.WriteString(strings.Repeat(" ", depth))
			if e.Page != nil {
				fmt.Fprintf(&b, "p %s %q %s %d\n", e.Page.ID, e.Page.Title, e.Page.Path, e.Page.Order)
				continue
			}
			fmt.Fprintf(&b, "c %s %q %d\n", e.Category.ID, e.Category.Title, e.Category.Order)
			visit(e.Category.Entries(), depth+1)
		}
	}
	visit(t.Entries(), 0)
	return ContentHash(b.String())
}

// Placement locates a page within the table of contents.
type Placement struct {
	PageRef
	CategoryID string
}

// Entry is one ordered item of a category: either a page or a child category.
type Entry struct {
	Page     *PageRef
	Category *Category
}

// Order returns the entry's position within its parent.
func (e Entry) Order() int {
	if e.Page != nil {
		return e.Page.Order
	}
	return e.Category.Order
}

// Entries returns pages and child categories interleaved by Order.
func (c *Category) Entries() []Entry {
	return sortedEntries(c.Pages, c.Children)
}

// Entries returns the root pages and top-level categories interleaved by Order.
func (t *TableOfContents) Entries() []Entry {
	return sortedEntries(t.Pages, t.Categories)
}

func sortedEntries(pages []PageRef, children []*Category) []Entry {
	entries := make([]Entry, 0, len(pages)+len(children))
	for i := range pages {
		entries = append(entries, Entry{Page: &pages[i]})
	}
	for _, c := range children {
		entries = append(entries, Entry{Category: c})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Order() < entries[j].Order()
	})
	return entries
}

// MemberIDs returns the ids of the category's direct pages and child categories.
func (c *Category) MemberIDs() []string {
	ids := make([]string, 0, len(c.Pages)+len(c.Children))
	for _, p := range c.Pages {
		ids = append(ids, p.ID)
	}
	for _, ch := range c.Children {
		ids = append(ids, ch.ID)
	}
	return ids
}

// SameMembers reports whether both categories hold the same direct members.
func (c *Category) SameMembers(other *Category) bool {
	a, b := c.MemberIDs(), other.MemberIDs()
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}

// SameLayout reports whether titles and member ordering agree.
func (c *Category) SameLayout(other *Category) bool {
	if c.Title != other.Title || c.Order != other.Order {
		return false
	}
	a, b := c.Entries(), other.Entries()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if entryID(a[i]) != entryID(b[i]) {
			return false
		}
	}
	return true
}

func entryID(e Entry) string {
	if e.Page != nil {
		return "page:" + e.Page.ID
	}
	return "category:" + e.Category.ID
}

// Clone returns a deep copy of the category.
func (c *Category) Clone() *Category {
	if c == nil {
		return nil
	}
	out := &Category{
		ID:           c.ID,
		Title:        c.Title,
		Order:        c.Order,
		LastModified: c.LastModified,
		Pages:        append([]PageRef(nil), c.Pages...),
	}
	for _, ch := range c.Children {
		out.Children = append(out.Children, ch.Clone())
	}
	return out
}

func (c *Category) nextOrder() int {
	next := 0
	for _, p := range c.Pages {
		if p.Order >= next {
			next = p.Order + 1
		}
	}
	for _, ch := range c.Children {
		if ch.Order >= next {
			next = ch.Order + 1
		}
	}
	return next
}

// Clone returns a deep copy of the table of contents.
func (t *TableOfContents) Clone() *TableOfContents {
	if t == nil {
		return nil
	}
	out := &TableOfContents{
		Pages:    append([]PageRef(nil), t.Pages...),
		Revision: t.Revision,
	}
	for _, c := range t.Categories {
		out.Categories = append(out.Categories, c.Clone())
	}
	return out
}

// Walk visits every category depth-first in order, passing its parent id.
func (t *TableOfContents) Walk(fn func(c *Category, parentID string)) {
	var visit func(cs []*Category, parent string)
	visit = func(cs []*Category, parent string) {
		for _, c := range cs {
			fn(c, parent)
			visit(c.Children, c.ID)
		}
	}
	visit(t.Categories, "")
}

// AllCategories returns every category keyed by id.
func (t *TableOfContents) AllCategories() map[string]*Category {
	out := make(map[string]*Category)
	t.Walk(func(c *Category, _ string) {
		out[c.ID] = c
	})
	return out
}

// FindCategory returns the category with id, or nil.
func (t *TableOfContents) FindCategory(id string) *Category {
	var found *Category
	t.Walk(func(c *Category, _ string) {
		if found == nil && c.ID == id {
			found = c
		}
	})
	return found
}

// Placements returns every page reference with its category, in index order.
// A page listed more than once is reported at its first occurrence.
func (t *TableOfContents) Placements() []Placement {
	var out []Placement
	seen := make(map[string]struct{})
	add := func(p PageRef, category string) {
		if _, ok := seen[p.ID]; ok {
			return
		}
		seen[p.ID] = struct{}{}
		out = append(out, Placement{PageRef: p, CategoryID: category})
	}
	var visit func(entries []Entry, category string)
	visit = func(entries []Entry, category string) {
		for _, e := range entries {
			if e.Page != nil {
				add(*e.Page, category)
				continue
			}
			visit(e.Category.Entries(), e.Category.ID)
		}
	}
	visit(t.Entries(), "")
	return out
}

// Locate returns the placement of page id.
func (t *TableOfContents) Locate(id string) (Placement, bool) {
	for _, p := range t.Placements() {
		if p.ID == id {
			return p, true
		}
	}
	return Placement{}, false
}

// AddPage appends ref to the category (or the root when categoryID is empty).
// A page already present anywhere in the index is moved.
func (t *TableOfContents) AddPage(categoryID string, ref PageRef) error {
	if categoryID != "" && t.FindCategory(categoryID) == nil {
		return fmt.Errorf("category %q not found", categoryID)
	}
	if p, ok := t.Locate(ref.ID); ok && p.CategoryID == categoryID {
		return nil
	}
	t.RemovePage(ref.ID)
	if categoryID == "" {
		root := &Category{Pages: t.Pages, Children: t.Categories}
		ref.Order = root.nextOrder()
		t.Pages = append(t.Pages, ref)
		return nil
	}
	c := t.FindCategory(categoryID)
	ref.Order = c.nextOrder()
	c.Pages = append(c.Pages, ref)
	return nil
}

// AddCategory appends a new child category under parentID (root when empty).
func (t *TableOfContents) AddCategory(parentID string, c *Category) error {
	if t.FindCategory(c.ID) != nil {
		return fmt.Errorf("category %q already exists", c.ID)
	}
	if parentID == "" {
		root := &Category{Pages: t.Pages, Children: t.Categories}
		c.Order = root.nextOrder()
		t.Categories = append(t.Categories, c)
		return nil
	}
	parent := t.FindCategory(parentID)
	if parent == nil {
		return fmt.Errorf("category %q not found", parentID)
	}
	c.Order = parent.nextOrder()
	parent.Children = append(parent.Children, c)
	return nil
}

// RemovePage deletes every reference to page id. It reports whether one was found.
func (t *TableOfContents) RemovePage(id string) bool {
	removed := false
	filter := func(refs []PageRef) []PageRef {
		out := refs[:0]
		for _, r := range refs {
			if r.ID == id {
				removed = true
				continue
			}
			out = append(out, r)
		}
		return out
	}
	t.Pages = filter(t.Pages)
	t.Walk(func(c *Category, _ string) {
		c.Pages = filter(c.Pages)
	})
	return removed
}

// PruneDuplicates removes repeated references to the same page. The reference
// in category prefer[id] survives when present, otherwise the first one in
// index order.
func (t *TableOfContents) PruneDuplicates(prefer map[string]string) {
	occurrences := make(map[string][]string)
	var visit func(entries []Entry, category string)
	visit = func(entries []Entry, category string) {
		for _, e := range entries {
			if e.Page != nil {
				occurrences[e.Page.ID] = append(occurrences[e.Page.ID], category)
				continue
			}
			visit(e.Category.Entries(), e.Category.ID)
		}
	}
	visit(t.Entries(), "")

	keeper := make(map[string]string)
	for id, cats := range occurrences {
		keeper[id] = cats[0]
		if want, ok := prefer[id]; ok {
			for _, c := range cats {
				if c == want {
					keeper[id] = want
					break
				}
			}
		}
	}

	kept := make(map[string]bool)
	filter := func(refs []PageRef, category string) []PageRef {
		out := refs[:0]
		for _, r := range refs {
			if keeper[r.ID] != category || kept[r.ID] {
				continue
			}
			kept[r.ID] = true
			out = append(out, r)
		}
		return out
	}
	t.Pages = filter(t.Pages, "")
	t.Walk(func(c *Category, _ string) {
		c.Pages = filter(c.Pages, c.ID)
	})
}

// ReplaceCategory swaps the category with the same id for c, keeping its position.
func (t *TableOfContents) ReplaceCategory(c *Category) bool {
	if c.ID == RootCategoryID {
		t.SetRoot(c)
		return true
	}
	var replace func(cs []*Category) bool
	replace = func(cs []*Category) bool {
		for i, existing := range cs {
			if existing.ID == c.ID {
				cs[i] = c
				return true
			}
			if replace(existing.Children) {
				return true
			}
		}
		return false
	}
	return replace(t.Categories)
}

// Package index provides the table-of-contents codecs: a GitBook-style
// SUMMARY.md markdown format and a YAML format.
package index

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Ensure the codecs implement IndexCodec.
var (
	_ ports.IndexCodec = (*SummaryCodec)(nil)
	_ ports.IndexCodec = (*YAMLCodec)(nil)
)

var (
	linkPattern    = regexp.MustCompile(`^\[(.*)\]\(([^)]*)\)$`)
	idMarkPattern  = regexp.MustCompile(`\s*<!--\s*id:\s*(\S+)\s*-->\s*$`)
	bulletPrefixes = []string{"* ", "- ", "+ "}
)

// SummaryCodec reads and writes SUMMARY.md files:
//
//	# Summary
//
//	* [Welcome](welcome.md)
//
//	## Guides
//
//	* [Rules](guides/rules.md)
//	* Towns
//	  * [Capital](guides/towns/capital.md)
//
// Second-level headings are top-level categories, linked bullets are pages
// and plain bullets are nested categories. Category ids derive from the
// title path; an explicit "<!-- id: x -->" suffix overrides the derived id.
type SummaryCodec struct {
	Title string // heading written at the top of the file
}

// NewSummaryCodec creates the markdown codec.
func NewSummaryCodec() *SummaryCodec {
	return &SummaryCodec{Title: "Summary"}
}

// Name returns the codec's format name.
func (c *SummaryCodec) Name() string { return FormatSummary }

type frame struct {
	indent   int
	category *document.Category
}

// Parse builds the tree from SUMMARY.md text.
func (c *SummaryCodec) Parse(data []byte) (*document.TableOfContents, error) {
	toc := &document.TableOfContents{}
	root := &document.Category{ID: ""}
	used := make(map[string]bool)

	// stack[0] is the current section: the root or a top-level category.
	stack := []frame{{indent: -1, category: root}}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.ReplaceAll(scanner.Text(), "\t", "    ")
		line := strings.TrimSpace(raw)

		switch {
		case line == "" || line == "---":
			continue
		case strings.HasPrefix(line, "# "):
			continue
		case strings.HasPrefix(line, "## "):
			title, explicit := splitIDMark(strings.TrimPrefix(line, "## "))
			cat := &document.Category{Title: title, Order: nextOrder(root)}
			cat.ID = uniqueID(used, explicit, "", title)
			root.Children = append(root.Children, cat)
			stack = []frame{{indent: -1, category: cat}}
			continue
		}

		text, ok := trimBullet(line)
		if !ok {
			// Prose between lists carries no structure.
			continue
		}
		indent := len(raw) - len(strings.TrimLeft(raw, " "))

		for len(stack) > 1 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].category

		if strings.HasPrefix(text, "[") {
			m := linkPattern.FindStringSubmatch(text)
			if m == nil {
				return nil, unreadable(lineNo, "malformed link %q", text)
			}
			id, err := document.IDFromPath(m[2])
			if err != nil {
				return nil, unreadable(lineNo, "invalid page path %q", m[2])
			}
			parent.Pages = append(parent.Pages, document.PageRef{
				ID:    id,
				Title: m[1],
				Path:  strings.TrimPrefix(m[2], "/"),
				Order: nextOrder(parent),
			})
			// Sub-pages of a page belong to the same category.
			stack = append(stack, frame{indent: indent, category: parent})
			continue
		}

		title, explicit := splitIDMark(text)
		cat := &document.Category{Title: title, Order: nextOrder(parent)}
		cat.ID = uniqueID(used, explicit, parent.ID, title)
		parent.Children = append(parent.Children, cat)
		stack = append(stack, frame{indent: indent, category: cat})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewError(errors.CodeStructural, "read summary", fmt.Errorf("%w: %v", errors.ErrIndexUnreadable, err))
	}

	toc.Pages = root.Pages
	toc.Categories = root.Children
	return toc, nil
}

// Serialize writes the tree as SUMMARY.md text. Root pages precede the
// top-level categories.
func (c *SummaryCodec) Serialize(toc *document.TableOfContents) ([]byte, error) {
	var b bytes.Buffer
	title := c.Title
	if title == "" {
		title = "Summary"
	}
	fmt.Fprintf(&b, "# %s\n", title)
	if toc == nil {
		return b.Bytes(), nil
	}

	var rootPages []document.PageRef
	var sections []*document.Category
	for _, e := range toc.Entries() {
		if e.Page != nil {
			rootPages = append(rootPages, *e.Page)
		} else {
			sections = append(sections, e.Category)
		}
	}

	if len(rootPages) > 0 {
		b.WriteString("\n")
		for _, p := range rootPages {
			writePage(&b, 0, p)
		}
	}

	for _, cat := range sections {
		fmt.Fprintf(&b, "\n## %s%s\n", cat.Title, idMark(cat.ID, "", cat.Title))
		if len(cat.Pages)+len(cat.Children) > 0 {
			b.WriteString("\n")
		}
		writeEntries(&b, 0, cat)
	}
	return b.Bytes(), nil
}

func writeEntries(b *bytes.Buffer, depth int, cat *document.Category) {
	for _, e := range cat.Entries() {
		if e.Page != nil {
			writePage(b, depth, *e.Page)
			continue
		}
		child := e.Category
		fmt.Fprintf(b, "%s* %s%s\n", strings.Repeat("  ", depth), child.Title, idMark(child.ID, cat.ID, child.Title))
		writeEntries(b, depth+1, child)
	}
}

func writePage(b *bytes.Buffer, depth int, p document.PageRef) {
	path := p.Path
	if path == "" {
		path = document.PathForID(p.ID)
	}
	fmt.Fprintf(b, "%s* [%s](%s)\n", strings.Repeat("  ", depth), p.Title, path)
}

func trimBullet(line string) (string, bool) {
	for _, prefix := range bulletPrefixes {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	return "", false
}

func splitIDMark(text string) (title, id string) {
	if m := idMarkPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(idMarkPattern.ReplaceAllString(text, "")), m[1]
	}
	return strings.TrimSpace(text), ""
}

// derivedID is the id a category gets when the file carries no marker.
func derivedID(parentID, title string) string {
	slug := document.Slugify(title)
	if slug == "" {
		slug = "category"
	}
	if parentID == "" {
		return slug
	}
	return parentID + "/" + slug
}

func idMark(id, parentID, title string) string {
	if id == derivedID(parentID, title) {
		return ""
	}
	return fmt.Sprintf(" <!-- id: %s -->", id)
}

func uniqueID(used map[string]bool, explicit, parentID, title string) string {
	id := explicit
	if id == "" {
		id = derivedID(parentID, title)
	}
	candidate := id
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", id, n)
	}
	used[candidate] = true
	return candidate
}

func nextOrder(c *document.Category) int {
	return len(c.Pages) + len(c.Children)
}

func unreadable(line int, format string, args ...any) error {
	return errors.WithContext(
		errors.NewError(errors.CodeStructural, fmt.Sprintf(format, args...), errors.ErrIndexUnreadable),
		"line", line)
}

package index

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// YAMLCodec stores the index as YAML with explicit ids and ordering.
type YAMLCodec struct{}

// NewYAMLCodec creates the YAML codec.
func NewYAMLCodec() *YAMLCodec { return &YAMLCodec{} }

// Name returns the codec's format name.
func (c *YAMLCodec) Name() string { return FormatYAML }

type yamlPage struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Path  string `yaml:"path,omitempty"`
	Order int    `yaml:"order"`
}

type yamlCategory struct {
	ID         string         `yaml:"id"`
	Title      string         `yaml:"title"`
	Order      int            `yaml:"order"`
	Pages      []yamlPage     `yaml:"pages,omitempty"`
	Categories []yamlCategory `yaml:"categories,omitempty"`
}

type yamlIndex struct {
	Pages      []yamlPage     `yaml:"pages,omitempty"`
	Categories []yamlCategory `yaml:"categories,omitempty"`
}

// Parse decodes YAML index text.
func (c *YAMLCodec) Parse(data []byte) (*document.TableOfContents, error) {
	var doc yamlIndex
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewError(errors.CodeStructural, "decode yaml index", fmt.Errorf("%w: %v", errors.ErrIndexUnreadable, err))
	}

	seen := make(map[string]bool)
	toc := &document.TableOfContents{}
	pages, err := fromYAMLPages(doc.Pages)
	if err != nil {
		return nil, err
	}
	toc.Pages = pages
	for _, yc := range doc.Categories {
		cat, err := fromYAMLCategory(yc, seen)
		if err != nil {
			return nil, err
		}
		toc.Categories = append(toc.Categories, cat)
	}
	return toc, nil
}

func fromYAMLPages(in []yamlPage) ([]document.PageRef, error) {
	var out []document.PageRef
	for _, p := range in {
		id, err := document.NormalizeID(p.ID)
		if err != nil {
			return nil, errors.WithContext(
				errors.NewError(errors.CodeStructural, "invalid page id", errors.ErrIndexUnreadable), "id", p.ID)
		}
		path := p.Path
		if path == "" {
			path = document.PathForID(id)
		}
		out = append(out, document.PageRef{ID: id, Title: p.Title, Path: path, Order: p.Order})
	}
	return out, nil
}

func fromYAMLCategory(yc yamlCategory, seen map[string]bool) (*document.Category, error) {
	if yc.ID == "" || seen[yc.ID] {
		return nil, errors.WithContext(
			errors.NewError(errors.CodeStructural, "missing or duplicate category id", errors.ErrIndexUnreadable),
			"id", yc.ID)
	}
	seen[yc.ID] = true

	pages, err := fromYAMLPages(yc.Pages)
	if err != nil {
		return nil, err
	}
	cat := &document.Category{ID: yc.ID, Title: yc.Title, Order: yc.Order, Pages: pages}
	for _, child := range yc.Categories {
		c, err := fromYAMLCategory(child, seen)
		if err != nil {
			return nil, err
		}
		cat.Children = append(cat.Children, c)
	}
	return cat, nil
}

// Serialize encodes the index with members sorted by order.
func (c *YAMLCodec) Serialize(toc *document.TableOfContents) ([]byte, error) {
	var doc yamlIndex
	if toc != nil {
		doc.Pages = toYAMLPages(toc.Pages)
		for _, cat := range sortedCategories(toc.Categories) {
			doc.Categories = append(doc.Categories, toYAMLCategory(cat))
		}
	}
	return yaml.Marshal(doc)
}

func toYAMLPages(in []document.PageRef) []yamlPage {
	refs := append([]document.PageRef(nil), in...)
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Order < refs[j].Order })
	out := make([]yamlPage, 0, len(refs))
	for _, p := range refs {
		yp := yamlPage{ID: p.ID, Title: p.Title, Order: p.Order}
		if p.Path != document.PathForID(p.ID) {
			yp.Path = p.Path
		}
		out = append(out, yp)
	}
	return out
}

func toYAMLCategory(c *document.Category) yamlCategory {
	yc := yamlCategory{ID: c.ID, Title: c.Title, Order: c.Order, Pages: toYAMLPages(c.Pages)}
	for _, child := range sortedCategories(c.Children) {
		yc.Categories = append(yc.Categories, toYAMLCategory(child))
	}
	return yc
}

func sortedCategories(in []*document.Category) []*document.Category {
	out := append([]*document.Category(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

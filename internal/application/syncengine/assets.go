package syncengine

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/jbctechsolutions/wikisync/internal/domain/document"
)

// imageLink matches markdown images: ![alt](target "title").
var imageLink = regexp.MustCompile(`!\[[^\]]*\]\(\s*<?([^)\s>]+)>?(?:\s+"[^"]*")?\s*\)`)

// AssetRefs returns the remote paths of the images d references, resolved
// against the page's directory. External URLs and references escaping the
// wiki root are skipped.
func AssetRefs(d document.Document) []string {
	base := path.Dir(d.Path)
	if d.Path == "" {
		base = path.Dir(document.PathForID(d.ID))
	}

	var refs []string
	seen := make(map[string]bool)
	for _, m := range imageLink.FindAllStringSubmatch(d.Content, -1) {
		target := m[1]
		if strings.Contains(target, "://") || strings.HasPrefix(target, "data:") || strings.HasPrefix(target, "#") {
			continue
		}
		if i := strings.IndexAny(target, "?#"); i >= 0 {
			target = target[:i]
		}

		var p string
		if strings.HasPrefix(target, "/") {
			p = path.Clean(strings.TrimPrefix(target, "/"))
		} else {
			p = path.Clean(path.Join(base, target))
		}
		if p == "." || p == ".." || strings.HasPrefix(p, "../") || seen[p] {
			continue
		}
		seen[p] = true
		refs = append(refs, p)
	}
	return refs
}

// prefetchAssets caches the images of a freshly pulled page. Failures are
// logged and otherwise ignored.
func (o *Orchestrator) prefetchAssets(ctx context.Context, d document.Document) {
	for _, p := range AssetRefs(d) {
		exists, err := o.store.AssetExists(ctx, p)
		if err != nil || exists {
			continue
		}
		asset, err := o.remote.FetchAsset(ctx, p)
		if err != nil {
			o.logger.DebugContext(ctx, "asset prefetch failed", "page", d.ID, "asset", p, "error", err)
			continue
		}
		if err := o.store.PutAsset(ctx, *asset); err != nil {
			o.logger.DebugContext(ctx, "asset store failed", "asset", p, "error", err)
		}
	}
}

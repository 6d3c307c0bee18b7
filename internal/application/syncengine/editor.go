package syncengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/application/localstore"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
)

// Editor applies local edits: it updates the page cache and the local index
// and queues the change for the next push.
type Editor struct {
	store *localstore.Store
	queue *Queue
	now   func() time.Time
}

// NewEditor creates an editor sharing the orchestrator's queue.
func NewEditor(o *Orchestrator) *Editor {
	return &Editor{store: o.store, queue: o.queue, now: o.now}
}

// CreateRequest describes a new page. ID is derived from Title when empty,
// prefixed with the category id.
type CreateRequest struct {
	ID         string
	Title      string
	CategoryID string
	Content    string
}

// CreatePage stores a new page, lists it in the index and queues its creation.
func (e *Editor) CreatePage(ctx context.Context, req CreateRequest) (document.Document, error) {
	raw := req.ID
	if raw == "" {
		slug := document.Slugify(req.Title)
		if slug == "" {
			return document.Document{}, errors.NewError(errors.CodeValidation, "page needs an id or a title", errors.ErrInvalidDocumentID)
		}
		raw = slug
		if req.CategoryID != "" {
			raw = req.CategoryID + "/" + slug
		}
	}

	doc, err := document.New(raw, req.Title, req.Content, e.now())
	if err != nil {
		return document.Document{}, err
	}
	if doc.Title == "" {
		doc.Title = doc.ID[strings.LastIndex(doc.ID, "/")+1:]
	}
	doc.CategoryID = req.CategoryID

	exists, err := e.store.PageExists(ctx, doc.ID)
	if err != nil {
		return document.Document{}, err
	}
	if exists {
		return document.Document{}, errors.WithContext(
			errors.NewError(errors.CodeValidation, fmt.Sprintf("page %q already exists", doc.ID), nil),
			"id", doc.ID)
	}

	toc, _, err := e.store.LoadIndex(ctx)
	if err != nil {
		return document.Document{}, err
	}
	if err := toc.AddPage(doc.CategoryID, document.PageRef{ID: doc.ID, Title: doc.Title, Path: doc.Path}); err != nil {
		return document.Document{}, errors.NewError(errors.CodeValidation, err.Error(), nil)
	}
	if p, ok := toc.Locate(doc.ID); ok {
		doc.Order = p.Order
	}

	if err := e.store.PutPage(ctx, doc); err != nil {
		return document.Document{}, err
	}
	if err := e.store.SaveLocalIndex(ctx, toc); err != nil {
		return document.Document{}, err
	}
	if _, err := e.queue.Enqueue(ctx, syncstate.ChangeCreate, doc.ID, pagePayload(doc)); err != nil {
		return document.Document{}, err
	}
	return doc, nil
}

// UpdatePage replaces the content of a page. Identical content is a no-op.
func (e *Editor) UpdatePage(ctx context.Context, id, content string) (document.Document, error) {
	doc, err := e.page(ctx, id)
	if err != nil {
		return document.Document{}, err
	}
	if doc.Hash == document.ContentHash(content) {
		return doc, nil
	}

	doc.Content = content
	doc.LastModified = document.NormalizeTime(e.now())
	doc.Rehash()
	if err := e.store.PutPage(ctx, doc); err != nil {
		return document.Document{}, err
	}

	changeType := syncstate.ChangeUpdate
	if !doc.Synced() {
		changeType = syncstate.ChangeCreate
	}
	if _, err := e.queue.Enqueue(ctx, changeType, doc.ID, pagePayload(doc)); err != nil {
		return document.Document{}, err
	}
	return doc, nil
}

// RenamePage changes the title of a page in the index.
func (e *Editor) RenamePage(ctx context.Context, id, title string) error {
	doc, err := e.page(ctx, id)
	if err != nil {
		return err
	}
	toc, _, err := e.store.LoadIndex(ctx)
	if err != nil {
		return err
	}
	renamed := false
	rename := func(refs []document.PageRef) {
		for i := range refs {
			if refs[i].ID == doc.ID {
				refs[i].Title = title
				renamed = true
			}
		}
	}
	rename(toc.Pages)
	toc.Walk(func(c *document.Category, _ string) {
		rename(c.Pages)
	})
	if !renamed {
		return errors.NotFound(doc.Path)
	}

	doc.Title = title
	if err := e.store.PutPage(ctx, doc); err != nil {
		return err
	}
	return e.store.SaveLocalIndex(ctx, toc)
}

// MovePage places a page in another category (the root when empty).
func (e *Editor) MovePage(ctx context.Context, id, categoryID string) error {
	doc, err := e.page(ctx, id)
	if err != nil {
		return err
	}
	toc, _, err := e.store.LoadIndex(ctx)
	if err != nil {
		return err
	}
	if err := toc.AddPage(categoryID, document.PageRef{ID: doc.ID, Title: doc.Title, Path: doc.Path}); err != nil {
		return errors.NewError(errors.CodeValidation, err.Error(), nil)
	}
	if p, ok := toc.Locate(doc.ID); ok {
		doc.Order = p.Order
	}
	doc.CategoryID = categoryID
	if err := e.store.PutPage(ctx, doc); err != nil {
		return err
	}
	return e.store.SaveLocalIndex(ctx, toc)
}

// DeletePage removes a page locally and unlists it. A page the remote has
// seen is deleted remotely by the next index push.
func (e *Editor) DeletePage(ctx context.Context, id string) error {
	doc, err := e.page(ctx, id)
	if err != nil {
		return err
	}

	toc, _, err := e.store.LoadIndex(ctx)
	if err != nil {
		return err
	}
	if toc.RemovePage(doc.ID) {
		if err := e.store.SaveLocalIndex(ctx, toc); err != nil {
			return err
		}
	}
	if err := e.store.DeletePage(ctx, doc.ID); err != nil {
		return err
	}
	if _, err := e.queue.DropTarget(ctx, doc.ID); err != nil {
		return err
	}
	if doc.Revision == "" {
		return nil
	}
	_, err = e.queue.Enqueue(ctx, syncstate.ChangeDelete, doc.ID, ChangePayload{Path: doc.Path, Revision: doc.Revision})
	return err
}

// CreateCategory adds a category under parentID (the root when empty) and
// returns its id.
func (e *Editor) CreateCategory(ctx context.Context, parentID, title string) (string, error) {
	slug := document.Slugify(title)
	if slug == "" {
		return "", errors.NewError(errors.CodeValidation, "category title is empty", nil)
	}
	id := slug
	if parentID != "" {
		id = parentID + "/" + slug
	}

	toc, _, err := e.store.LoadIndex(ctx)
	if err != nil {
		return "", err
	}
	if err := toc.AddCategory(parentID, &document.Category{
		ID:           id,
		Title:        title,
		LastModified: document.NormalizeTime(e.now()),
	}); err != nil {
		return "", errors.NewError(errors.CodeValidation, err.Error(), nil)
	}
	return id, e.store.SaveLocalIndex(ctx, toc)
}

func (e *Editor) page(ctx context.Context, id string) (document.Document, error) {
	normalized, err := document.NormalizeID(id)
	if err != nil {
		return document.Document{}, err
	}
	return e.store.GetPage(ctx, normalized)
}

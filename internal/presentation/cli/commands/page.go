package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/application"
	"github.com/jbctechsolutions/wikisync/internal/application/syncengine"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/terminal"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
)

// PageInfo is the JSON form of a cached page.
type PageInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Category     string    `json:"category,omitempty"`
	State        string    `json:"state"`
	Size         int       `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Revision     string    `json:"revision,omitempty"`
	Content      string    `json:"content,omitempty"`
}

func newPageInfo(d document.Document, withContent bool) PageInfo {
	info := PageInfo{
		ID:           d.ID,
		Title:        d.Title,
		Category:     d.CategoryID,
		State:        pageState(d),
		Size:         len(d.Content),
		LastModified: d.LastModified,
		Revision:     d.Revision,
	}
	if withContent {
		info.Content = d.Content
	}
	return info
}

func pageState(d document.Document) string {
	switch {
	case !d.Synced():
		return "new"
	case d.LocallyModified():
		return "modified"
	default:
		return "synced"
	}
}

// NewPageCmd creates the page command.
func NewPageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "page",
		Aliases: []string{"pages"},
		Short:   "Read and edit cached pages",
		Long: `Read and edit pages in the local cache. Edits are queued and pushed to
the remote on the next sync cycle; they work offline.`,
	}

	cmd.AddCommand(newPageListCmd())
	cmd.AddCommand(newPageTreeCmd())
	cmd.AddCommand(newPageShowCmd())
	cmd.AddCommand(newPageEditCmd())
	cmd.AddCommand(newPageCreateCmd())
	cmd.AddCommand(newPageRenameCmd())
	cmd.AddCommand(newPageMoveCmd())
	cmd.AddCommand(newPageDeleteCmd())
	cmd.AddCommand(newCategoryCmd())

	return cmd
}

func newPageListCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List cached pages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()

			pages, err := container.LocalStore().LoadAllPages(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load pages: %w", err)
			}
			infos := make([]PageInfo, 0, len(pages))
			for _, d := range pages {
				if category != "" && d.CategoryID != category {
					continue
				}
				infos = append(infos, newPageInfo(d, false))
			}
			sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(infos)
			}
			if len(infos) == 0 {
				formatter.Info("No pages cached; run 'wikisync sync' first")
				return nil
			}
			now := time.Now()
			rows := make([][]string, 0, len(infos))
			for _, p := range infos {
				cat := p.Category
				if cat == "" {
					cat = document.RootCategoryID
				}
				state := p.State
				if state != "synced" {
					state = formatter.Colorize(state, output.ColorYellow)
				}
				rows = append(rows, []string{p.ID, p.Title, cat, state, output.Ago(p.LastModified, now)})
			}
			return formatter.Table(output.TableData{
				Columns: []output.TableColumn{
					{Header: "ID"}, {Header: "TITLE"}, {Header: "CATEGORY"}, {Header: "STATE"}, {Header: "MODIFIED"},
				},
				Rows: rows,
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only list pages in this category")

	return cmd
}

func newPageTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the table of contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()

			toc, _, err := container.LocalStore().LoadIndex(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load index: %w", err)
			}
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(toc)
			}
			if toc.Empty() {
				formatter.Info("The index is empty")
				return nil
			}
			printEntries(formatter, toc.Entries(), 0)
			return nil
		},
	}
}

func printEntries(f *output.Formatter, entries []document.Entry, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		if e.Page != nil {
			f.Println("%s- %s %s", indent, e.Page.Title, f.Dim("("+e.Page.ID+")"))
			continue
		}
		f.Println("%s%s %s", indent, f.Bold(e.Category.Title+"/"), f.Dim("("+e.Category.ID+")"))
		printEntries(f, e.Category.Entries(), depth+1)
	}
}

func newPageShowCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:     "show <id>",
		Aliases: []string{"cat"},
		Short:   "Print a cached page",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()

			doc, err := loadPage(cmd.Context(), container, args[0])
			if err != nil {
				return err
			}
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(newPageInfo(doc, true))
			}
			if !raw {
				formatter.Header(doc.Title)
				formatter.Item("ID", doc.ID)
				formatter.Item("State", pageState(doc))
				formatter.Item("Modified", output.Ago(doc.LastModified, time.Now()))
				formatter.Println("")
			}
			formatter.Print("%s", doc.Content)
			if !strings.HasSuffix(doc.Content, "\n") {
				formatter.Println("")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print only the page body")

	return cmd
}

func newPageEditCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace the content of a page",
		Long: `Replace the content of a page and queue the change.

The new content is read from --file, from stdin when --file is "-", or
otherwise from $VISUAL or $EDITOR opened on the current content.`,
		Example: `  # Edit in your editor
  wikisync page edit guides/rules

  # Replace from a file
  wikisync page edit faq --file faq.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()
			ctx := cmd.Context()

			doc, err := loadPage(ctx, container, args[0])
			if err != nil {
				return err
			}

			var content string
			if file != "" {
				content, err = readContent(cmd.InOrStdin(), file)
			} else {
				content, err = terminal.NewEditor("").Edit(ctx, doc.ID, doc.Content)
			}
			if err != nil {
				return err
			}

			updated, err := container.Editor().UpdatePage(ctx, doc.ID, content)
			if err != nil {
				return fmt.Errorf("failed to update page: %w", err)
			}
			if err := syncMirror(ctx, container); err != nil {
				return err
			}

			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(newPageInfo(updated, false))
			}
			if updated.Hash == doc.Hash {
				formatter.Info("No changes to %s", doc.ID)
				return nil
			}
			formatter.Success("Updated %s; the change is queued for the next sync", doc.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the new content from a file (- for stdin)")

	return cmd
}

func newPageCreateCmd() *cobra.Command {
	var (
		id       string
		category string
		file     string
	)

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a page",
		Long: `Create a page in the local cache and list it in the index. Without --id
the id is derived from the title, inside the category when one is given.`,
		Example: `  wikisync page create "House Rules" --category guides --file rules.md`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()
			ctx := cmd.Context()

			var content string
			if file != "" {
				if content, err = readContent(cmd.InOrStdin(), file); err != nil {
					return err
				}
			}

			doc, err := container.Editor().CreatePage(ctx, syncengine.CreateRequest{
				ID:         id,
				Title:      args[0],
				CategoryID: categoryArg(category),
				Content:    content,
			})
			if err != nil {
				return fmt.Errorf("failed to create page: %w", err)
			}
			if err := syncMirror(ctx, container); err != nil {
				return err
			}

			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(newPageInfo(doc, false))
			}
			formatter.Success("Created %s", doc.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "page id (derived from the title when empty)")
	cmd.Flags().StringVar(&category, "category", "", "category to place the page in")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the content from a file (- for stdin)")

	return cmd
}

func newPageRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change the title of a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			if err := container.Editor().RenamePage(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("failed to rename page: %w", err)
			}
			GetFormatter().Success("Renamed %s to %q", args[0], args[1])
			return nil
		},
	}
}

func newPageMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <category>",
		Short: "Move a page to another category",
		Long:  `Move a page to another category. Use / for the root of the index.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			if err := container.Editor().MovePage(cmd.Context(), args[0], categoryArg(args[1])); err != nil {
				return fmt.Errorf("failed to move page: %w", err)
			}
			GetFormatter().Success("Moved %s to %s", args[0], args[1])
			return nil
		},
	}
}

func newPageDeleteCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a page",
		Long: `Delete a page from the cache and the index. A page the remote already
knows is deleted there on the next sync.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			if !confirm {
				return fmt.Errorf("deleting %s needs --confirm", args[0])
			}
			ctx := cmd.Context()
			if err := container.Editor().DeletePage(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete page: %w", err)
			}
			if err := syncMirror(ctx, container); err != nil {
				return err
			}
			GetFormatter().Success("Deleted %s", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm the deletion")

	return cmd
}

func newCategoryCmd() *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "category <title>",
		Short: "Create a category in the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()

			id, err := container.Editor().CreateCategory(cmd.Context(), categoryArg(parent), args[0])
			if err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(map[string]string{"id": id, "title": args[0]})
			}
			formatter.Success("Created category %s", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "parent category (the root when empty)")

	return cmd
}

func loadPage(ctx context.Context, container *application.Container, raw string) (document.Document, error) {
	id, err := document.NormalizeID(raw)
	if err != nil {
		return document.Document{}, err
	}
	doc, err := container.LocalStore().GetPage(ctx, id)
	if err != nil {
		return document.Document{}, fmt.Errorf("page %s: %w", id, err)
	}
	return doc, nil
}

// categoryArg maps the root marker to the empty category id.
func categoryArg(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == document.RootCategoryID {
		return ""
	}
	return raw
}

func readContent(stdin io.Reader, file string) (string, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return string(data), nil
}

// syncMirror rewrites the workspace after a local edit.
func syncMirror(ctx context.Context, container *application.Container) error {
	var result SyncResult
	return refreshMirror(ctx, container, &result)
}

// Wikisync CLI entry point
//
// Wikisync keeps an offline cache of a remote wiki: pages, the table of
// contents and assets. It queues local edits, pushes them on the next sync
// cycle and settles concurrent changes with per-page conflict strategies.
package main

import "github.com/jbctechsolutions/wikisync/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}

package index

import (
	"fmt"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
)

// Supported index formats.
const (
	FormatSummary = "summary"
	FormatYAML    = "yaml"
)

// ForFormat returns the codec for a configured format name.
func ForFormat(format string) (ports.IndexCodec, error) {
	switch format {
	case FormatSummary, "":
		return NewSummaryCodec(), nil
	case FormatYAML:
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported index format %q", format)
	}
}

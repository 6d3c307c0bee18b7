// Package httpapi implements the remote transport over the wikisync HTTP
// protocol served by `wikisync serve`.
//
// Documents are exchanged as raw bodies. The revision travels in the ETag
// response header and in If-Match on writes; a create sends
// "If-None-Match: *". Errors carry a JSON body {"error":{"code","message"}}.
package httpapi

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
)

// Routes and headers shared by the client and the reference server.
const (
	DocumentsPath = "/v1/documents"
	AccessPath    = "/v1/access"

	HeaderMessage   = "X-Wikisync-Message"
	HeaderUpdatedAt = "X-Wikisync-Updated-At"
	HeaderRequestID = "X-Request-Id"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListResponse is the body of a directory listing.
type ListResponse struct {
	Entries []ports.RemoteEntry `json:"entries"`
}

// ETag quotes a revision for the ETag and If-Match headers.
func ETag(revision string) string {
	return strconv.Quote(revision)
}

// ParseETag strips quotes and a weak prefix from an ETag value.
func ParseETag(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "W/")
	if s, err := strconv.Unquote(v); err == nil {
		return s
	}
	return v
}

// FormatTime renders a modification time for HeaderUpdatedAt.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses HeaderUpdatedAt, returning zero on malformed input.
func ParseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// EscapePath escapes each segment of a document path for use in a URL.
func EscapePath(p string) string {
	segs := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

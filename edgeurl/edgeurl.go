// Package edgeurl is the bidirectional mapping between rewritten edge URLs
// and the origin URLs they stand for.
//
// The wire shape is the single contract this package understands:
//
//	https://{edge-host}/{origin-host}/{origin-path}[?query][#fragment]
//
// The first path segment after the edge host is always the literal origin
// hostname; everything after it is the origin path. Decoding is purely
// syntactic; no server is ever contacted.
//
// Nothing here returns an error or panics. A URL that does not match the
// shape is returned unchanged: a visibly broken fallback is preferred over
// a crash in the delivery path.
package edgeurl

import (
	"net/url"
	"strings"
)

// MinSegments is the minimum number of path segments a rewritten URL must
// carry: the origin host and at least one path component.
const MinSegments = 2

// Decode converts a rewritten edge URL into the origin URL it represents.
// minSegments below MinSegments is raised to MinSegments.
//
// The query string and fragment are re-appended exactly as received, never
// re-encoded: they carry cache-busting versions and SVG fragment references
// that must survive byte-for-byte.
func Decode(edgeURL string, minSegments int) string {
	if minSegments < MinSegments {
		minSegments = MinSegments
	}

	// Split query and fragment off the raw string before parsing so they
	// can be reattached verbatim.
	rest := edgeURL
	frag := ""
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		frag = rest[i:]
		rest = rest[:i]
	}
	query := ""
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		query = rest[i:]
		rest = rest[:i]
	}

	u, err := url.Parse(rest)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return edgeURL
	}

	path := strings.TrimPrefix(u.EscapedPath(), "/")
	segs := strings.Split(path, "/")
	if len(segs) < minSegments || segs[0] == "" {
		return edgeURL
	}

	return u.Scheme + "://" + segs[0] + "/" + strings.Join(segs[1:], "/") + query + frag
}

// Encode converts an origin URL into edge form on the given worker host.
// Used only for best-effort cache warming; the result is never validated.
func Encode(originURL, workerHost string) string {
	stripped := originURL
	if i := strings.Index(stripped, "://"); i >= 0 {
		stripped = stripped[i+len("://"):]
	}
	return "https://" + workerHost + "/" + stripped
}

// IsRewritten reports whether u matches the rewritten shape, i.e. whether
// decoding it yields a different URL.
func IsRewritten(u string) bool {
	return Decode(u, MinSegments) != u
}

// Package audit statically checks rendered HTML for delivery problems.
//
// It walks a page the rewriter has already processed and verifies every
// marked image against the contract the runtime engine depends on: the
// rewritten URL must decode to an origin URL. The worker domain is
// optional, so images lacking one are only counted as unwarmed. Run it
// against a page before pointing the watcher at a site.
package audit

import (
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/img-pro/bandwidth-saver-sub002/edgeurl"
	"github.com/img-pro/bandwidth-saver-sub002/fallback"
)

// Image is one marked <img> found in the document.
type Image struct {
	Src    string `json:"src"`
	Origin string `json:"origin"` // decoded origin URL (equals Src when undecodable)
	Worker string `json:"worker,omitempty"`
	Lazy   bool   `json:"lazy"`
}

// ProblemKind classifies an audit finding.
type ProblemKind string

const (
	ProblemUndecodable ProblemKind = "undecodable_src" // src does not match the rewritten shape
	ProblemMissingSrc  ProblemKind = "missing_src"     // marked image without a source
)

// Problem is one audit finding.
type Problem struct {
	Kind ProblemKind `json:"kind"`
	Src  string      `json:"src,omitempty"`
}

// Report summarises a scanned document.
type Report struct {
	Total    int       `json:"total"`    // all <img> elements
	Marked   int       `json:"marked"`   // carrying the CDN marker
	Lazy     int       `json:"lazy"`     // marked and lazy-loading
	Unwarmed int       `json:"unwarmed"` // marked but no worker domain: warming skipped, not an error
	Images   []Image   `json:"images"`
	Problems []Problem `json:"problems"`
}

// Clean reports whether the document raised no findings.
func (r *Report) Clean() bool {
	return len(r.Problems) == 0
}

// Scan parses the document and audits every marked image.
func Scan(r io.Reader) (*Report, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("audit: parse: %w", err)
	}

	rep := &Report{}
	walk(doc, rep)
	return rep, nil
}

func walk(n *html.Node, rep *Report) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		rep.Total++
		auditImg(n, rep)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, rep)
	}
}

func auditImg(n *html.Node, rep *Report) {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}

	if _, marked := attrs[fallback.AttrMarker]; !marked {
		return
	}
	rep.Marked++

	img := Image{
		Src:    attrs["src"],
		Worker: attrs[fallback.AttrWorker],
		Lazy:   attrs["loading"] == "lazy",
	}
	if img.Lazy {
		rep.Lazy++
	}

	if img.Src == "" {
		rep.Problems = append(rep.Problems, Problem{Kind: ProblemMissingSrc})
		rep.Images = append(rep.Images, img)
		return
	}

	img.Origin = edgeurl.Decode(img.Src, edgeurl.MinSegments)
	if img.Origin == img.Src {
		rep.Problems = append(rep.Problems, Problem{Kind: ProblemUndecodable, Src: img.Src})
	}
	// The worker attribute is optional: without it the image simply skips
	// warming, so its absence is counted, not flagged.
	if img.Worker == "" {
		rep.Unwarmed++
	}

	rep.Images = append(rep.Images, img)
}

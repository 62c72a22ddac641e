package audit

import (
	"strings"
	"testing"
)

const samplePage = `<!doctype html>
<html><body>
<img src="https://edge.tld/origin.tld/a.jpg" data-bsr-cdn="1" data-bsr-worker="edge.tld">
<img src="https://edge.tld/origin.tld/b.jpg?v=3" data-bsr-cdn="1" data-bsr-worker="edge.tld" loading="lazy">
<img src="https://edge.tld/broken" data-bsr-cdn="1">
<img src="https://elsewhere.tld/unmanaged.png">
<img data-bsr-cdn="1">
</body></html>`

func TestScanCountsAndDecodes(t *testing.T) {
	rep, err := Scan(strings.NewReader(samplePage))
	if err != nil {
		t.Fatal(err)
	}

	if rep.Total != 5 {
		t.Errorf("total: got %d, want 5", rep.Total)
	}
	if rep.Marked != 4 {
		t.Errorf("marked: got %d, want 4", rep.Marked)
	}
	if rep.Lazy != 1 {
		t.Errorf("lazy: got %d, want 1", rep.Lazy)
	}

	if got := rep.Images[0].Origin; got != "https://origin.tld/a.jpg" {
		t.Errorf("origin: got %q, want decoded URL", got)
	}
	if got := rep.Images[1].Origin; got != "https://origin.tld/b.jpg?v=3" {
		t.Errorf("origin with query: got %q", got)
	}
}

func TestScanFindsProblems(t *testing.T) {
	rep, err := Scan(strings.NewReader(samplePage))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Clean() {
		t.Fatal("expected problems in sample page")
	}

	kinds := map[ProblemKind]int{}
	for _, p := range rep.Problems {
		kinds[p.Kind]++
	}
	if kinds[ProblemUndecodable] != 1 {
		t.Errorf("undecodable: got %d, want 1", kinds[ProblemUndecodable])
	}
	if kinds[ProblemMissingSrc] != 1 {
		t.Errorf("missing src: got %d, want 1", kinds[ProblemMissingSrc])
	}
}

func TestScanMissingWorkerIsNotAProblem(t *testing.T) {
	// The worker attribute is optional; without it the image just skips
	// warming. The audit counts it but a worker-less page stays clean.
	page := `<html><body>
<img src="https://edge.tld/origin.tld/x.jpg" data-bsr-cdn="1">
</body></html>`
	rep, err := Scan(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Clean() {
		t.Errorf("problems: got %v, want none for a missing worker", rep.Problems)
	}
	if rep.Unwarmed != 1 {
		t.Errorf("unwarmed: got %d, want 1", rep.Unwarmed)
	}
}

func TestScanCleanPage(t *testing.T) {
	page := `<html><body>
<img src="https://edge.tld/origin.tld/x.jpg" data-bsr-cdn="1" data-bsr-worker="edge.tld">
</body></html>`
	rep, err := Scan(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Clean() {
		t.Errorf("problems: got %v, want none", rep.Problems)
	}
}

func TestScanUnmanagedImagesIgnored(t *testing.T) {
	page := `<html><body><img src="https://a.tld/x.png"><img src="/rel.png"></body></html>`
	rep, err := Scan(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Marked != 0 || len(rep.Problems) != 0 {
		t.Errorf("unmanaged images must not be audited: %+v", rep)
	}
}

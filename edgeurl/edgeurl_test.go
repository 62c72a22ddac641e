package edgeurl

import "testing"

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "basic",
			in:   "https://edge.tld/origin.tld/wp-content/uploads/a.jpg",
			want: "https://origin.tld/wp-content/uploads/a.jpg",
		},
		{
			name: "query and fragment preserved",
			in:   "https://edge.tld/origin.tld/a/b.jpg?v=7#frag",
			want: "https://origin.tld/a/b.jpg?v=7#frag",
		},
		{
			name: "query not re-encoded",
			in:   "https://edge.tld/origin.tld/a.jpg?x=%20a+b&y=1",
			want: "https://origin.tld/a.jpg?x=%20a+b&y=1",
		},
		{
			name: "scheme of the edge URL is kept",
			in:   "http://edge.tld/origin.tld/a.jpg",
			want: "http://origin.tld/a.jpg",
		},
		{
			name: "deep path",
			in:   "https://edge.tld/origin.tld/2024/01/02/photo.webp",
			want: "https://origin.tld/2024/01/02/photo.webp",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Decode(c.in, 2); got != c.want {
				t.Errorf("Decode(%q): got %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestDecodeMalformedReturnsInput(t *testing.T) {
	inputs := []string{
		"https://edge.tld/onlyonepathsegment",
		"https://edge.tld/",
		"https://edge.tld",
		"not a url at all",
		"//no-scheme.tld/origin.tld/a.jpg",
		"",
		"https://edge.tld//a.jpg", // empty origin host segment
	}
	for _, in := range inputs {
		if got := Decode(in, 2); got != in {
			t.Errorf("Decode(%q): got %q, want input unchanged", in, got)
		}
	}
}

func TestDecodeMinSegmentsFloor(t *testing.T) {
	// minSegments below 2 is raised, never allowing a hostless decode.
	in := "https://edge.tld/onlyonepathsegment"
	if got := Decode(in, 0); got != in {
		t.Errorf("Decode(%q, 0): got %q, want input unchanged", in, got)
	}
}

func TestEncode(t *testing.T) {
	got := Encode("https://origin.tld/a/b.jpg?v=7", "edge.tld")
	want := "https://edge.tld/origin.tld/a/b.jpg?v=7"
	if got != want {
		t.Errorf("Encode: got %q, want %q", got, want)
	}

	// No scheme separator: used verbatim as the suffix.
	got = Encode("origin.tld/a.jpg", "edge.tld")
	want = "https://edge.tld/origin.tld/a.jpg"
	if got != want {
		t.Errorf("Encode without scheme: got %q, want %q", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	edge := "https://edge.tld/origin.tld/a/b.jpg?v=7#frag"
	origin := Decode(edge, 2)
	back := Encode(origin, "edge.tld")
	if back != edge {
		t.Errorf("round-trip: got %q, want %q", back, edge)
	}
}

func TestIsRewritten(t *testing.T) {
	if !IsRewritten("https://edge.tld/origin.tld/a.jpg") {
		t.Error("IsRewritten: expected true for rewritten URL")
	}
	if IsRewritten("https://origin.tld/a.jpg") {
		// Single path segment: decodes to itself.
		t.Error("IsRewritten: expected false for plain origin URL")
	}
}

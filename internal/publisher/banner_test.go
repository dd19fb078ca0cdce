package publisher

import (
	"strings"
	"testing"
)

func TestIsHTMLPath(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]bool{
		"index.html":      true,
		"docs/About.HTM":  true,
		"app.js":          false,
		"styles/site.css": false,
		"html":            false,
	} {
		if got := isHTMLPath(path); got != want {
			t.Errorf("isHTMLPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestInjectBanner(t *testing.T) {
	t.Parallel()

	out := injectBanner(
		[]byte("<html><head><title>Hi</title></head><body><p>x</p></body></html>"),
		"https://platform.example.com/banner.js", "tok")

	s := string(out)
	if !strings.Contains(s, `src="https://platform.example.com/banner.js"`) {
		t.Errorf("script src missing: %s", s)
	}
	if !strings.Contains(s, `<p>x</p>`) {
		t.Errorf("original content lost: %s", s)
	}
	// The banner goes at the end of body.
	if strings.Index(s, "<p>x</p>") > strings.Index(s, "banner.js") {
		t.Errorf("banner should be appended after content: %s", s)
	}
}

func TestInjectBanner_NonHTMLPassesThrough(t *testing.T) {
	t.Parallel()

	// No body element to hang the banner on: content is untouched.
	in := []byte("just text, no markup")
	out := injectBanner(in, "https://x/banner.js", "tok")
	if strings.Contains(string(out), "banner.js") {
		t.Errorf("banner injected into bodyless content: %s", out)
	}
}

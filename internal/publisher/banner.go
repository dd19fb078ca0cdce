package publisher

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// isHTMLPath reports whether a build file path looks like an HTML document.
func isHTMLPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}

// injectBanner appends the status-banner script to the document body so a
// deployed preview can query its own publish state. The preview token is
// carried on the tag; the banner script reads it off its own element.
// On any parse failure the original content is returned untouched, since a
// missing banner must never break a deployment.
func injectBanner(content []byte, scriptURL, previewToken string) []byte {
	// The HTML parser synthesizes a body for any input, so gate on the
	// document actually declaring one.
	if !strings.Contains(strings.ToLower(string(content)), "<body") {
		return content
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return content
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		return content
	}

	var tag strings.Builder
	tag.WriteString(`<script src="`)
	tag.WriteString(scriptURL)
	tag.WriteString(`" data-preview-token="`)
	tag.WriteString(previewToken)
	tag.WriteString(`" defer></script>`)
	body.AppendHtml(tag.String())

	out, err := doc.Html()
	if err != nil {
		return content
	}
	return []byte(out)
}

package collect

import (
	"html"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// CleanText strips markup, decodes entities, NFC-normalizes and collapses
// whitespace. Plain text passes through unchanged apart from whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	// The sanitizer re-escapes text, so entities are decoded afterwards.
	s = html.UnescapeString(stripPolicy.Sanitize(s))
	// Markup that arrived entity-encoded only surfaces after decoding.
	if strings.Contains(s, "<") {
		s = html.UnescapeString(stripPolicy.Sanitize(s))
	}
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// ReadableText extracts the main article text from an HTML document.
// It falls back to CleanText when readability finds nothing.
func ReadableText(doc, pageURL string) string {
	if strings.TrimSpace(doc) == "" {
		return ""
	}
	parsed, err := url.Parse(pageURL)
	if err == nil {
		article, err := readability.FromReader(strings.NewReader(doc), parsed)
		if err == nil {
			if text := CleanText(article.TextContent); text != "" {
				return text
			}
		}
	}
	return CleanText(doc)
}

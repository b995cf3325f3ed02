package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/TobiSchelling/newsbridge/internal/collect"
	"github.com/TobiSchelling/newsbridge/internal/database"
)

// ErrIncompleteCandidate means the candidate lacks a url, a title or content.
var ErrIncompleteCandidate = errors.New("incomplete candidate")

// Hebrew is the language code routed to the Hebrew slots. Every other
// language fills the English slots.
const Hebrew = "he"

// fields is the variant-independent shape every candidate reduces to.
type fields struct {
	url       string
	sourceURL string
	title     string
	content   string
	language  string
	category  string
	imageURL  string
	dates     []string
	metadata  map[string]any
}

// Normalize maps a candidate onto the article shape. Only the slot of the
// candidate's own language is filled; the other stays nil. An unparseable or
// missing publication date becomes now.
func Normalize(c collect.Candidate, source string, now time.Time) (*database.Article, error) {
	var f fields
	switch c := c.(type) {
	case collect.FeedCandidate:
		f = fromFeed(c)
	case collect.PageCandidate:
		f = fromPage(c)
	case collect.ExtractedCandidate:
		f = fromExtracted(c)
	default:
		return nil, fmt.Errorf("%w: unsupported candidate %T", ErrIncompleteCandidate, c)
	}

	switch {
	case f.url == "":
		return nil, fmt.Errorf("%w: no url", ErrIncompleteCandidate)
	case f.title == "":
		return nil, fmt.Errorf("%w: no title for %s", ErrIncompleteCandidate, f.url)
	case f.content == "":
		return nil, fmt.Errorf("%w: no content for %s", ErrIncompleteCandidate, f.url)
	}

	a := &database.Article{
		URL:         f.url,
		Source:      source,
		Category:    f.category,
		ImageURL:    optional(f.imageURL),
		SourceURL:   optional(f.sourceURL),
		PublishedAt: resolveDate(now, f.dates...),
		Metadata:    f.metadata,
	}
	if a.Category == "" {
		a.Category = database.DefaultCategory
	}
	title, content := f.title, f.content
	if f.language == Hebrew {
		a.TitleHe, a.ContentHe = &title, &content
	} else {
		a.TitleEn, a.ContentEn = &title, &content
	}
	return a, nil
}

func fromFeed(c collect.FeedCandidate) fields {
	link := strings.TrimSpace(c.Link)
	u := link
	if u == "" {
		u = strings.TrimSpace(c.GUID)
	}
	content := collect.CleanText(c.Content)
	if content == "" {
		content = collect.CleanText(c.Description)
	}
	return fields{
		url:       u,
		sourceURL: link,
		title:     preferShare(c.ShareTitle, c.Title),
		content:   content,
		language:  language(c.Language),
		category:  firstNonEmpty(firstCategory(c.Categories), c.EndpointLabel),
		imageURL:  strings.TrimSpace(c.ImageURL),
		dates:     []string{c.Published},
	}
}

func fromPage(c collect.PageCandidate) fields {
	return fields{
		url:       c.Link,
		sourceURL: c.Link,
		title:     preferShare(c.ShareTitle, c.Title),
		content:   collect.CleanText(c.Excerpt),
		language:  language(c.Language),
		category:  strings.TrimSpace(c.Category),
		imageURL:  c.ImageURL,
		dates:     []string{c.Published},
	}
}

func fromExtracted(c collect.ExtractedCandidate) fields {
	sourceURL := firstNonEmpty(c.PageURL, c.TargetURL)
	content := collect.CleanText(c.Text)
	if content == "" {
		content = collect.ReadableText(c.HTML, sourceURL)
	}

	meta := map[string]any{}
	if c.Author != "" {
		meta["author"] = c.Author
	}
	if c.SiteName != "" {
		meta["siteName"] = c.SiteName
	}
	if c.Sentiment != nil {
		meta["sentiment"] = *c.Sentiment
	}
	if len(c.Tags) > 0 {
		meta["tags"] = c.Tags
	}

	return fields{
		url:       strings.TrimSpace(c.TargetURL),
		sourceURL: sourceURL,
		title:     preferShare(c.ShareTitle, c.Title),
		content:   content,
		language:  language(c.Language),
		category:  c.TopCategory(),
		imageURL:  c.PrimaryImage(),
		dates:     []string{c.Date, c.EstimatedDate},
		metadata:  meta,
	}
}

func preferShare(share, primary string) string {
	if s := collect.CleanText(share); s != "" {
		return s
	}
	return collect.CleanText(primary)
}

func firstCategory(categories []string) string {
	for _, c := range categories {
		if c = collect.CleanText(c); c != "" {
			return c
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func language(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// resolveDate returns the first candidate date that parses, in UTC.
func resolveDate(now time.Time, candidates ...string) time.Time {
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		t, err := dateparse.ParseIn(raw, time.UTC)
		if err != nil || t.Year() < 1970 {
			continue
		}
		return t.UTC()
	}
	return now.UTC()
}

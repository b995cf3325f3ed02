package collect

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/TobiSchelling/newsbridge/internal/config"
	"github.com/TobiSchelling/newsbridge/internal/fetch"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const defaultFeedItems = 10

var feedHeaders = map[string]string{
	"Accept": "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5",
}

// Path segments that never name a topic.
var ignoredSegments = map[string]bool{
	"feed": true, "feeds": true, "rss": true, "atom": true, "xml": true,
	"digests": true, "feeder": true, "index": true,
}

var topicSegment = regexp.MustCompile(`^[a-z]+(-[a-z]+)*$`)

var titleCaser = cases.Title(language.English)

// Fetcher is the part of the resilient fetcher adapters depend on.
type Fetcher interface {
	Fetch(ctx context.Context, endpoints []string, opts fetch.Options) (*fetch.Payload, error)
}

// FeedAdapter imports a syndication feed reachable through several mirror endpoints.
type FeedAdapter struct {
	cfg     config.FeedSource
	fetcher Fetcher
	log     *slog.Logger
}

// NewFeedAdapter creates a FeedAdapter.
func NewFeedAdapter(cfg config.FeedSource, fetcher Fetcher, log *slog.Logger) *FeedAdapter {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultFeedItems
	}
	return &FeedAdapter{cfg: cfg, fetcher: fetcher, log: log}
}

// Source returns the configured source name.
func (a *FeedAdapter) Source() string { return a.cfg.Name }

// Fetch tries the configured feed endpoints in order.
func (a *FeedAdapter) Fetch(ctx context.Context) (*fetch.Payload, error) {
	return a.fetcher.Fetch(ctx, a.cfg.Endpoints, fetch.Options{Headers: feedHeaders})
}

// Parse decodes the feed document and stops once MaxItems complete items
// are collected. Incomplete items do not count toward the cap; they are
// still returned so the run reports them as rejected.
func (a *FeedAdapter) Parse(p *fetch.Payload) ([]Candidate, error) {
	feed, err := gofeed.NewParser().ParseString(string(p.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing feed from %s: %v", ErrMalformedDocument, p.Endpoint, err)
	}

	lang := languagePrefix(feed.Language)
	if lang == "" {
		lang = a.cfg.Language
	}
	label := EndpointLabel(p.Endpoint)

	var out []Candidate
	complete := 0
	for _, item := range feed.Items {
		if complete >= a.cfg.MaxItems {
			break
		}
		c := parseFeedItem(item, label, lang)
		if c.complete() {
			complete++
		}
		out = append(out, c)
	}
	a.log.Debug("parsed feed", "endpoint", p.Endpoint, "items", len(feed.Items), "kept", len(out), "complete", complete)
	return out, nil
}

// complete reports whether the item has a title, an address and a body.
func (c FeedCandidate) complete() bool {
	if strings.TrimSpace(c.Title) == "" && strings.TrimSpace(c.ShareTitle) == "" {
		return false
	}
	if c.Link == "" && c.GUID == "" {
		return false
	}
	return CleanText(c.Content) != "" || CleanText(c.Description) != ""
}

func parseFeedItem(item *gofeed.Item, label, lang string) FeedCandidate {
	published := item.Published
	if published == "" {
		published = item.Updated
	}
	return FeedCandidate{
		Title:         item.Title,
		ShareTitle:    mediaValue(item.Extensions, "title"),
		Description:   item.Description,
		Content:       item.Content,
		Link:          strings.TrimSpace(item.Link),
		GUID:          strings.TrimSpace(item.GUID),
		Published:     published,
		Categories:    item.Categories,
		ImageURL:      itemImage(item),
		EndpointLabel: label,
		Language:      lang,
	}
}

// itemImage walks the image sources from most to least specific.
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	if u := mediaThumbnail(item.Extensions); u != "" {
		return u
	}
	if u := mediaContentImage(item.Extensions); u != "" {
		return u
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return firstImgSrc(item.Description)
}

func mediaEntries(exts ext.Extensions, name string) []ext.Extension {
	media, ok := exts["media"]
	if !ok {
		return nil
	}
	entries := media[name]
	for _, group := range media["group"] {
		entries = append(entries, group.Children[name]...)
	}
	return entries
}

func mediaValue(exts ext.Extensions, name string) string {
	for _, e := range mediaEntries(exts, name) {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

func mediaThumbnail(exts ext.Extensions) string {
	for _, e := range mediaEntries(exts, "thumbnail") {
		if u := e.Attrs["url"]; u != "" {
			return u
		}
	}
	return ""
}

func mediaContentImage(exts ext.Extensions) string {
	for _, e := range mediaEntries(exts, "content") {
		u := e.Attrs["url"]
		if u == "" {
			continue
		}
		if e.Attrs["medium"] == "image" || strings.HasPrefix(e.Attrs["type"], "image/") {
			return u
		}
	}
	return ""
}

func firstImgSrc(markup string) string {
	if !strings.Contains(markup, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

// EndpointLabel derives a topic label from a feed endpoint path, e.g.
// "/israel-news/feed/" becomes "Israel News". It returns "" when no
// path segment names a topic.
func EndpointLabel(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	for _, seg := range strings.Split(u.Path, "/") {
		seg = strings.ToLower(seg)
		if seg == "" || ignoredSegments[seg] || !topicSegment.MatchString(seg) {
			continue
		}
		return titleCaser.String(strings.ReplaceAll(seg, "-", " "))
	}
	return ""
}

func languagePrefix(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return tag
}

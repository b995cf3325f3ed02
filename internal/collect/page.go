package collect

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/TobiSchelling/newsbridge/internal/config"
	"github.com/TobiSchelling/newsbridge/internal/database"
	"github.com/TobiSchelling/newsbridge/internal/fetch"
)

const defaultPageItems = 6

var pageHeaders = map[string]string{
	"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

// Extractor pulls one field out of an article card. It returns "" when the
// card does not carry that field in the shape it understands.
type Extractor func(card *goquery.Selection) string

// cardLayout is one known listing markup: the card selector plus ordered
// extractors per field. The first non-empty extractor result wins.
type cardLayout struct {
	card       string
	title      []Extractor
	link       []Extractor
	image      []Extractor
	excerpt    []Extractor
	published  []Extractor
	shareTitle []Extractor
}

// Layouts are tried in order; the first that yields any article is used.
var cardLayouts = []cardLayout{
	{
		card:       ".article-card",
		title:      []Extractor{textOf(".article-title"), textOf("h2, h3")},
		link:       []Extractor{attrOf(".article-title a", "href"), attrOf("a[href]", "href")},
		image:      []Extractor{attrOf("img", "data-src"), attrOf("img", "src")},
		excerpt:    []Extractor{textOf(".article-excerpt"), textOf("p")},
		published:  []Extractor{attrOf("time", "datetime"), textOf(".article-date")},
		shareTitle: []Extractor{attrOf(".article-title a", "title"), attrOf("", "data-share-title")},
	},
	{
		card:       "article",
		title:      []Extractor{textOf("h1, h2, h3"), attrOf("a[title]", "title")},
		link:       []Extractor{attrOf("h1 a, h2 a, h3 a", "href"), attrOf("a[href]", "href")},
		image:      []Extractor{attrOf("img", "data-src"), attrOf("img", "src"), attrOf("source", "srcset")},
		excerpt:    []Extractor{textOf(".excerpt, .summary"), textOf("p")},
		published:  []Extractor{attrOf("time", "datetime"), textOf("time")},
		shareTitle: []Extractor{attrOf("", "data-share-title")},
	},
	{
		card:      ".breaking-news-link-container, .list-item",
		title:     []Extractor{textOf(".title, h3"), textOf("a")},
		link:      []Extractor{attrOf("a[href]", "href"), attrOf("", "href")},
		image:     []Extractor{attrOf("img", "data-src"), attrOf("img", "src")},
		excerpt:   []Extractor{textOf(".excerpt, .summary, p")},
		published: []Extractor{attrOf("time", "datetime"), textOf(".date, time")},
	},
}

func textOf(selector string) Extractor {
	return func(card *goquery.Selection) string {
		return strings.TrimSpace(card.Find(selector).First().Text())
	}
}

// attrOf reads an attribute from the first match of selector, or from the
// card itself when selector is empty.
func attrOf(selector, name string) Extractor {
	return func(card *goquery.Selection) string {
		sel := card
		if selector != "" {
			sel = card.Find(selector).First()
		}
		v, _ := sel.Attr(name)
		if name == "srcset" {
			v, _, _ = strings.Cut(strings.TrimSpace(v), " ")
		}
		return strings.TrimSpace(v)
	}
}

func firstOf(card *goquery.Selection, extractors []Extractor) string {
	for _, ex := range extractors {
		if v := ex(card); v != "" {
			return v
		}
	}
	return ""
}

// PageAdapter scrapes article cards from a news site's listing pages.
type PageAdapter struct {
	cfg     config.PageSource
	fetcher Fetcher
	log     *slog.Logger
}

// NewPageAdapter creates a PageAdapter.
func NewPageAdapter(cfg config.PageSource, fetcher Fetcher, log *slog.Logger) *PageAdapter {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultPageItems
	}
	if cfg.Category == "" {
		cfg.Category = database.DefaultCategory
	}
	if len(cfg.Endpoints) == 0 && cfg.BaseURL != "" {
		cfg.Endpoints = []string{cfg.BaseURL}
	}
	return &PageAdapter{cfg: cfg, fetcher: fetcher, log: log}
}

// Source returns the configured source name.
func (a *PageAdapter) Source() string { return a.cfg.Name }

// Fetch tries the configured listing pages in order.
func (a *PageAdapter) Fetch(ctx context.Context) (*fetch.Payload, error) {
	return a.fetcher.Fetch(ctx, a.cfg.Endpoints, fetch.Options{Headers: pageHeaders})
}

// Parse extracts up to MaxItems article cards from the listing page.
func (a *PageAdapter) Parse(p *fetch.Payload) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing page %s: %v", ErrMalformedDocument, p.Endpoint, err)
	}
	body := doc.Find("body")
	if body.Children().Length() == 0 && strings.TrimSpace(body.Text()) == "" {
		return nil, fmt.Errorf("%w: page %s has an empty body", ErrMalformedDocument, p.Endpoint)
	}

	base := a.pageBase(p.Endpoint)
	for _, layout := range cardLayouts {
		found := a.scrape(doc, layout, base)
		if len(found) > 0 {
			a.log.Debug("parsed page", "endpoint", p.Endpoint, "layout", layout.card, "kept", len(found))
			return found, nil
		}
	}
	a.log.Warn("no article cards matched", "endpoint", p.Endpoint)
	return nil, nil
}

func (a *PageAdapter) scrape(doc *goquery.Document, layout cardLayout, base *url.URL) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	doc.Find(layout.card).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		title := firstOf(card, layout.title)
		link := resolve(base, firstOf(card, layout.link))
		if title == "" || link == "" || seen[link] {
			return true
		}
		seen[link] = true
		out = append(out, PageCandidate{
			Title:      title,
			ShareTitle: firstOf(card, layout.shareTitle),
			Link:       link,
			ImageURL:   resolve(base, firstOf(card, layout.image)),
			Excerpt:    firstOf(card, layout.excerpt),
			Published:  firstOf(card, layout.published),
			Category:   a.cfg.Category,
			Language:   a.cfg.Language,
		})
		return len(out) < a.cfg.MaxItems
	})
	return out
}

func (a *PageAdapter) pageBase(endpoint string) *url.URL {
	if u, err := url.Parse(endpoint); err == nil && u.IsAbs() {
		return u
	}
	u, _ := url.Parse(a.cfg.BaseURL)
	return u
}

// resolve makes ref absolute against base. Inline data URIs are dropped.
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil || u.IsAbs() {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

package collect

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/TobiSchelling/newsbridge/internal/config"
	"github.com/TobiSchelling/newsbridge/internal/fetch"
	"github.com/TobiSchelling/newsbridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPageSource() config.PageSource {
	return config.PageSource{
		Name:      "The Jerusalem Post",
		Language:  "en",
		BaseURL:   "https://www.example.com",
		Endpoints: []string{"https://www.example.com/israel-news"},
		Category:  "News",
		MaxItems:  6,
	}
}

func parsePage(t *testing.T, cfg config.PageSource, body string) []Candidate {
	t.Helper()
	a := NewPageAdapter(cfg, &stubFetcher{}, logger.Discard())
	got, err := a.Parse(&fetch.Payload{Body: []byte(body), Endpoint: "https://www.example.com/israel-news"})
	require.NoError(t, err)
	return got
}

func TestPageParseArticleCards(t *testing.T) {
	body := `<html><body>
<div class="article-card" data-share-title="Shared headline">
  <h3 class="article-title"><a href="/israel-news/article-1">Headline one</a></h3>
  <img src="data:image/gif;base64,R0lGOD" data-src="/images/one.jpg">
  <p class="article-excerpt">Excerpt one</p>
  <time datetime="2026-10-12T08:00:00Z">Oct 12</time>
</div>
<div class="article-card">
  <h3 class="article-title"><a href="https://www.example.com/article-2" title="Share two">Headline two</a></h3>
  <img src="https://cdn.example.com/two.jpg">
</div>
<div class="article-card">
  <h3 class="article-title"></h3>
  <a href="/no-title">read</a>
</div>
<div class="article-card">
  <h3 class="article-title">No link at all</h3>
</div>
</body></html>`

	got := parsePage(t, testPageSource(), body)
	require.Len(t, got, 2)

	one := got[0].(PageCandidate)
	assert.Equal(t, "Headline one", one.Title)
	assert.Equal(t, "Shared headline", one.ShareTitle)
	assert.Equal(t, "https://www.example.com/israel-news/article-1", one.Link)
	assert.Equal(t, "https://www.example.com/images/one.jpg", one.ImageURL)
	assert.Equal(t, "Excerpt one", one.Excerpt)
	assert.Equal(t, "2026-10-12T08:00:00Z", one.Published)
	assert.Equal(t, "News", one.Category)
	assert.Equal(t, "en", one.Language)

	two := got[1].(PageCandidate)
	assert.Equal(t, "Share two", two.ShareTitle)
	assert.Equal(t, "https://cdn.example.com/two.jpg", two.ImageURL)
	assert.Equal(t, "", two.Excerpt)
}

func TestPageParseFallsBackToNextLayout(t *testing.T) {
	body := `<html><body>
<div class="article-card"><span>promo without a title</span></div>
<article>
  <h2><a href="/a">Article element headline</a></h2>
  <p>Article excerpt</p>
</article>
</body></html>`

	got := parsePage(t, testPageSource(), body)
	require.Len(t, got, 1)
	c := got[0].(PageCandidate)
	assert.Equal(t, "Article element headline", c.Title)
	assert.Equal(t, "https://www.example.com/a", c.Link)
	assert.Equal(t, "Article excerpt", c.Excerpt)
}

func TestPageParseCapsAndDedupes(t *testing.T) {
	var cards strings.Builder
	cards.WriteString(`<div class="article-card"><h3 class="article-title"><a href="/dup">Dup</a></h3></div>`)
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&cards, `<div class="article-card"><h3 class="article-title"><a href="/dup">Dup again %d</a></h3></div>`, i)
		fmt.Fprintf(&cards, `<div class="article-card"><h3 class="article-title"><a href="/n/%d">N%d</a></h3></div>`, i, i)
	}

	got := parsePage(t, testPageSource(), "<html><body>"+cards.String()+"</body></html>")
	require.Len(t, got, defaultPageItems)
	assert.Equal(t, "https://www.example.com/dup", got[0].(PageCandidate).Link)
	for _, c := range got[1:] {
		assert.NotEqual(t, "https://www.example.com/dup", c.(PageCandidate).Link)
	}
}

func TestPageParseNoCards(t *testing.T) {
	got := parsePage(t, testPageSource(), "<html><body><p>Nothing to see</p></body></html>")
	assert.Empty(t, got)
}

func TestPageParseEmptyBody(t *testing.T) {
	a := NewPageAdapter(testPageSource(), &stubFetcher{}, logger.Discard())
	_, err := a.Parse(&fetch.Payload{Body: []byte("<html><head><title>x</title></head><body>  </body></html>")})
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestPageAdapterDefaults(t *testing.T) {
	f := &stubFetcher{body: "<html></html>"}
	a := NewPageAdapter(config.PageSource{Name: "P", BaseURL: "https://www.example.com"}, f, logger.Discard())
	_, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.example.com"}, f.endpoints)
	assert.Contains(t, f.headers["Accept"], "text/html")

	got := parsePage(t, config.PageSource{Name: "P", BaseURL: "https://www.example.com"},
		`<html><body><article><h2><a href="/x">X</a></h2></article></body></html>`)
	require.Len(t, got, 1)
	assert.Equal(t, "News", got[0].(PageCandidate).Category)
}

func TestResolve(t *testing.T) {
	base := mustParseURL(t, "https://www.example.com/israel-news")
	assert.Equal(t, "https://www.example.com/a/b", resolve(base, "/a/b"))
	assert.Equal(t, "https://www.example.com/rel", resolve(base, "rel"))
	assert.Equal(t, "https://other.com/x", resolve(base, "https://other.com/x"))
	assert.Equal(t, "https://cdn.example.com/i.jpg", resolve(base, "//cdn.example.com/i.jpg"))
	assert.Equal(t, "", resolve(base, "data:image/png;base64,AAA"))
	assert.Equal(t, "", resolve(base, "javascript:void(0)"))
	assert.Equal(t, "", resolve(base, "  "))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

package collect

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/TobiSchelling/newsbridge/internal/config"
	"github.com/TobiSchelling/newsbridge/internal/fetch"
	"github.com/TobiSchelling/newsbridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFeedSource() config.FeedSource {
	return config.FeedSource{
		Name:      "Times of Israel",
		Language:  "en",
		Endpoints: []string{"https://www.example.com/feed", "https://www.example.com/israel-news/feed/"},
		MaxItems:  10,
	}
}

const mediaFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Example News</title>
  <language>en-US</language>
  <item>
    <title>Foo &amp; Bar</title>
    <link>https://www.example.com/foo-bar</link>
    <guid isPermaLink="false">guid-1</guid>
    <pubDate>Mon, 12 Oct 2026 09:15:00 +0000</pubDate>
    <description><![CDATA[<p>Body of <b>foo</b></p>]]></description>
    <media:thumbnail url="https://img.example.com/foo.jpg" width="300" height="200"/>
  </item>
  <item>
    <title>Second</title>
    <guid>https://www.example.com/only-guid</guid>
    <description>Plain text</description>
    <category>Politics</category>
    <media:title>Second, shared</media:title>
    <media:content url="https://img.example.com/second.jpg" medium="image"/>
  </item>
  <item>
    <title>Third</title>
    <link>https://www.example.com/third</link>
    <description><![CDATA[<div><img src="https://img.example.com/inline.png"/>Third body</div>]]></description>
    <enclosure url="https://img.example.com/audio.mp3" type="audio/mpeg" length="1"/>
  </item>
  <item>
    <title>Fourth</title>
    <link>https://www.example.com/fourth</link>
    <description>Fourth body</description>
    <enclosure url="https://img.example.com/enc.jpg" type="image/jpeg" length="1"/>
  </item>
</channel>
</rss>`

func TestFeedParseItems(t *testing.T) {
	f := &stubFetcher{body: mediaFeed}
	a := NewFeedAdapter(testFeedSource(), f, logger.Discard())

	p, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testFeedSource().Endpoints, f.endpoints)
	assert.Contains(t, f.headers["Accept"], "rss")

	got, err := a.Parse(p)
	require.NoError(t, err)
	require.Len(t, got, 4)

	first := got[0].(FeedCandidate)
	assert.Equal(t, "Foo & Bar", first.Title)
	assert.Equal(t, "https://www.example.com/foo-bar", first.Link)
	assert.Equal(t, "https://img.example.com/foo.jpg", first.ImageURL)
	assert.Equal(t, "Body of foo", CleanText(first.Description))
	assert.Equal(t, "Mon, 12 Oct 2026 09:15:00 +0000", first.Published)
	assert.Equal(t, "en", first.Language)
	assert.Empty(t, first.Categories)

	second := got[1].(FeedCandidate)
	assert.Equal(t, "", second.Link)
	assert.Equal(t, "https://www.example.com/only-guid", second.GUID)
	assert.Equal(t, "Second, shared", second.ShareTitle)
	assert.Equal(t, []string{"Politics"}, second.Categories)
	assert.Equal(t, "https://img.example.com/second.jpg", second.ImageURL)

	third := got[2].(FeedCandidate)
	assert.Equal(t, "https://img.example.com/inline.png", third.ImageURL)

	fourth := got[3].(FeedCandidate)
	assert.Equal(t, "https://img.example.com/enc.jpg", fourth.ImageURL)
}

func TestFeedParseRespectsMaxItems(t *testing.T) {
	var items strings.Builder
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&items, "<item><title>T%d</title><link>https://e.com/%d</link><description>d</description></item>", i, i)
	}
	body := `<rss version="2.0"><channel><title>x</title>` + items.String() + `</channel></rss>`

	a := NewFeedAdapter(config.FeedSource{Name: "X", Language: "he"}, &stubFetcher{}, logger.Discard())
	got, err := a.Parse(&fetch.Payload{Body: []byte(body), Endpoint: "https://e.com/feed"})
	require.NoError(t, err)
	require.Len(t, got, defaultFeedItems)
	assert.Equal(t, "he", got[0].(FeedCandidate).Language, "configured language applies when the channel has none")
}

func TestFeedParseCapCountsCompleteItems(t *testing.T) {
	var items strings.Builder
	items.WriteString("<item><title>No link</title><description>d</description></item>")
	items.WriteString("<item><link>https://e.com/untitled</link><description>d</description></item>")
	items.WriteString("<item><title>No body</title><link>https://e.com/empty</link><description><![CDATA[<p> </p>]]></description></item>")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&items, "<item><title>T%d</title><link>https://e.com/%d</link><description>d</description></item>", i, i)
	}
	body := `<rss version="2.0"><channel><title>x</title>` + items.String() + `</channel></rss>`

	a := NewFeedAdapter(config.FeedSource{Name: "X", Language: "en", MaxItems: 10}, &stubFetcher{}, logger.Discard())
	got, err := a.Parse(&fetch.Payload{Body: []byte(body), Endpoint: "https://e.com/feed"})
	require.NoError(t, err)
	require.Len(t, got, 13, "three incomplete items plus ten complete ones")

	complete := 0
	for _, c := range got {
		if c.(FeedCandidate).complete() {
			complete++
		}
	}
	assert.Equal(t, 10, complete)
	assert.Equal(t, "https://e.com/9", got[len(got)-1].(FeedCandidate).Link)
}

func TestFeedParseEndpointLabel(t *testing.T) {
	body := `<rss version="2.0"><channel><title>x</title><item><title>T</title><link>https://e.com/1</link></item></channel></rss>`
	a := NewFeedAdapter(testFeedSource(), &stubFetcher{}, logger.Discard())
	got, err := a.Parse(&fetch.Payload{Body: []byte(body), Endpoint: "https://www.example.com/israel-news/feed/"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Israel News", got[0].(FeedCandidate).EndpointLabel)
}

func TestFeedParseMalformed(t *testing.T) {
	a := NewFeedAdapter(testFeedSource(), &stubFetcher{}, logger.Discard())
	for _, body := range []string{"<html><body>not a feed</body></html>", "garbage <<<"} {
		_, err := a.Parse(&fetch.Payload{Body: []byte(body), Endpoint: "https://e.com/feed"})
		assert.ErrorIs(t, err, ErrMalformedDocument, "body %q", body)
	}
}

func TestFeedParseAtom(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xml:lang="he">
  <title>Atom</title>
  <entry>
    <title>כותרת</title>
    <link href="https://e.com/he/1"/>
    <id>urn:1</id>
    <updated>2026-10-10T10:00:00Z</updated>
    <summary>תקציר</summary>
  </entry>
</feed>`
	a := NewFeedAdapter(testFeedSource(), &stubFetcher{}, logger.Discard())
	got, err := a.Parse(&fetch.Payload{Body: []byte(body), Endpoint: "https://e.com/atom"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	c := got[0].(FeedCandidate)
	assert.Equal(t, "כותרת", c.Title)
	assert.Equal(t, "https://e.com/he/1", c.Link)
	assert.NotEmpty(t, c.Published)
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"https://www.timesofisrael.com/israel-news/feed/":     "Israel News",
		"https://www.timesofisrael.com/start-up-israel/feed/": "Start Up Israel",
		"https://www.timesofisrael.com/feed":                  "",
		"https://m.timesofisrael.com/feed/":                   "",
		"https://www.timesofisrael.com/rss/":                  "",
		"https://rss.app/feeds/O6LJpwNyxnb3YDKJ.xml":          "",
		"https://feed.informer.com/digests/KGPQFPNPIK/feeder": "",
		"https://feedmix.novaclic.com/atom2rss.php?source=x":  "",
	}
	for endpoint, want := range tests {
		assert.Equal(t, want, EndpointLabel(endpoint), endpoint)
	}
}

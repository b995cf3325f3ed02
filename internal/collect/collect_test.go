package collect

import (
	"context"
	"errors"
	"testing"

	"github.com/TobiSchelling/newsbridge/internal/fetch"
	"github.com/TobiSchelling/newsbridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves a fixed body for whichever endpoint is asked first.
type stubFetcher struct {
	body      string
	err       error
	calls     int
	endpoints []string
	headers   map[string]string
}

func (s *stubFetcher) Fetch(_ context.Context, endpoints []string, opts fetch.Options) (*fetch.Payload, error) {
	s.calls++
	s.endpoints = endpoints
	s.headers = opts.Headers
	if s.err != nil {
		return nil, s.err
	}
	return &fetch.Payload{Body: []byte(s.body), Status: 200, Endpoint: endpoints[0]}, nil
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello world", "Hello world"},
		{"entity", "Foo &amp; Bar", "Foo & Bar"},
		{"decoded ampersand", "Foo & Bar", "Foo & Bar"},
		{"markup", "<p>First</p><p>Second <b>bold</b></p>", "First Second bold"},
		{"whitespace", "  a\n\n\tb   c ", "a b c"},
		{"encoded markup", "&lt;p&gt;Inner&lt;/p&gt;", "Inner"},
		{"hebrew", "<div>שלום&nbsp;עולם</div>", "שלום עולם"},
		{"script dropped", "<script>alert(1)</script>Text", "Text"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestCleanTextComposesNFC(t *testing.T) {
	assert.Equal(t, "caf\u00e9", CleanText("cafe\u0301"))
}

func TestReadableTextFallsBackToCleanText(t *testing.T) {
	assert.Equal(t, "", ReadableText("   ", "https://example.com/a"))
	got := ReadableText("<p>Short body</p>", "::not a url")
	assert.Equal(t, "Short body", got)
}

func TestCandidateHelpers(t *testing.T) {
	c := ExtractedCandidate{
		Images: []ExtractedImage{{URL: "https://img/1.jpg"}, {URL: "https://img/2.jpg", Primary: true}},
		Categories: []ExtractedCategory{
			{Name: "Sports", Score: 0.2}, {Name: "Politics", Score: 0.9}, {Name: "", Score: 1},
		},
	}
	assert.Equal(t, "https://img/2.jpg", c.PrimaryImage())
	assert.Equal(t, "Politics", c.TopCategory())

	c.Images = []ExtractedImage{{URL: ""}, {URL: "https://img/3.jpg"}}
	assert.Equal(t, "https://img/3.jpg", c.PrimaryImage())
	assert.Equal(t, "", ExtractedCandidate{}.TopCategory())
}

func TestAdaptersPropagateFetchErrors(t *testing.T) {
	boom := errors.New("boom")
	f := &stubFetcher{err: boom}
	_, err := NewFeedAdapter(testFeedSource(), f, logger.Discard()).Fetch(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = NewPageAdapter(testPageSource(), f, logger.Discard()).Fetch(context.Background())
	require.ErrorIs(t, err, boom)
}

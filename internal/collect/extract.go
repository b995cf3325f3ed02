package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/TobiSchelling/newsbridge/internal/config"
	"github.com/TobiSchelling/newsbridge/internal/database"
	"github.com/TobiSchelling/newsbridge/internal/fetch"
)

var extractHeaders = map[string]string{
	"Accept": "application/json",
}

// URLLookup reports whether a URL is already stored.
type URLLookup interface {
	FindByURL(ctx context.Context, url string) (*database.Article, error)
}

// ExtractAdapter imports a single article through a content-extraction API.
// It is built per target URL.
type ExtractAdapter struct {
	cfg     config.ExtractSource
	token   string
	target  string
	fetcher Fetcher
	lookup  URLLookup
	log     *slog.Logger
}

// NewExtractAdapter creates an ExtractAdapter for target. token may be empty,
// in which case Fetch fails with ErrMissingCredential.
func NewExtractAdapter(cfg config.ExtractSource, token, target string, fetcher Fetcher, lookup URLLookup, log *slog.Logger) *ExtractAdapter {
	return &ExtractAdapter{
		cfg:     cfg,
		token:   strings.TrimSpace(token),
		target:  strings.TrimSpace(target),
		fetcher: fetcher,
		lookup:  lookup,
		log:     log,
	}
}

// Source returns the configured source name.
func (a *ExtractAdapter) Source() string { return a.cfg.Name }

// Target returns the URL this adapter extracts.
func (a *ExtractAdapter) Target() string { return a.target }

// Fetch calls the extraction API once. A target that is already stored
// short-circuits with ErrAlreadyImported before any request is made.
func (a *ExtractAdapter) Fetch(ctx context.Context) (*fetch.Payload, error) {
	if a.token == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingCredential, a.cfg.APIKeyEnv)
	}
	if a.lookup != nil {
		existing, err := a.lookup.FindByURL(ctx, a.target)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", a.target, err)
		}
		if existing != nil {
			a.log.Debug("extraction target already stored", "url", a.target, "article_id", existing.ID)
			return nil, ErrAlreadyImported
		}
	}

	q := url.Values{"token": {a.token}, "url": {a.target}}
	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/v3/article?" + q.Encode()
	return a.fetcher.Fetch(ctx, []string{endpoint}, fetch.Options{Headers: extractHeaders})
}

type extractResponse struct {
	Error     string          `json:"error"`
	ErrorCode int             `json:"errorCode"`
	Objects   []extractObject `json:"objects"`
}

type extractObject struct {
	Title  string `json:"title"`
	Text   string `json:"text"`
	HTML   string `json:"html"`
	Images []struct {
		URL     string `json:"url"`
		Primary bool   `json:"primary"`
	} `json:"images"`
	Tags []struct {
		Label string `json:"label"`
	} `json:"tags"`
	Categories []struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	} `json:"categories"`
	Sentiment     *float64        `json:"sentiment"`
	Date          string          `json:"date"`
	EstimatedDate string          `json:"estimatedDate"`
	SiteName      string          `json:"siteName"`
	PageURL       string          `json:"pageUrl"`
	HumanLanguage string          `json:"humanLanguage"`
	Author        string          `json:"author"`
	Meta          json.RawMessage `json:"meta"`
}

// Parse decodes the API response into a single ExtractedCandidate.
func (a *ExtractAdapter) Parse(p *fetch.Payload) ([]Candidate, error) {
	var resp extractResponse
	if err := json.Unmarshal(p.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding extraction response: %v", ErrMalformedDocument, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s (code %d)", ErrExtractionFailed, resp.Error, resp.ErrorCode)
	}
	if len(resp.Objects) == 0 {
		return nil, fmt.Errorf("%w: no article found at %s", ErrExtractionFailed, a.target)
	}

	obj := resp.Objects[0]
	c := ExtractedCandidate{
		TargetURL:     a.target,
		PageURL:       obj.PageURL,
		Title:         obj.Title,
		ShareTitle:    ogTitle(obj.Meta),
		Text:          obj.Text,
		HTML:          obj.HTML,
		Sentiment:     obj.Sentiment,
		Date:          obj.Date,
		EstimatedDate: obj.EstimatedDate,
		SiteName:      obj.SiteName,
		Author:        obj.Author,
		Language:      languagePrefix(obj.HumanLanguage),
	}
	for _, img := range obj.Images {
		c.Images = append(c.Images, ExtractedImage{URL: img.URL, Primary: img.Primary})
	}
	for _, t := range obj.Tags {
		if t.Label != "" {
			c.Tags = append(c.Tags, t.Label)
		}
	}
	for _, cat := range obj.Categories {
		c.Categories = append(c.Categories, ExtractedCategory{Name: cat.Name, Score: cat.Score})
	}
	return []Candidate{c}, nil
}

// ogTitle reads meta.og["og:title"], tolerating any other meta shape.
func ogTitle(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var meta struct {
		OG map[string]any `json:"og"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	if s, ok := meta.OG["og:title"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

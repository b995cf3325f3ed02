package collect

import (
	"context"
	"errors"

	"github.com/TobiSchelling/newsbridge/internal/fetch"
)

var (
	// ErrMalformedDocument means the payload could not be parsed at all.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrExtractionFailed means the extraction API answered but produced no article.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrMissingCredential means the extraction API token is not configured.
	ErrMissingCredential = errors.New("missing extraction credential")

	// ErrAlreadyImported means the extraction target is already stored.
	ErrAlreadyImported = errors.New("already imported")
)

// Adapter turns one external source into candidate records.
// Adapters never write to the store.
type Adapter interface {
	Source() string
	Fetch(ctx context.Context) (*fetch.Payload, error)
	Parse(p *fetch.Payload) ([]Candidate, error)
}

// Candidate is a raw record produced by an adapter. The set of
// implementations is closed: FeedCandidate, PageCandidate, ExtractedCandidate.
type Candidate interface {
	candidate()
}

// FeedCandidate is one syndication feed item.
type FeedCandidate struct {
	Title         string
	ShareTitle    string
	Description   string
	Content       string
	Link          string
	GUID          string
	Published     string
	Categories    []string
	ImageURL      string
	EndpointLabel string
	Language      string
}

// PageCandidate is one article card scraped from an HTML listing page.
type PageCandidate struct {
	Title      string
	ShareTitle string
	Link       string
	ImageURL   string
	Excerpt    string
	Published  string
	Category   string
	Language   string
}

// ExtractedImage is an image reported by the extraction API.
type ExtractedImage struct {
	URL     string
	Primary bool
}

// ExtractedCategory is a scored category reported by the extraction API.
type ExtractedCategory struct {
	Name  string
	Score float64
}

// ExtractedCandidate is the article the extraction API returned for a target URL.
type ExtractedCandidate struct {
	TargetURL     string
	PageURL       string
	Title         string
	ShareTitle    string
	Text          string
	HTML          string
	Images        []ExtractedImage
	Tags          []string
	Categories    []ExtractedCategory
	Sentiment     *float64
	Date          string
	EstimatedDate string
	SiteName      string
	Author        string
	Language      string
}

func (FeedCandidate) candidate()      {}
func (PageCandidate) candidate()      {}
func (ExtractedCandidate) candidate() {}

// PrimaryImage returns the image flagged primary, else the first one.
func (c ExtractedCandidate) PrimaryImage() string {
	for _, img := range c.Images {
		if img.Primary && img.URL != "" {
			return img.URL
		}
	}
	for _, img := range c.Images {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}

// TopCategory returns the highest scored category name.
func (c ExtractedCandidate) TopCategory() string {
	best := ""
	score := -1.0
	for _, cat := range c.Categories {
		if cat.Name != "" && cat.Score > score {
			best, score = cat.Name, cat.Score
		}
	}
	return best
}

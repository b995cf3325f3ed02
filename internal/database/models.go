package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUniqueViolation is returned by InsertArticle when the URL is already stored.
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrInvalidArticle is returned when an article breaks the completeness rules.
var ErrInvalidArticle = errors.New("invalid article")

// DefaultCategory is used when no source-supplied or derived category exists.
const DefaultCategory = "News"

// Article is the canonical bilingual news record.
type Article struct {
	ID          int64          `json:"id"`
	URL         string         `json:"url"`
	TitleHe     *string        `json:"titleHe"`
	TitleEn     *string        `json:"titleEn"`
	ContentHe   *string        `json:"contentHe"`
	ContentEn   *string        `json:"contentEn"`
	Source      string         `json:"source"`
	Category    string         `json:"category"`
	ImageURL    *string        `json:"imageUrl"`
	SourceURL   *string        `json:"sourceUrl"`
	PublishedAt time.Time      `json:"publishedAt"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Validate checks the invariants every stored article must satisfy.
func (a *Article) Validate() error {
	switch {
	case strings.TrimSpace(a.URL) == "":
		return fmt.Errorf("%w: empty url", ErrInvalidArticle)
	case isBlank(a.TitleHe) && isBlank(a.TitleEn):
		return fmt.Errorf("%w: no title in either language", ErrInvalidArticle)
	case isBlank(a.ContentHe) && isBlank(a.ContentEn):
		return fmt.Errorf("%w: no content in either language", ErrInvalidArticle)
	case strings.TrimSpace(a.Category) == "":
		return fmt.Errorf("%w: empty category", ErrInvalidArticle)
	case strings.TrimSpace(a.Source) == "":
		return fmt.Errorf("%w: empty source", ErrInvalidArticle)
	}
	return nil
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// ImportRun records the outcome of one import run.
type ImportRun struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	State      string    `json:"state"`
	Found      int       `json:"found"`
	Persisted  int       `json:"persisted"`
	Duplicates int       `json:"duplicates"`
	Rejected   int       `json:"rejected"`
	Error      *string   `json:"error"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// ArticleQuery filters and paginates ListArticles. Page is 1-based.
type ArticleQuery struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

func (q ArticleQuery) offset() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Stats contains aggregate store statistics.
type Stats struct {
	TotalArticles int
	Categories    int
	Sources       map[string]int
	ImportRuns    int
	LastImportAt  *time.Time
}

// Store is the article persistence surface shared by the SQLite and Postgres backends.
type Store interface {
	FindByURL(ctx context.Context, url string) (*Article, error)
	InsertArticle(ctx context.Context, a *Article) (*Article, error)
	GetArticleByID(ctx context.Context, id int64) (*Article, error)
	ListArticles(ctx context.Context, q ArticleQuery) ([]Article, error)
	GetCategories(ctx context.Context) ([]string, error)
	InsertImportRun(ctx context.Context, run *ImportRun) error
	ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error)
	GetStats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*PGStore)(nil)
)

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/TobiSchelling/newsbridge/internal/database"
)

// ErrDuplicateRecord means the article URL is already stored.
var ErrDuplicateRecord = errors.New("duplicate record")

// ArticleWriter is the store surface the gate needs.
type ArticleWriter interface {
	FindByURL(ctx context.Context, url string) (*database.Article, error)
	InsertArticle(ctx context.Context, a *database.Article) (*database.Article, error)
}

// Gate admits only articles whose URL is not stored yet. The lookup is an
// optimization; the store's unique key is the authority, so a concurrent
// insert of the same URL still ends as a duplicate.
type Gate struct {
	store ArticleWriter
}

// NewGate creates a Gate over store.
func NewGate(store ArticleWriter) *Gate {
	return &Gate{store: store}
}

// Admit reports whether url is free to insert.
func (g *Gate) Admit(ctx context.Context, url string) (bool, error) {
	existing, err := g.store.FindByURL(ctx, url)
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", url, err)
	}
	return existing == nil, nil
}

// Persist inserts a unless its URL is already stored, in which case it
// returns ErrDuplicateRecord.
func (g *Gate) Persist(ctx context.Context, a *database.Article) (*database.Article, error) {
	ok, err := g.Admit(ctx, a.URL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRecord, a.URL)
	}

	stored, err := g.store.InsertArticle(ctx, a)
	if errors.Is(err, database.ErrUniqueViolation) {
		return nil, fmt.Errorf("%w: %s (inserted concurrently)", ErrDuplicateRecord, a.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("inserting %s: %w", a.URL, err)
	}
	return stored, nil
}

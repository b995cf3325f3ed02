package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxIface is the subset of *pgxpool.Pool used by PGStore.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PGStore is the Postgres-backed article store.
type PGStore struct {
	pool PgxIface
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS articles (
    id BIGSERIAL PRIMARY KEY,
    url TEXT UNIQUE NOT NULL,
    title_he TEXT,
    title_en TEXT,
    content_he TEXT,
    content_en TEXT,
    source TEXT NOT NULL,
    category TEXT NOT NULL CHECK (category <> ''),
    image_url TEXT,
    source_url TEXT,
    published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    metadata JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);
CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);

CREATE TABLE IF NOT EXISTS import_runs (
    id UUID PRIMARY KEY,
    source TEXT NOT NULL,
    state TEXT NOT NULL,
    found INTEGER NOT NULL DEFAULT 0,
    persisted INTEGER NOT NULL DEFAULT 0,
    duplicates INTEGER NOT NULL DEFAULT 0,
    rejected INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
`

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := NewPGStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPGStore wraps an existing pool.
func NewPGStore(pool PgxIface) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the tables if they are missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that the database is reachable.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const pgArticleColumns = `id, url, title_he, title_en, content_he, content_en, source, category,
	image_url, source_url, published_at, metadata, created_at`

// FindByURL returns the article stored under url, or nil if none exists.
func (s *PGStore) FindByURL(ctx context.Context, url string) (*Article, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgArticleColumns+` FROM articles WHERE url = $1`, url)
	a, err := scanPGArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding article by url: %w", err)
	}
	return a, nil
}

// InsertArticle validates and stores a new article and returns it with its
// ID. A url that is already stored yields ErrUniqueViolation.
func (s *PGStore) InsertArticle(ctx context.Context, a *Article) (*Article, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	meta, err := marshalMetadata(a.Metadata)
	if err != nil {
		return nil, err
	}

	stored := *a
	stored.CreatedAt = time.Now().UTC()
	err = s.pool.QueryRow(ctx,
		`INSERT INTO articles (url, title_he, title_en, content_he, content_en, source, category,
			image_url, source_url, published_at, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		stored.URL, stored.TitleHe, stored.TitleEn, stored.ContentHe, stored.ContentEn,
		stored.Source, stored.Category, stored.ImageURL, stored.SourceURL,
		stored.PublishedAt, meta, stored.CreatedAt,
	).Scan(&stored.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s", ErrUniqueViolation, a.URL)
		}
		return nil, fmt.Errorf("inserting article: %w", err)
	}
	return &stored, nil
}

// GetArticleByID returns a single article, or nil if the ID is unknown.
func (s *PGStore) GetArticleByID(ctx context.Context, id int64) (*Article, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgArticleColumns+` FROM articles WHERE id = $1`, id)
	a, err := scanPGArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListArticles returns articles newest first, filtered by category and a
// case-insensitive title search across both languages.
func (s *PGStore) ListArticles(ctx context.Context, q ArticleQuery) ([]Article, error) {
	query := `SELECT ` + pgArticleColumns + ` FROM articles WHERE 1=1`
	var args []any
	if q.Category != "" {
		args = append(args, q.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (title_he ILIKE $%d OR title_en ILIKE $%d)", n, n)
	}
	args = append(args, q.Limit, q.offset())
	query += fmt.Sprintf(" ORDER BY published_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanPGArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

// GetCategories returns the distinct categories in use, sorted.
func (s *PGStore) GetCategories(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT category FROM articles ORDER BY category")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// InsertImportRun records the outcome of one import run.
func (s *PGStore) InsertImportRun(ctx context.Context, run *ImportRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_runs (id, source, state, found, persisted, duplicates, rejected, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.Source, run.State, run.Found, run.Persisted, run.Duplicates, run.Rejected,
		run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting import run: %w", err)
	}
	return nil
}

// ListImportRuns returns the most recent runs first.
func (s *PGStore) ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, source, state, found, persisted, duplicates, rejected, error, started_at, finished_at
		FROM import_runs ORDER BY started_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ImportRun
	for rows.Next() {
		var r ImportRun
		if err := rows.Scan(&r.ID, &r.Source, &r.State, &r.Found, &r.Persisted, &r.Duplicates,
			&r.Rejected, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetStats returns article and import counts for the status command.
func (s *PGStore) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{Sources: make(map[string]int)}
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM articles),
			(SELECT COUNT(DISTINCT category) FROM articles),
			(SELECT COUNT(*) FROM import_runs),
			(SELECT MAX(finished_at) FROM import_runs)`,
	).Scan(&st.TotalArticles, &st.Categories, &st.ImportRuns, &st.LastImportAt)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, "SELECT source, COUNT(*) FROM articles GROUP BY source")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		st.Sources[source] = n
	}
	return st, rows.Err()
}

func scanPGArticle(row pgx.Row) (*Article, error) {
	var a Article
	var meta []byte
	if err := row.Scan(&a.ID, &a.URL, &a.TitleHe, &a.TitleEn, &a.ContentHe, &a.ContentEn,
		&a.Source, &a.Category, &a.ImageURL, &a.SourceURL, &a.PublishedAt, &meta, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Metadata = unmarshalMetadata(meta)
	return &a, nil
}

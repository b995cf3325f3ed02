package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed-width UTC so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05Z"

const articleColumns = `id, url, title_he, title_en, content_he, content_en, source, category,
	image_url, source_url, published_at, metadata, created_at`

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FindByURL returns the article stored under url, or nil if there is none.
func (db *DB) FindByURL(ctx context.Context, url string) (*Article, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE url = ?`, url,
	)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding article by url: %w", err)
	}
	return a, nil
}

// InsertArticle stores a new article and returns it with ID and CreatedAt set.
// A URL that is already stored yields ErrUniqueViolation.
func (db *DB) InsertArticle(ctx context.Context, a *Article) (*Article, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	meta, err := marshalMetadata(a.Metadata)
	if err != nil {
		return nil, err
	}

	stored := *a
	stored.CreatedAt = time.Now().UTC().Truncate(time.Second)
	stored.PublishedAt = a.PublishedAt.UTC().Truncate(time.Second)

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO articles (url, title_he, title_en, content_he, content_en, source, category,
			image_url, source_url, published_at, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.URL, stored.TitleHe, stored.TitleEn, stored.ContentHe, stored.ContentEn,
		stored.Source, stored.Category, stored.ImageURL, stored.SourceURL,
		formatTime(stored.PublishedAt), string(meta), formatTime(stored.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrUniqueViolation, a.URL)
		}
		return nil, fmt.Errorf("inserting article: %w", err)
	}

	stored.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading article id: %w", err)
	}
	return &stored, nil
}

// GetArticleByID returns a single article by ID, or nil if not found.
func (db *DB) GetArticleByID(ctx context.Context, id int64) (*Article, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id,
	)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListArticles returns articles newest first, filtered by category and a title
// search that matches either language.
func (db *DB) ListArticles(ctx context.Context, q ArticleQuery) ([]Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE 1=1`
	var args []any
	if q.Category != "" {
		query += " AND category = ?"
		args = append(args, q.Category)
	}
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		query += " AND (title_he LIKE ? OR title_en LIKE ?)"
		args = append(args, pattern, pattern)
	}
	query += " ORDER BY published_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.offset())

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetCategories returns the distinct categories in use, sorted.
func (db *DB) GetCategories(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT DISTINCT category FROM articles ORDER BY category")
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

// GetStats returns aggregate statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{Sources: make(map[string]int)}
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&s.TotalArticles); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(DISTINCT category) FROM articles").Scan(&s.Categories); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM import_runs").Scan(&s.ImportRuns); err != nil {
		return nil, err
	}

	var last sql.NullString
	if err := db.conn.QueryRowContext(ctx, "SELECT MAX(finished_at) FROM import_runs").Scan(&last); err != nil {
		return nil, err
	}
	if last.Valid {
		t := parseTime(last.String)
		s.LastImportAt = &t
	}

	rows, err := db.conn.QueryContext(ctx, "SELECT source, COUNT(*) FROM articles GROUP BY source")
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
		s.Sources[source] = n
	}
	return s, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	var published, created, meta string
	if err := row.Scan(&a.ID, &a.URL, &a.TitleHe, &a.TitleEn, &a.ContentHe, &a.ContentEn,
		&a.Source, &a.Category, &a.ImageURL, &a.SourceURL, &published, &meta, &created); err != nil {
		return nil, err
	}
	a.PublishedAt = parseTime(published)
	a.CreatedAt = parseTime(created)
	a.Metadata = unmarshalMetadata([]byte(meta))
	return &a, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data []byte) map[string]any {
	m := map[string]any{}
	if len(data) == 0 {
		return m
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}

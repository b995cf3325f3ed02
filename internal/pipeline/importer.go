package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/TobiSchelling/newsbridge/internal/collect"
	"github.com/TobiSchelling/newsbridge/internal/config"
)

// ErrInvalidTarget means an extraction target is not an absolute http(s) URL.
var ErrInvalidTarget = errors.New("invalid target url")

// Importer wires the configured sources to an Orchestrator.
type Importer struct {
	cfg     *config.Config
	store   RunStore
	fetcher collect.Fetcher
	orch    *Orchestrator
	log     *slog.Logger
}

// NewImporter creates an Importer.
func NewImporter(cfg *config.Config, store RunStore, fetcher collect.Fetcher, log *slog.Logger) *Importer {
	return &Importer{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		orch:    New(store, log),
		log:     log,
	}
}

// ImportFeed runs the syndication feed source.
func (i *Importer) ImportFeed(ctx context.Context) (*Report, error) {
	return i.orch.Run(ctx, collect.NewFeedAdapter(i.cfg.Sources.Feed, i.fetcher, i.log))
}

// ImportPage runs the HTML listing page source.
func (i *Importer) ImportPage(ctx context.Context) (*Report, error) {
	return i.orch.Run(ctx, collect.NewPageAdapter(i.cfg.Sources.Page, i.fetcher, i.log))
}

// ImportURL extracts and stores a single article.
func (i *Importer) ImportURL(ctx context.Context, target string) (*Report, error) {
	target, err := ValidateTarget(target)
	if err != nil {
		return nil, err
	}
	adapter := collect.NewExtractAdapter(i.cfg.Sources.Extract, i.cfg.ExtractAPIKey(), target, i.fetcher, i.store, i.log)
	return i.orch.Run(ctx, adapter)
}

// ValidateTarget trims target and checks it is an absolute http(s) URL.
func ValidateTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	return target, nil
}

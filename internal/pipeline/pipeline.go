package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/newsbridge/internal/collect"
	"github.com/TobiSchelling/newsbridge/internal/database"
	"github.com/TobiSchelling/newsbridge/internal/fetch"
	"github.com/TobiSchelling/newsbridge/internal/normalize"
)

// ErrImportFailed marks a run that could not produce any candidates.
var ErrImportFailed = errors.New("import failed")

// State is the stage an import run is in.
type State string

const (
	StateFetching    State = "Fetching"
	StateParsing     State = "Parsing"
	StateNormalizing State = "Normalizing"
	StatePersisting  State = "Persisting"
	StateDone        State = "Done"
	StateFailed      State = "Failed"
)

// ImportError is a run-level failure. It records the state the run was in.
type ImportError struct {
	Source string
	State  State
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import from %s failed while %s: %v", e.Source, e.State, e.Err)
}

func (e *ImportError) Unwrap() []error {
	return []error{ErrImportFailed, e.Err}
}

// Report summarizes one import run.
type Report struct {
	RunID           string    `json:"runId"`
	Source          string    `json:"source"`
	State           State     `json:"state"`
	Found           int       `json:"found"`
	Persisted       int       `json:"persisted"`
	Duplicates      int       `json:"duplicates"`
	Rejected        int       `json:"rejected"`
	AlreadyImported bool      `json:"alreadyImported"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
}

// Summary is a one-line human readable result.
func (r *Report) Summary() string {
	if r.AlreadyImported {
		return fmt.Sprintf("%s: already imported", r.Source)
	}
	return fmt.Sprintf("%s: %d found, %d new, %d duplicates, %d rejected",
		r.Source, r.Found, r.Persisted, r.Duplicates, r.Rejected)
}

// RunRecorder stores the audit row for a finished run.
type RunRecorder interface {
	InsertImportRun(ctx context.Context, run *database.ImportRun) error
}

// RunStore is everything the orchestrator needs from the store.
type RunStore interface {
	ArticleWriter
	RunRecorder
}

// Orchestrator drives one adapter through fetch, parse, normalize and persist.
// Runs share no state and may execute concurrently.
type Orchestrator struct {
	store RunStore
	gate  *Gate
	log   *slog.Logger
	now   func() time.Time
}

// New creates an Orchestrator.
func New(store RunStore, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store: store,
		gate:  NewGate(store),
		log:   log,
		now:   time.Now,
	}
}

// Run executes one import. Per-candidate rejections and duplicates are
// counted in the report; only failures that leave nothing to import return
// an *ImportError. The report is returned in both cases.
func (o *Orchestrator) Run(ctx context.Context, adapter collect.Adapter) (*Report, error) {
	r := &Report{
		RunID:     uuid.NewString(),
		Source:    adapter.Source(),
		State:     StateFetching,
		StartedAt: o.now().UTC(),
	}
	log := o.log.With("run_id", r.RunID, "source", r.Source)
	log.Info("import started")

	payload, err := adapter.Fetch(ctx)
	if errors.Is(err, collect.ErrAlreadyImported) {
		r.AlreadyImported = true
		log.Info("target already imported")
		return o.finish(ctx, log, r, nil)
	}
	if err != nil {
		return o.finish(ctx, log, r, err)
	}
	log.Debug("payload fetched", "endpoint", fetch.Redact(payload.Endpoint), "bytes", len(payload.Body), "attempts", len(payload.Attempts))

	r.State = StateParsing
	candidates, err := adapter.Parse(payload)
	if err != nil {
		return o.finish(ctx, log, r, err)
	}
	r.Found = len(candidates)

	for _, c := range candidates {
		r.State = StateNormalizing
		article, err := normalize.Normalize(c, r.Source, o.now())
		if err != nil {
			r.Rejected++
			log.Info("candidate rejected", "error", err)
			continue
		}

		r.State = StatePersisting
		stored, err := o.gate.Persist(ctx, article)
		switch {
		case errors.Is(err, ErrDuplicateRecord):
			r.Duplicates++
			log.Debug("duplicate skipped", "url", article.URL)
		case errors.Is(err, database.ErrInvalidArticle):
			r.Rejected++
			log.Info("candidate rejected by store", "url", article.URL, "error", err)
		case err != nil:
			return o.finish(ctx, log, r, err)
		default:
			r.Persisted++
			log.Debug("article stored", "url", stored.URL, "article_id", stored.ID)
		}
	}

	return o.finish(ctx, log, r, nil)
}

// finish closes the run, records it and wraps any failure.
func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, r *Report, cause error) (*Report, error) {
	r.FinishedAt = o.now().UTC()
	failedIn := r.State

	run := &database.ImportRun{
		ID:         r.RunID,
		Source:     r.Source,
		Found:      r.Found,
		Persisted:  r.Persisted,
		Duplicates: r.Duplicates,
		Rejected:   r.Rejected,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if cause != nil {
		r.State = StateFailed
		msg := cause.Error()
		run.Error = &msg
	} else {
		r.State = StateDone
	}
	run.State = string(r.State)

	// Recording must survive a cancelled request context.
	if err := o.store.InsertImportRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("failed to record import run", "error", err)
	}

	if cause != nil {
		log.Error("import failed", "state", failedIn, "error", cause)
		return r, &ImportError{Source: r.Source, State: failedIn, Err: cause}
	}
	log.Info("import finished", "found", r.Found, "persisted", r.Persisted,
		"duplicates", r.Duplicates, "rejected", r.Rejected, "already_imported", r.AlreadyImported)
	return r, nil
}

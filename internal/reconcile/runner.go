package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vmunix/watchsync/internal/history"
	"github.com/vmunix/watchsync/internal/state"
)

// Reconciler runs one user's sync.
type Reconciler interface {
	Reconcile(ctx context.Context, u User, watermark string) (Outcome, error)
}

// UserResult is the result of one user within a run.
type UserResult struct {
	Username string
	Outcome  Outcome
	Err      error
}

// Runner processes users one after another, each inside its own error
// boundary.
type Runner struct {
	rec     Reconciler
	history Recorder
	log     *slog.Logger

	newID func() string
	now   func() time.Time
}

// NewRunner creates a Runner. history may be nil.
func NewRunner(rec Reconciler, history Recorder, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		rec:     rec,
		history: history,
		log:     log.With("component", "runner"),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Run reconciles every user and returns the watermarks to persist. The
// result starts as a copy of prior; a user's entry changes only when that
// user finished without error.
func (r *Runner) Run(ctx context.Context, users []User, prior state.Watermarks) (state.Watermarks, []UserResult) {
	runID := r.newID()
	log := r.log.With("run_id", runID)
	next := prior.Clone()
	results := make([]UserResult, 0, len(users))

	log.Info("sync started", "users", len(users))
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			log.Warn("sync canceled, skipping remaining users", "error", err)
			break
		}

		before := prior[u.Username]
		started := r.now()
		out, err := r.runUser(ctx, u, before)
		finished := r.now()

		res := UserResult{Username: u.Username, Outcome: out, Err: err}
		results = append(results, res)

		if err != nil {
			log.Error("user sync failed", "user", u.Username, "error", err)
		} else {
			if out.Watermark != "" {
				next[u.Username] = out.Watermark
			}
			log.Info("user synced",
				"user", u.Username,
				"scraped", out.Scraped,
				"added", len(out.Added),
				"enqueued", len(out.Enqueued),
				"removed", len(out.Removed),
				"watermark", out.Watermark,
				"duration_ms", finished.Sub(started).Milliseconds())
		}

		r.record(log, runID, u.Username, before, res, started, finished)
	}
	log.Info("sync finished", "users", len(results))
	return next, results
}

// runUser converts a panic inside one user's sync into an error.
func (r *Runner) runUser(ctx context.Context, u User, watermark string) (out Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = Outcome{Phase: PhaseFailed, Watermark: watermark}
			err = &PhaseError{Phase: PhaseFailed, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	out, err = r.rec.Reconcile(ctx, u, watermark)
	if err != nil {
		out.Watermark = watermark
	}
	return out, err
}

func (r *Runner) record(log *slog.Logger, runID, user, before string, res UserResult, started, finished time.Time) {
	if r.history == nil {
		return
	}
	out := res.Outcome
	run := &history.Run{
		RunID:           runID,
		Username:        user,
		WatermarkBefore: before,
		WatermarkAfter:  out.Watermark,
		Scraped:         out.Scraped,
		Added:           len(out.Added),
		Enqueued:        len(out.Enqueued),
		Removed:         len(out.Removed),
		Complete:        out.Complete,
		Phase:           string(out.Phase),
		StartedAt:       started,
		FinishedAt:      finished,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	} else if out.RemovalErr != nil {
		run.Error = out.RemovalErr.Error()
	}
	if err := r.history.Record(run); err != nil {
		log.Warn("failed to record sync history", "user", user, "error", err)
	}
}

// Package reconcile drives one sync pass per user: scrape the watchlist,
// classify each new title against the library, enqueue or add to the user's
// collection, and drop watched titles from it.
package reconcile

//go:generate mockgen -destination=mocks/mock_reconcile.go -package=mocks . Scraper,Library,Catalog,Recorder,Reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vmunix/watchsync/internal/history"
	"github.com/vmunix/watchsync/internal/radarr"
	"github.com/vmunix/watchsync/internal/watchlist"
)

// Scraper lists watchlist ids newer than a watermark.
type Scraper interface {
	ScrapeSince(ctx context.Context, user, watermark string) watchlist.Result
}

// Library reports and requests titles in the download manager.
type Library interface {
	Lookup(ctx context.Context, externalID string) *radarr.Movie
	Enqueue(ctx context.Context, movies []*radarr.Movie, opts radarr.AddOptions) radarr.EnqueueResult
}

// Catalog resolves and curates titles on the media server.
type Catalog interface {
	ResolveID(ctx context.Context, title string, year int) (string, bool, error)
	AddToCollection(ctx context.Context, ids []string, collectionID string) error
	RemoveFromCollection(ctx context.Context, ids []string, collectionID string) error
	PlayedMovies(ctx context.Context, collectionID, userID string) ([]string, error)
	UserID(ctx context.Context, name string) (string, bool, error)
}

// Recorder stores per-user run results.
type Recorder interface {
	Record(r *history.Run) error
}

// User is one tracked account.
type User struct {
	Username         string // watchlist owner
	CollectionID     string // collection mirroring the watchlist
	JellyfinUsername string // whose playback marks titles as watched
}

// Plan is the classification of newly scraped ids.
type Plan struct {
	ToAdd      []string        // catalog ids, deduplicated, scrape order
	ToEnqueue  []*radarr.Movie // known to the library but neither downloaded nor monitored
	Pending    []string        // absent, lookup failed, or monitored and still downloading
	Unresolved []string        // downloaded but missing from the catalog
}

// Outcome summarizes one user's reconciliation.
type Outcome struct {
	Phase         Phase
	Watermark     string
	Scraped       int
	Complete      bool
	Added         []string
	Enqueued      []string
	AlreadyQueued []string
	EnqueueFailed int
	Removed       []string
	RemovalErr    error
}

// Engine reconciles one user at a time.
type Engine struct {
	scraper Scraper
	library Library
	catalog Catalog
	addOpts radarr.AddOptions
	log     *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(scraper Scraper, library Library, catalog Catalog, addOpts radarr.AddOptions, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		scraper: scraper,
		library: library,
		catalog: catalog,
		addOpts: addOpts,
		log:     log.With("component", "reconcile"),
	}
}

// Reconcile runs every phase for u starting from watermark and returns the
// watermark to persist. The watermark only moves to the newest scraped id,
// and only when the scrape completed. Removal failures are reported in the
// outcome and never fail the user.
func (e *Engine) Reconcile(ctx context.Context, u User, watermark string) (Outcome, error) {
	log := e.log.With("user", u.Username)
	out := Outcome{Phase: PhaseStart, Watermark: watermark}
	if watermark == "" {
		log.Info("no watermark, scanning the whole watchlist")
	}

	out.Phase = PhaseScraping
	res := e.scraper.ScrapeSince(ctx, u.Username, watermark)
	out.Scraped = len(res.IDs)
	out.Complete = res.Complete
	if !res.Complete {
		log.Warn("watchlist scrape incomplete, watermark stays", "collected", len(res.IDs), "watermark", watermark)
	}

	if len(res.IDs) == 0 {
		log.Info("no new watchlist entries")
	} else {
		log.Info("new watchlist entries", "count", len(res.IDs))

		out.Phase = PhaseClassifying
		plan, err := e.Classify(ctx, res.IDs)
		if err == nil {
			// Lookups swallow errors, so a canceled run looks like every
			// title is pending.
			err = ctx.Err()
		}
		if err != nil {
			return out, &PhaseError{Phase: PhaseClassifying, Err: err}
		}

		out.Phase = PhaseMutating
		err = e.apply(ctx, log, u, plan, &out)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			return out, &PhaseError{Phase: PhaseMutating, Err: err}
		}

		if newest, ok := res.Newest(); ok && res.Complete {
			out.Watermark = newest
		}
	}

	out.Phase = PhaseRemovalScan
	e.removeWatched(ctx, log, u, &out)

	out.Phase = PhaseDone
	return out, nil
}

// Classify looks up each id in the library, in order. Downloaded titles are
// resolved to catalog ids for the collection; titles the library knows but
// neither has nor monitors are queued for download; everything else waits.
func (e *Engine) Classify(ctx context.Context, ids []string) (Plan, error) {
	var p Plan
	seen := make(map[string]bool)

	for _, id := range ids {
		m := e.library.Lookup(ctx, id)
		switch {
		case m == nil:
			p.Pending = append(p.Pending, id)
		case m.HasFile:
			cid, ok, err := e.catalog.ResolveID(ctx, m.Title, m.Year)
			if err != nil {
				return p, fmt.Errorf("resolve %q (%d): %w", m.Title, m.Year, err)
			}
			if !ok {
				e.log.Warn("downloaded but not in catalog", "tmdb_id", id, "title", m.Title, "year", m.Year)
				p.Unresolved = append(p.Unresolved, id)
				continue
			}
			if !seen[cid] {
				seen[cid] = true
				p.ToAdd = append(p.ToAdd, cid)
			}
		case !m.Monitored:
			p.ToEnqueue = append(p.ToEnqueue, m)
		default:
			p.Pending = append(p.Pending, id)
		}
	}
	return p, nil
}

// apply enqueues downloads first, then adds available titles to the
// collection.
func (e *Engine) apply(ctx context.Context, log *slog.Logger, u User, p Plan, out *Outcome) error {
	if len(p.ToEnqueue) > 0 {
		r := e.library.Enqueue(ctx, p.ToEnqueue, e.addOpts)
		out.Enqueued = r.Added
		out.AlreadyQueued = r.Existing
		out.EnqueueFailed = len(r.Failed)
		log.Info("download requests sent", "added", len(r.Added), "existing", len(r.Existing), "failed", len(r.Failed))
	}

	if len(p.ToAdd) == 0 {
		return nil
	}
	if u.CollectionID == "" {
		log.Warn("no collection configured, skipping collection add", "titles", len(p.ToAdd))
		return nil
	}
	if err := e.catalog.AddToCollection(ctx, p.ToAdd, u.CollectionID); err != nil {
		return fmt.Errorf("add to collection: %w", err)
	}
	out.Added = p.ToAdd
	log.Info("added to collection", "count", len(p.ToAdd), "collection", u.CollectionID)
	return nil
}

// removeWatched drops titles the user has played from their collection.
func (e *Engine) removeWatched(ctx context.Context, log *slog.Logger, u User, out *Outcome) {
	if u.CollectionID == "" {
		log.Warn("no collection configured, skipping removal of watched titles")
		return
	}
	if u.JellyfinUsername == "" {
		log.Warn("no jellyfin user configured, skipping removal of watched titles")
		return
	}

	uid, ok, err := e.catalog.UserID(ctx, u.JellyfinUsername)
	if err != nil {
		out.RemovalErr = fmt.Errorf("resolve jellyfin user: %w", err)
		log.Error("removal scan failed", "error", out.RemovalErr)
		return
	}
	if !ok {
		log.Warn("jellyfin user not found, skipping removal", "jellyfin_user", u.JellyfinUsername)
		return
	}

	played, err := e.catalog.PlayedMovies(ctx, u.CollectionID, uid)
	if err != nil {
		out.RemovalErr = fmt.Errorf("list played: %w", err)
		log.Error("removal scan failed", "error", out.RemovalErr)
		return
	}
	if len(played) == 0 {
		return
	}

	if err := e.catalog.RemoveFromCollection(ctx, played, u.CollectionID); err != nil {
		out.RemovalErr = fmt.Errorf("remove from collection: %w", err)
		log.Error("removal scan failed", "error", out.RemovalErr)
		return
	}
	out.Removed = played
	log.Info("removed watched titles", "count", len(played))
}

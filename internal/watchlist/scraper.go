// Package watchlist scrapes a user's Letterboxd watchlist into an ordered
// list of TMDB ids, newest first.
package watchlist

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/vmunix/watchsync/internal/fetch"
	"github.com/vmunix/watchsync/internal/proxypool"
)

// Fetcher retrieves one HTML page, optionally through a proxy.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, ep *proxypool.Endpoint) (*fetch.Document, error)
}

// Proxies hands out the proxy for the next request. Next returns nil for a
// direct connection.
type Proxies interface {
	Next() *proxypool.Endpoint
}

// Options configures a Scraper.
type Options struct {
	BaseURL    string
	Workers    int           // concurrent detail fetches per page
	Attempts   int           // tries per outbound fetch
	RetryDelay time.Duration // fixed delay between tries
}

// Result is the outcome of one scrape pass.
type Result struct {
	// IDs in display order, index 0 newest. The watermark is never included.
	IDs []string
	// Complete is false when a page or detail fetch failed and the pass
	// stopped early. IDs then holds what was collected before the failure.
	Complete bool
	// ReachedWatermark is true when the pass stopped on the watermark.
	ReachedWatermark bool
	Pages            int
}

// Newest returns the first scraped id.
func (r Result) Newest() (string, bool) {
	if len(r.IDs) == 0 {
		return "", false
	}
	return r.IDs[0], true
}

// Scraper walks watchlist pages and resolves each film to its TMDB id.
type Scraper struct {
	fetcher Fetcher
	proxies Proxies
	opts    Options
	log     *slog.Logger
}

// New creates a Scraper. proxies may be nil.
func New(fetcher Fetcher, proxies Proxies, opts Options, log *slog.Logger) *Scraper {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://letterboxd.com"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scraper{
		fetcher: fetcher,
		proxies: proxies,
		opts:    opts,
		log:     log.With("component", "watchlist"),
	}
}

// ScrapeAll walks every page of the user's watchlist.
func (s *Scraper) ScrapeAll(ctx context.Context, user string) Result {
	return s.ScrapeSince(ctx, user, "")
}

// ScrapeSince walks the watchlist newest first and stops at the first entry
// whose id equals watermark. An empty watermark walks every page.
func (s *Scraper) ScrapeSince(ctx context.Context, user, watermark string) Result {
	log := s.log.With("user", user)
	res := Result{}

	pageURL := s.opts.BaseURL + "/" + url.PathEscape(user) + "/watchlist/"
	for pageURL != "" {
		doc, err := s.get(ctx, pageURL)
		if err != nil {
			log.Error("watchlist page fetch failed, keeping partial result",
				"page", res.Pages+1, "url", pageURL, "collected", len(res.IDs), "error", err)
			return res
		}
		res.Pages++

		links := filmLinks(doc)
		log.Debug("scraped watchlist page", "page", res.Pages, "films", len(links))

		ids, errs := s.details(ctx, links)
		for i, link := range links {
			if err := errs[i]; err != nil {
				if errors.Is(err, ErrNoExternalID) {
					log.Warn("no TMDB id on film page, skipping", "film", link)
					continue
				}
				log.Error("film page fetch failed, keeping partial result",
					"film", link, "collected", len(res.IDs), "error", err)
				return res
			}
			if watermark != "" && ids[i] == watermark {
				res.Complete = true
				res.ReachedWatermark = true
				return res
			}
			res.IDs = append(res.IDs, ids[i])
		}

		pageURL = nextPage(doc)
	}

	res.Complete = true
	return res
}

// details resolves every film link concurrently. Results are written into
// slots addressed by the link's position so callers see page order.
func (s *Scraper) details(ctx context.Context, links []string) ([]string, []error) {
	ids := make([]string, len(links))
	errs := make([]error, len(links))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, link := range links {
		g.Go(func() error {
			doc, err := s.get(ctx, link)
			if err != nil {
				errs[i] = err
				return nil
			}
			ids[i], errs[i] = externalID(doc)
			return nil
		})
	}
	_ = g.Wait()
	return ids, errs
}

// get fetches a page with a fixed number of tries. Each try takes the next
// proxy in rotation.
func (s *Scraper) get(ctx context.Context, rawURL string) (*fetch.Document, error) {
	return retry.DoWithData(
		func() (*fetch.Document, error) {
			return s.fetcher.Fetch(ctx, rawURL, s.nextProxy())
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.opts.Attempts)),
		retry.Delay(s.opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			s.log.Debug("retrying fetch", "url", rawURL, "attempt", n+1, "error", err)
		}),
	)
}

func (s *Scraper) nextProxy() *proxypool.Endpoint {
	if s.proxies == nil {
		return nil
	}
	return s.proxies.Next()
}

func retryable(err error) bool {
	var te *fetch.TransportError
	if errors.As(err, &te) && te.StatusCode == http.StatusNotFound {
		return false
	}
	return true
}

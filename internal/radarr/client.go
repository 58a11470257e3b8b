// Package radarr looks up and enqueues movies in a Radarr library.
package radarr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Movie is Radarr's view of one title.
type Movie struct {
	ExternalID  string
	Title       string
	Year        int
	TitleSlug   string
	HasFile     bool
	Monitored   bool
	IsAnimation bool
}

// AddOptions are applied to every movie in an Enqueue batch.
type AddOptions struct {
	RootFolderPath          string
	AnimationRootFolderPath string // used for animation when set
	QualityProfileID        int
	SearchOnAdd             bool
	MinimumAvailability     string // defaults to "released"
}

// EnqueueResult summarizes an Enqueue batch.
type EnqueueResult struct {
	Added    []string
	Existing []string
	Failed   map[string]error
}

// Client talks to the Radarr v3 API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.httpClient = &http.Client{Timeout: d}
	}
}

// New creates a Radarr client.
func New(baseURL, apiKey string, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		log:     log.With("component", "radarr"),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns Radarr's state for a TMDB id. A title Radarr does not know
// and a failed lookup both yield nil; failures are logged.
func (c *Client) Lookup(ctx context.Context, externalID string) *Movie {
	m, err := c.lookup(ctx, externalID)
	if err != nil {
		c.log.Error("lookup failed", "tmdb_id", externalID, "error", err)
		return nil
	}
	if m == nil {
		c.log.Info("no radarr match", "tmdb_id", externalID)
	}
	return m
}

func (c *Client) lookup(ctx context.Context, externalID string) (*Movie, error) {
	params := url.Values{"term": {"tmdb:" + externalID}}
	reqURL := c.baseURL + "/api/v3/movie/lookup?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidAPIKey
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: %q", ErrNotJSON, resp.Header.Get("Content-Type"))
	}

	var results []lookupResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	r := results[0]
	return &Movie{
		ExternalID:  strconv.Itoa(r.TMDBID),
		Title:       r.Title,
		Year:        r.Year,
		TitleSlug:   r.TitleSlug,
		HasFile:     r.HasFile || (r.MovieFile != nil && r.MovieFile.RelativePath != ""),
		Monitored:   r.Monitored,
		IsAnimation: slices.Contains(r.Genres, "Animation"),
	}, nil
}

// Enqueue adds each movie to Radarr with one request per title. A title
// Radarr already has counts as existing. A failure is recorded for that
// title only and the batch continues.
func (c *Client) Enqueue(ctx context.Context, movies []*Movie, opts AddOptions) EnqueueResult {
	res := EnqueueResult{Failed: make(map[string]error)}
	for _, m := range movies {
		err := c.add(ctx, m, opts)
		switch {
		case err == nil:
			c.log.Info("movie enqueued", "tmdb_id", m.ExternalID, "title", m.Title)
			res.Added = append(res.Added, m.ExternalID)
		case errors.Is(err, ErrAlreadyAdded):
			c.log.Info("movie already in radarr", "tmdb_id", m.ExternalID, "title", m.Title)
			res.Existing = append(res.Existing, m.ExternalID)
		default:
			c.log.Error("enqueue failed", "tmdb_id", m.ExternalID, "title", m.Title, "error", err)
			res.Failed[m.ExternalID] = err
		}
	}
	return res
}

func (c *Client) add(ctx context.Context, m *Movie, opts AddOptions) error {
	tmdbID, err := strconv.Atoi(m.ExternalID)
	if err != nil {
		return fmt.Errorf("invalid tmdb id %q: %w", m.ExternalID, err)
	}

	root := opts.RootFolderPath
	if m.IsAnimation && opts.AnimationRootFolderPath != "" {
		root = opts.AnimationRootFolderPath
	}
	avail := opts.MinimumAvailability
	if avail == "" {
		avail = "released"
	}

	body := addRequest{
		TMDBID:              tmdbID,
		Title:               m.Title,
		TitleSlug:           m.TitleSlug,
		Year:                m.Year,
		QualityProfileID:    opts.QualityProfileID,
		Monitored:           true,
		RootFolderPath:      root,
		MinimumAvailability: avail,
	}
	body.AddOptions.SearchForMovie = opts.SearchOnAdd

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/movie", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if strings.Contains(strings.ToLower(string(msg)), "already been added") {
			return ErrAlreadyAdded
		}
		return fmt.Errorf("%w: 400 %s", ErrUnexpectedStatus, strings.TrimSpace(string(msg)))
	case http.StatusUnauthorized:
		return ErrInvalidAPIKey
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

// SystemStatus returns the Radarr version. It is used as a connectivity check.
func (c *Client) SystemStatus(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/system/status", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrInvalidAPIKey
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var status struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return status.Version, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

type lookupResult struct {
	TMDBID    int      `json:"tmdbId"`
	Title     string   `json:"title"`
	TitleSlug string   `json:"titleSlug"`
	Year      int      `json:"year"`
	HasFile   bool     `json:"hasFile"`
	Monitored bool     `json:"monitored"`
	Genres    []string `json:"genres"`
	MovieFile *struct {
		RelativePath string `json:"relativePath"`
	} `json:"movieFile"`
}

type addRequest struct {
	TMDBID              int    `json:"tmdbId"`
	Title               string `json:"title"`
	TitleSlug           string `json:"titleSlug,omitempty"`
	Year                int    `json:"year"`
	QualityProfileID    int    `json:"qualityProfileId"`
	Monitored           bool   `json:"monitored"`
	RootFolderPath      string `json:"rootFolderPath"`
	MinimumAvailability string `json:"minimumAvailability"`
	AddOptions          struct {
		SearchForMovie bool `json:"searchForMovie"`
	} `json:"addOptions"`
}

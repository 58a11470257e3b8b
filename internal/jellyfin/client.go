// Package jellyfin resolves movies in a Jellyfin catalog and manages the
// per-user collections that mirror each watchlist.
package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmunix/watchsync/pkg/title"
)

const (
	// BatchSize is the most ids sent in one collection request.
	BatchSize = 50

	defaultPageSize = 500
)

// Item is one catalog entry.
type Item struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	ProductionYear int    `json:"ProductionYear"`
}

// User is a Jellyfin account.
type User struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Client talks to the Jellyfin API. The movie catalog is fetched on first
// use and kept for the lifetime of the client.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	log            *slog.Logger
	pageSize       int
	fuzzyThreshold float64

	once       sync.Once
	catalog    *catalog
	catalogErr error
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.httpClient = &http.Client{Timeout: d}
	}
}

// WithPageSize sets how many items each catalog page request asks for.
func WithPageSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.pageSize = n
		}
	}
}

// WithFuzzyThreshold enables the same-year fuzzy title fallback in
// ResolveID. Zero disables it.
func WithFuzzyThreshold(t float64) Option {
	return func(cl *Client) {
		cl.fuzzyThreshold = t
	}
}

// New creates a Jellyfin client.
func New(baseURL, apiKey string, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		log:      log.With("component", "jellyfin"),
		pageSize: defaultPageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveID maps a title and release year to a catalog id. ok is false when
// the catalog has no such movie.
func (c *Client) ResolveID(ctx context.Context, name string, year int) (string, bool, error) {
	cat, err := c.loadCatalog(ctx)
	if err != nil {
		return "", false, err
	}
	if id, ok := cat.byKey[title.Key(name, year)]; ok {
		return id, true, nil
	}
	if c.fuzzyThreshold <= 0 {
		return "", false, nil
	}

	sameYear := cat.byYear[year]
	names := make([]string, len(sameYear))
	for i, it := range sameYear {
		names[i] = it.Name
	}
	idx, score, ok := title.Best(name, names, c.fuzzyThreshold)
	if !ok {
		return "", false, nil
	}
	c.log.Info("fuzzy catalog match", "title", name, "year", year, "matched", sameYear[idx].Name, "score", score)
	return sameYear[idx].ID, true, nil
}

// AddToCollection adds ids to a collection in batches of BatchSize. Adding an
// id that is already a member is not an error.
func (c *Client) AddToCollection(ctx context.Context, ids []string, collectionID string) error {
	return c.mutateCollection(ctx, http.MethodPost, ids, collectionID)
}

// RemoveFromCollection removes ids from a collection in batches of BatchSize.
// Removing an id that is not a member is not an error.
func (c *Client) RemoveFromCollection(ctx context.Context, ids []string, collectionID string) error {
	return c.mutateCollection(ctx, http.MethodDelete, ids, collectionID)
}

func (c *Client) mutateCollection(ctx context.Context, method string, ids []string, collectionID string) error {
	if len(ids) == 0 {
		return nil
	}
	path := "/Collections/" + url.PathEscape(collectionID) + "/Items"

	for batch := range slices.Chunk(ids, BatchSize) {
		params := url.Values{"ids": {strings.Join(batch, ",")}}
		req, err := c.newRequest(ctx, method, path, params)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s %s: %w: %d", method, path, ErrUnexpectedStatus, resp.StatusCode)
		}
		c.log.Debug("collection updated", "method", method, "collection", collectionID, "count", len(batch))
	}
	return nil
}

// PlayedMovies returns the ids of movies in a collection that userID has
// played.
func (c *Client) PlayedMovies(ctx context.Context, collectionID, userID string) ([]string, error) {
	params := url.Values{
		"ParentId":         {collectionID},
		"Filters":          {"IsPlayed"},
		"Recursive":        {"true"},
		"IncludeItemTypes": {"Movie"},
	}
	var resp itemsResponse
	if err := c.getJSON(ctx, "/Users/"+url.PathEscape(userID)+"/Items", params, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		ids = append(ids, it.ID)
	}
	return ids, nil
}

// UserID resolves a display name to a user id, ignoring case. ok is false
// when no user matches.
func (c *Client) UserID(ctx context.Context, name string) (string, bool, error) {
	var users []User
	if err := c.getJSON(ctx, "/Users", nil, &users); err != nil {
		return "", false, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Name, name) {
			return u.ID, true, nil
		}
	}
	return "", false, nil
}

// SystemInfo returns the server name and version.
func (c *Client) SystemInfo(ctx context.Context) (name, version string, err error) {
	var info struct {
		ServerName string `json:"ServerName"`
		Version    string `json:"Version"`
	}
	if err := c.getJSON(ctx, "/System/Info", nil, &info); err != nil {
		return "", "", err
	}
	return info.ServerName, info.Version, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values) (*http.Request, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", `MediaBrowser Token="`+c.apiKey+`"`)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, params)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrInvalidAPIKey
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %w: %d", path, ErrUnexpectedStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}

type itemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

func pageParams(start, limit int) url.Values {
	return url.Values{
		"Recursive":        {"true"},
		"IncludeItemTypes": {"Movie"},
		"Fields":           {"ProductionYear"},
		"StartIndex":       {strconv.Itoa(start)},
		"Limit":            {strconv.Itoa(limit)},
	}
}

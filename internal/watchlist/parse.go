package watchlist

import (
	"net/url"
	"strings"

	"github.com/vmunix/watchsync/internal/fetch"
)

var (
	posterLink = fetch.All(
		fetch.Tag("div"),
		fetch.HasClass("poster"),
		fetch.Any(fetch.HasAttr("data-target-link"), fetch.HasAttr("data-item-link")),
	)
	nextLink   = fetch.All(fetch.Tag("a"), fetch.HasClass("next"))
	tmdbLink   = fetch.All(fetch.Tag("a"), fetch.AttrEquals("data-track-action", "TMDb"))
)

// filmLinks returns the absolute film page URLs of the poster tiles on a
// watchlist page in display order.
func filmLinks(doc *fetch.Document) []string {
	var links []string
	seen := make(map[string]bool)
	for _, n := range doc.Find(posterLink) {
		href, ok := fetch.Attr(n, "data-target-link")
		if !ok || href == "" {
			href, _ = fetch.Attr(n, "data-item-link")
		}
		abs, err := doc.Resolve(href)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		links = append(links, abs)
	}
	return links
}

func nextPage(doc *fetch.Document) string {
	n := doc.First(nextLink)
	if n == nil {
		return ""
	}
	href, ok := fetch.Attr(n, "href")
	if !ok || href == "" {
		return ""
	}
	abs, err := doc.Resolve(href)
	if err != nil {
		return ""
	}
	return abs
}

// externalID pulls the TMDB id out of a film page: the last path segment of
// the outbound TMDb link, or the body's data-tmdb-id attribute.
func externalID(doc *fetch.Document) (string, error) {
	if a := doc.First(tmdbLink); a != nil {
		if href, ok := fetch.Attr(a, "href"); ok {
			if id := lastSegment(href); id != "" {
				return id, nil
			}
		}
	}
	if body := doc.First(fetch.Tag("body")); body != nil {
		if id, ok := fetch.Attr(body, "data-tmdb-id"); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id), nil
		}
	}
	return "", ErrNoExternalID
}

func lastSegment(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	return segs[len(segs)-1]
}

package jellyfin

import (
	"context"
	"fmt"

	"github.com/vmunix/watchsync/pkg/title"
)

// catalog indexes every movie by exact (title, year) key and by year for the
// fuzzy fallback. Duplicate keys keep the last item seen.
type catalog struct {
	byKey  map[string]string
	byYear map[int][]Item
	size   int
}

func newCatalog(items []Item) *catalog {
	cat := &catalog{
		byKey:  make(map[string]string, len(items)),
		byYear: make(map[int][]Item),
		size:   len(items),
	}
	for _, it := range items {
		cat.byKey[title.Key(it.Name, it.ProductionYear)] = it.ID
		cat.byYear[it.ProductionYear] = append(cat.byYear[it.ProductionYear], it)
	}
	return cat
}

// loadCatalog fetches the catalog once. A failed fetch is not retried for
// the lifetime of the client.
func (c *Client) loadCatalog(ctx context.Context) (*catalog, error) {
	c.once.Do(func() {
		items, err := c.Movies(ctx)
		if err != nil {
			c.catalogErr = fmt.Errorf("load catalog: %w", err)
			return
		}
		c.catalog = newCatalog(items)
		c.log.Info("catalog loaded", "movies", c.catalog.size)
	})
	return c.catalog, c.catalogErr
}

// Movies pages through every movie in the library. Paging ends at a short
// page, or at TotalRecordCount when the server reports one.
func (c *Client) Movies(ctx context.Context) ([]Item, error) {
	var all []Item
	for start := 0; ; {
		var page itemsResponse
		if err := c.getJSON(ctx, "/Items", pageParams(start, c.pageSize), &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		start += len(page.Items)

		if len(page.Items) < c.pageSize || (page.TotalRecordCount > 0 && start >= page.TotalRecordCount) {
			break
		}
	}
	return all, nil
}

package fetch

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><body data-tmdb-id="603">
<ul class="poster-list">
  <li><div class="poster film-poster" data-target-link="/film/the-matrix/"></div></li>
  <li><div class="poster film-poster" data-item-link="/film/heat/"></div></li>
</ul>
<a href="https://www.themoviedb.org/movie/603/" data-track-action="TMDb">TMDb</a>
</body></html>`

func TestDocument_FindAndFirst(t *testing.T) {
	base, _ := url.Parse("https://letterboxd.com/alice/watchlist/")
	doc, err := Parse(strings.NewReader(samplePage), base)
	require.NoError(t, err)

	posters := doc.Find(All(Tag("div"), HasClass("poster")))
	require.Len(t, posters, 2)

	link, ok := Attr(posters[0], "data-target-link")
	assert.True(t, ok)
	assert.Equal(t, "/film/the-matrix/", link)

	_, ok = Attr(posters[1], "data-target-link")
	assert.False(t, ok)

	either := doc.Find(Any(HasAttr("data-target-link"), HasAttr("data-item-link")))
	assert.Len(t, either, 2)

	tmdb := doc.First(All(Tag("a"), AttrEquals("data-track-action", "TMDb")))
	require.NotNil(t, tmdb)
	href, _ := Attr(tmdb, "href")
	assert.Equal(t, "https://www.themoviedb.org/movie/603/", href)

	assert.Nil(t, doc.First(HasClass("next")))
}

func TestDocument_Resolve(t *testing.T) {
	base, _ := url.Parse("https://letterboxd.com/alice/watchlist/")
	doc := &Document{Base: base}

	got, err := doc.Resolve("/film/heat/")
	require.NoError(t, err)
	assert.Equal(t, "https://letterboxd.com/film/heat/", got)

	got, err = doc.Resolve("page/2/")
	require.NoError(t, err)
	assert.Equal(t, "https://letterboxd.com/alice/watchlist/page/2/", got)
}

package watchlist

import "errors"

// ErrNoExternalID is returned when a film page carries no TMDB id.
var ErrNoExternalID = errors.New("no external id on film page")

package radarr

import "errors"

// Sentinel errors for the radarr package.
var (
	// ErrUnavailable is returned when Radarr cannot be reached.
	ErrUnavailable = errors.New("radarr unavailable")

	// ErrInvalidAPIKey is returned when Radarr rejects the API key.
	ErrInvalidAPIKey = errors.New("invalid api key")

	// ErrUnexpectedStatus is returned for responses outside the expected codes.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrNotJSON is returned when a lookup response is not JSON.
	ErrNotJSON = errors.New("response is not json")

	// ErrAlreadyAdded is returned when Radarr already has the movie.
	ErrAlreadyAdded = errors.New("movie already added")
)

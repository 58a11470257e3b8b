package jellyfin

import "errors"

var (
	// ErrUnexpectedStatus is returned when Jellyfin answers with a status the
	// call does not expect.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrInvalidAPIKey is returned when Jellyfin rejects the API key.
	ErrInvalidAPIKey = errors.New("invalid api key")
)

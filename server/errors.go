package server

import "errors"

var (
	// ErrMissingAuth indicates a signed route was called without signature headers.
	ErrMissingAuth = errors.New("server: missing signature headers")

	// ErrStaleRequest indicates a signed request whose timestamp is outside the allowed skew.
	ErrStaleRequest = errors.New("server: request timestamp outside allowed skew")

	// ErrReplayedRequest indicates a signed request that was already accepted.
	ErrReplayedRequest = errors.New("server: replayed request")

	// ErrBadRequest indicates a malformed request body or path parameter.
	ErrBadRequest = errors.New("server: bad request")
)

package source

import "github.com/m-mizutani/goerr/v2"

// Both kinds are recovered where they happen: callers get an empty or
// shortened result and a log line, never the error itself.
var (
	// ErrFetch reports a network, HTTP, timeout or decode failure.
	ErrFetch = goerr.New("failed to fetch source records")
	// ErrMalformedCacheLine reports one unreadable line of a cache file.
	ErrMalformedCacheLine = goerr.New("malformed cache line")
)

package harvest

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable means the page count could not be enumerated.
	// It is fatal for the partition's run.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPageFetchFailed marks a recoverable page failure.
	ErrPageFetchFailed = errors.New("page fetch failed")

	// ErrSinkWriteFailed means an artifact could not be persisted.
	ErrSinkWriteFailed = errors.New("sink write failed")

	// ErrNoStoredPages means an operator merge found nothing to merge.
	ErrNoStoredPages = errors.New("no stored pages")
)

// PageError describes a failed fetch unit.
type PageError struct {
	Unit FetchUnit
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Unit, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Is reports ErrPageFetchFailed for every PageError.
func (e *PageError) Is(target error) bool {
	return target == ErrPageFetchFailed
}

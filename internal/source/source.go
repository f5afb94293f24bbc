// Package source talks to the remote endpoints that turn a keyword into image
// URLs. Each Source makes exactly one attempt per call; retrying, caching and
// throttling policy live in the search package.
package source

import (
	"context"
	"errors"
	"fmt"
)

// Response is one page of results from a Source.
type Response struct {
	Source  string
	Keyword string
	Page    int
	URLs    []string
	// Skipped counts entries dropped because their declared size was too large.
	Skipped int
}

// Source resolves a keyword and page to image URLs.
type Source interface {
	Name() string
	// Query makes a single request. Throttling signals are reported as an
	// error matching ErrThrottled; other failures are *fault.Error.
	Query(ctx context.Context, keyword string, page int) (*Response, error)
}

// Warmer is implemented by sources that can refresh session state (cookies)
// after being throttled.
type Warmer interface {
	WarmUp(ctx context.Context) error
}

// ErrThrottled matches any ThrottleError.
var ErrThrottled = errors.New("endpoint is throttling requests")

// ThrottleError carries the signal that identified throttling: an HTTP status
// from the anti-bot set, or a payload success flag with the wrong value.
type ThrottleError struct {
	Status int
	Reason string
}

func (e *ThrottleError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d)", ErrThrottled, e.Status)
	}
	return fmt.Sprintf("%s (%s)", ErrThrottled, e.Reason)
}

func (e *ThrottleError) Is(target error) bool { return target == ErrThrottled }

package fetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/draftfix/pkg/logger"
)

// Retrying retries a Fetcher with exponential backoff: Backoff, 2*Backoff,
// 4*Backoff and so on between attempts.
type Retrying struct {
	Next Fetcher
	// Retries is the number of extra attempts after the first.
	Retries int
	Backoff time.Duration
	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next.
func NewRetrying(next Fetcher, retries int, backoff time.Duration) *Retrying {
	return &Retrying{Next: next, Retries: retries, Backoff: backoff}
}

// Fetch runs Next until it succeeds, the error is permanent, attempts run
// out, or ctx is done.
func (r *Retrying) Fetch(ctx context.Context, locator, destPath string) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = r.Next.Fetch(ctx, locator, destPath)
		if err == nil || attempt >= r.Retries || !Retryable(err) || ctx.Err() != nil {
			return err
		}
		wait := r.Backoff << attempt
		logger.Debug("retrying fetch",
			logger.Int("attempt", attempt+1),
			logger.Duration("backoff", wait),
			logger.Err(err))
		if serr := sleep(ctx, wait); serr != nil {
			return err
		}
	}
}

// Retryable reports whether another attempt could succeed. Client errors
// other than 408 and 429, unsupported schemes and size-limit breaches are permanent.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrUnsupportedScheme) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode >= 400 && fe.StatusCode < 500 {
		return fe.StatusCode == http.StatusRequestTimeout || fe.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

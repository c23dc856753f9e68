package connector

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryPolicy builds spec.md §7's retry policy: initial 100ms, factor 2,
// cap 30s, max 5 attempts, jittered +/-25%. Grounded on
// github.com/cenkalti/backoff/v4, the library the domain stack adopts for
// every ConnectorUnavailable/5xx/429 retry path.
func retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, 4), ctx)
}

// doWithRetry executes do, retrying on a 5xx/429 response or a transport
// error per spec.md §7's policy. The final response (success or not) is
// returned once retries are exhausted.
func doWithRetry(ctx context.Context, do func() (*http.Response, error)) (*http.Response, error) {
	var resp *http.Response
	operation := func() error {
		r, err := do()
		if err != nil {
			return err
		}
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			resp = r
			return errRetryableStatus
		}
		resp = r
		return nil
	}

	err := backoff.Retry(operation, retryPolicy(ctx))
	if err != nil && err != errRetryableStatus {
		return nil, err
	}
	return resp, nil
}

type retryableStatusError struct{}

func (retryableStatusError) Error() string { return "connector: retryable HTTP status" }

var errRetryableStatus = retryableStatusError{}

// jitteredDuration returns a duration drawn uniformly from
// base*(1-randomization) to base*(1+randomization), spec.md §7's jitter
// without a second exponential-backoff implementation. No backend in this
// package calls it.
func jitteredDuration(base time.Duration, randomization float64) time.Duration {
	delta := randomization * float64(base)
	min := float64(base) - delta
	max := float64(base) + delta
	return time.Duration(min + (rand.Float64() * (max - min)))
}

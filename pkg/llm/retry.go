package llm

import (
	"context"
	"time"

	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
)

const (
	retryBaseDelay = 100 * time.Millisecond
	maxRetries     = 3
)

// nonRetriableKinds are the error kinds spec.md section 4.G names as
// never eligible for the retry policy, regardless of what the
// provider's own transport-level retry (pkg/httpclient) already
// handled.
var nonRetriableKinds = map[mcperr.Kind]bool{
	mcperr.KindValidation:        true,
	mcperr.KindContentFiltered:   true,
	mcperr.KindModelNotAvailable: true,
}

// WithRetry wraps a Provider so that Complete retries transient
// failures with exponential backoff (base 100ms * 2^attempt, up to 3
// retries), skipping retry entirely for the non-retriable kinds.
func WithRetry(p Provider) Provider {
	return &retryingProvider{inner: p}
}

type retryingProvider struct {
	inner Provider
}

func (r *retryingProvider) Model() string { return r.inner.Model() }

func (r *retryingProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if nonRetriableKinds[mcperr.KindOf(err)] || attempt >= maxRetries {
			return ChatResponse{}, err
		}

		delay := retryBaseDelay << attempt
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ChatResponse{}, mcperr.New(mcperr.KindCancelled, "retry cancelled", ctx.Err())
		}
	}
	return ChatResponse{}, lastErr
}

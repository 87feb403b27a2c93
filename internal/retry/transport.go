package retry

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/xerrors"
)

// Transport retries requests according to RetryOn, waiting as told by
// RetryStrategy. Request bodies are replayed through Request.GetBody.
type Transport struct {
	Base          http.RoundTripper
	RetryStrategy Strategy
	RetryOn       *On
}

type contextKey string

const retryCountContextKey contextKey = "retryCountKey"

func getRetryCount(ctx context.Context) uint {
	v := ctx.Value(retryCountContextKey)

	i, ok := v.(uint)
	if !ok {
		return 0
	}

	return i
}

func setRetryCount(ctx context.Context, retryCount uint) context.Context {
	return context.WithValue(ctx, retryCountContextKey, retryCount)
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	retryCount := getRetryCount(request.Context())
	sleep, exceeded := t.retryStrategy().Sleep(retryCount)

	response, err := t.base().RoundTrip(request)
	if err != nil {
		if !exceeded && t.RetryOn != nil && t.RetryOn.CheckError(err) {
			return t.retry(request, retryCount, sleep)
		}
		return nil, err
	}
	if !exceeded && t.RetryOn != nil && t.RetryOn.CheckResponse(response) {
		if retryAfter, ok := parseRetryAfter(response.Header.Get("Retry-After")); ok && retryAfter > sleep {
			sleep = retryAfter
		}
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
		return t.retry(request, retryCount, sleep)
	}
	return response, nil
}

func (t *Transport) retry(request *http.Request, retryCount uint, sleep time.Duration) (*http.Response, error) {
	if err := request.Context().Err(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(sleep)
	select {
	case <-request.Context().Done():
		timer.Stop()
		return nil, request.Context().Err()
	case <-timer.C:
	}

	next := request.Clone(setRetryCount(request.Context(), retryCount+1))
	if request.Body != nil && request.Body != http.NoBody {
		if request.GetBody == nil {
			return nil, xerrors.New("request body cannot be replayed")
		}
		body, err := request.GetBody()
		if err != nil {
			return nil, xerrors.Errorf("failed to replay request body: %w", err)
		}
		next.Body = body
	}
	return t.RoundTrip(next)
}

// parseRetryAfter only understands the delay-seconds form.
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) retryStrategy() Strategy {
	if t.RetryStrategy != nil {
		return t.RetryStrategy
	}
	return NewNever()
}

// NewClient returns an http.Client whose transport retries with the default policy.
func NewClient(timeout time.Duration, strategy Strategy) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &Transport{
			Base:          http.DefaultTransport,
			RetryStrategy: strategy,
			RetryOn:       NewDefaultRetryOn(),
		},
	}
}

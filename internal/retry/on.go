package retry

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// On decides which upstream outcomes are worth another attempt.
type On struct {
	_5xx           bool
	gatewayError   bool
	connectFailure bool
	retriable4xx   bool
	rateLimited    bool
	statusCodes    []int
}

// NewDefaultRetryOn retries gateway errors, connect failures, conflicts and rate limiting.
func NewDefaultRetryOn() *On {
	return &On{
		gatewayError:   true,
		connectFailure: true,
		retriable4xx:   true,
		rateLimited:    true,
	}
}

// NewRetryOnFromString parses a comma separated list of envoy style retry
// conditions ("5xx", "gateway-error", "connect-failure", "retriable-4xx",
// "rate-limited") and plain status codes.
func NewRetryOnFromString(s string) (*On, error) {
	o := &On{}
	for _, s := range strings.Split(s, ",") {
		switch strings.TrimSpace(s) {
		case "":
		case "5xx":
			o._5xx = true
		case "gateway-error":
			o.gatewayError = true
		case "connect-failure":
			o.connectFailure = true
		case "retriable-4xx":
			o.retriable4xx = true
		case "rate-limited":
			o.rateLimited = true
		default:
			statusCode, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return nil, xerrors.Errorf("invalid retryOn: %s", s)
			}
			o.statusCodes = append(o.statusCodes, statusCode)
		}
	}
	return o, nil
}

// https://github.com/envoyproxy/envoy/blob/70d6ec1df6384118cf2fa2f02c0041edb76b2377/source/common/router/retry_state_impl.cc#L387
func (o *On) CheckResponse(response *http.Response) bool {
	if (o._5xx && response.StatusCode >= 500 && response.StatusCode < 600) ||
		(o.gatewayError && response.StatusCode >= 502 && response.StatusCode < 505) ||
		(o.retriable4xx && response.StatusCode == http.StatusConflict) ||
		(o.rateLimited && response.StatusCode == http.StatusTooManyRequests) {
		return true
	}

	for _, i := range o.statusCodes {
		if i == response.StatusCode {
			return true
		}
	}

	return false
}

func (o *On) CheckError(err error) bool {
	type temporary interface{ Temporary() bool }
	var terr temporary
	if (errors.As(err, &terr) && terr.Temporary()) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if o.connectFailure || o._5xx {
			return true
		}
	}
	return false
}

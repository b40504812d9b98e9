package numguess

import (
	"context"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrInvalidRange means the guess range is empty or inverted. It aborts the experiment before any trial starts.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidTrialCount means the requested number of trials is not positive.
	ErrInvalidTrialCount = errors.New("invalid trial count")

	// ErrConversationFailure means the conversation with the model could not be completed for infrastructure reasons
	// (transport error, timeout, malformed API response). It is recorded as an anomaly of the trial.
	ErrConversationFailure = errors.New("conversation failure")

	// ErrEmptyResponse means the API answered without any text.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrExperimentAborted means the experiment stopped early because of a non-recoverable condition.
	ErrExperimentAborted = errors.New("experiment aborted")

	// ErrInvalidParameter is returned for invalid arguments to provider clients.
	ErrInvalidParameter = errors.New("invalid parameter")
)

var (
	// TagTransient marks an error that is worth retrying (rate limit, server error, per-call timeout).
	TagTransient = goerr.NewTag("transient")

	// TagTransportExhausted marks a conversation failure caused by an exhausted retry budget.
	TagTransportExhausted = goerr.NewTag("transport_exhausted")
)

// IsTransient reports whether err is worth another attempt. Providers tag rate limits and server side errors with
// TagTransient; an expired per-call deadline is transient as well.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return goerr.HasTag(err, TagTransient) || errors.Is(err, context.DeadlineExceeded)
}

// IsTransientStatus reports whether an HTTP status code returned by a provider API is worth retrying: request
// timeout, rate limit and server side errors.
func IsTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

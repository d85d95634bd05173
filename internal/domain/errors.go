package domain

import "errors"

// Domain errors
var (
	ErrMalformedDocument   = errors.New("malformed replay document")
	ErrInvalidEventPayload = errors.New("invalid event payload")
	ErrSourceUnavailable   = errors.New("replay source unavailable")
	ErrStoreFailure        = errors.New("replay store failure")
	ErrReplayNotFound      = errors.New("replay not found")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrUnknownStatistic    = errors.New("unknown leaderboard statistic")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrReplayNotFound) || errors.Is(err, ErrPlayerNotFound)
}

// IsTransient reports whether a per-source ingestion failure is worth
// retrying. Structurally bad documents are not: the bytes will not change.
func IsTransient(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrStoreFailure)
}

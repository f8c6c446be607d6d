package model

import "errors"

// Errors surfaced by the session protocol
var (
	// Business rejection: the player is seated in another room
	ErrAlreadyLoggedIn = errors.New("player is already logged in")

	// Caller preconditions
	ErrRoomNotFound      = errors.New("room not found")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrInvalidRoomType   = errors.New("invalid room type")
	ErrInvalidPlayerData = errors.New("invalid player data")

	// Partition ownership moved; re-resolve the owner and retry
	ErrNotOwner = errors.New("partition is not owned by this node")

	// Store or network temporarily unavailable; retry with backoff
	ErrTransient = errors.New("transient failure")

	// An invariant between the stores was violated; never retried
	ErrIntegrity = errors.New("integrity violation")

	// The service has not finished starting, or is shutting down
	ErrNotReady = errors.New("service is not ready")
)

// IsRetryable reports whether the caller may repeat the same request
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrNotOwner) || errors.Is(err, ErrNotReady)
}

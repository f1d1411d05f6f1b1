package session

import "errors"

var (
	ErrNoActiveSession      = errors.New("no active chess session")
	ErrSessionAlreadyActive = errors.New("chess session already active")
	ErrSessionExpired       = errors.New("chess session expired")
	ErrNotUserTurn          = errors.New("not the user's turn")
	ErrEmptyMove            = errors.New("empty move")
	ErrIllegalMove          = errors.New("illegal move")
	// ErrConcurrentUpdate is returned by a Store when a newer copy of the session already exists.
	ErrConcurrentUpdate = errors.New("session changed concurrently")
)

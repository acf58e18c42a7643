package session

import "errors"

var (
	// ErrInvalidSelection is returned when a league selection names an id
	// that is not in the current league list.
	ErrInvalidSelection = errors.New("selected league is not in the current league list")

	// ErrNotAwaitingAssociation is returned when association completion is
	// attempted outside the association_required phase.
	ErrNotAwaitingAssociation = errors.New("session is not awaiting association")

	// ErrSessionEnded is returned when an operation's session was logged out
	// before the operation could finish.
	ErrSessionEnded = errors.New("session ended before the operation completed")

	// ErrNotRetryable is returned when RetryLogin is called outside the
	// failed-login state or without a connected wallet.
	ErrNotRetryable = errors.New("no failed login to retry")

	// ErrNotReady is returned for operations that require a fully
	// bootstrapped session.
	ErrNotReady = errors.New("session is not ready")

	// ErrControllerClosed is returned once the controller has shut down.
	ErrControllerClosed = errors.New("session controller is closed")
)

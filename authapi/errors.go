package authapi

import "errors"

var (
	// ErrUnauthorized is returned for any 401-equivalent response. Callers
	// treat it as an invalid or expired session token.
	ErrUnauthorized = errors.New("session token invalid or expired")

	ErrEmptyToken     = errors.New("session token is required")
	ErrEmptyAccountID = errors.New("wallet account id is required")
	ErrEmptyLeagueID  = errors.New("league id is required")
)

// APIError is a request the backend accepted but rejected at the application
// level (success:false in the response envelope).
type APIError struct {
	Op      string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "[" + e.Op + "] request rejected by server"
	}
	return "[" + e.Op + "] " + e.Message
}

// IsUnauthorized reports whether err maps to the invalid-or-expired-token
// class, regardless of wrapping.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

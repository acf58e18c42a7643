// Package store defines the durable holder for the single opaque session
// token. The controller is the only writer; everything else observes the
// controller's state instead of reading the store directly.
package store

// Repo persists at most one session token across restarts.
type Repo interface {
	// Get returns the stored token, or "" when no token is stored.
	Get() (string, error)
	// Set replaces the stored token.
	Set(token string) error
	// Clear removes the stored token. Clearing an empty store is not an
	// error.
	Clear() error
}

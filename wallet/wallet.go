// Package wallet defines the contract the session controller expects from a
// wallet-connection provider. The controller only observes connection
// snapshots; it never holds keys or signs anything.
package wallet

import "context"

// Snapshot is the wallet connection state at a single observation. AccountID
// is empty whenever Connected is false.
type Snapshot struct {
	Connected bool
	AccountID string
}

// ConnectionSource reports wallet connection changes and exposes a
// disconnect request.
type ConnectionSource interface {
	// OnStatusChange registers cb to receive every subsequent status change.
	// Registration order is delivery order.
	OnStatusChange(cb func(Snapshot))

	// Disconnect asks the provider to drop the current connection. The
	// resulting disconnected status arrives through OnStatusChange.
	Disconnect(ctx context.Context) error
}

package fakewalletsource

import (
	"context"
	"sync"

	"github.com/michigantokenizers/skl-client/wallet"
)

var _ wallet.ConnectionSource = (*FakeSource)(nil)

// FakeSource is a manually driven wallet connection source for tests.
type FakeSource struct {
	mu        sync.Mutex
	callbacks []func(wallet.Snapshot)
	snapshot  wallet.Snapshot

	DisconnectErr   error
	disconnectCalls int
}

func NewFakeSource() *FakeSource {
	return &FakeSource{}
}

func (f *FakeSource) OnStatusChange(cb func(wallet.Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, cb)
}

// Disconnect records the request and, when not scripted to fail, emits a
// disconnected snapshot like a real provider would.
func (f *FakeSource) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.disconnectCalls++
	err := f.DisconnectErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	f.SetStatus(wallet.Snapshot{})
	return nil
}

// SetStatus injects a status change, invoking registered callbacks in order.
func (f *FakeSource) SetStatus(snap wallet.Snapshot) {
	f.mu.Lock()
	f.snapshot = snap
	cbs := make([]func(wallet.Snapshot), len(f.callbacks))
	copy(cbs, f.callbacks)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(snap)
	}
}

func (f *FakeSource) DisconnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnectCalls
}

package fakestorerepo

import (
	"sync"

	"github.com/michigantokenizers/skl-client/store"
)

var _ store.Repo = (*FakeStore)(nil)

// FakeStore is an in-memory session store for tests. Error hooks let tests
// inject failures for any operation.
type FakeStore struct {
	mu    sync.Mutex
	token string

	GetErr   error
	SetErr   error
	ClearErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// NewFakeStoreWithToken seeds the store, simulating a previous login that
// survived a reload.
func NewFakeStoreWithToken(token string) *FakeStore {
	return &FakeStore{token: token}
}

func (fs *FakeStore) Get() (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.GetErr != nil {
		return "", fs.GetErr
	}
	return fs.token, nil
}

func (fs *FakeStore) Set(token string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.SetErr != nil {
		return fs.SetErr
	}
	fs.token = token
	return nil
}

func (fs *FakeStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.ClearErr != nil {
		return fs.ClearErr
	}
	fs.token = ""
	return nil
}

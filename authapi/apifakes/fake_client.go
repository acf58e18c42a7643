// Package apifakes provides a scriptable in-memory stand-in for the backend
// client, used by controller tests.
package apifakes

import (
	"context"
	"sync"

	"github.com/michigantokenizers/skl-client/authapi"
	"github.com/michigantokenizers/skl-client/session"
)

var _ session.API = (*FakeClient)(nil)

// FakeClient implements the controller's API contract. Each operation can be
// scripted by assigning its Fn hook; unscripted operations return benign
// defaults. Call counts are tracked so tests can assert which paths ran.
type FakeClient struct {
	mu sync.Mutex

	LoginFn               func(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error)
	VerifySessionFn       func(ctx context.Context, token string) (authapi.VerifyResult, error)
	CheckAssociationFn    func(ctx context.Context, token string) (authapi.AssociationStatus, error)
	CompleteAssociationFn func(ctx context.Context, token, externalUsername string) error
	ListLeaguesFn         func(ctx context.Context, token string) (authapi.LeaguesResult, error)
	GetUserRosterIDFn     func(ctx context.Context, token, leagueID string) (string, error)

	loginCalls               int
	verifySessionCalls       int
	checkAssociationCalls    int
	completeAssociationCalls int
	listLeaguesCalls         int
	getUserRosterIDCalls     int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) Login(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.LoginFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, accountID, nonce)
	}
	return authapi.LoginResult{SessionToken: "fake-session-token"}, nil
}

func (f *FakeClient) VerifySession(ctx context.Context, token string) (authapi.VerifyResult, error) {
	f.mu.Lock()
	f.verifySessionCalls++
	fn := f.VerifySessionFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, token)
	}
	return authapi.VerifyResult{WalletAddress: "0xFAKE"}, nil
}

func (f *FakeClient) CheckAssociation(ctx context.Context, token string) (authapi.AssociationStatus, error) {
	f.mu.Lock()
	f.checkAssociationCalls++
	fn := f.CheckAssociationFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, token)
	}
	return authapi.AssociationStatus{}, nil
}

func (f *FakeClient) CompleteAssociation(ctx context.Context, token, externalUsername string) error {
	f.mu.Lock()
	f.completeAssociationCalls++
	fn := f.CompleteAssociationFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, externalUsername)
	}
	return nil
}

func (f *FakeClient) ListLeagues(ctx context.Context, token string) (authapi.LeaguesResult, error) {
	f.mu.Lock()
	f.listLeaguesCalls++
	fn := f.ListLeaguesFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, token)
	}
	return authapi.LeaguesResult{}, nil
}

func (f *FakeClient) GetUserRosterID(ctx context.Context, token, leagueID string) (string, error) {
	f.mu.Lock()
	f.getUserRosterIDCalls++
	fn := f.GetUserRosterIDFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, leagueID)
	}
	return "fake-roster-id", nil
}

func (f *FakeClient) LoginCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls
}

func (f *FakeClient) VerifySessionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifySessionCalls
}

func (f *FakeClient) CheckAssociationCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkAssociationCalls
}

func (f *FakeClient) CompleteAssociationCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeAssociationCalls
}

func (f *FakeClient) ListLeaguesCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listLeaguesCalls
}

func (f *FakeClient) GetUserRosterIDCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getUserRosterIDCalls
}

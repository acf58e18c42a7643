package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michigantokenizers/skl-client/authapi"
	"github.com/michigantokenizers/skl-client/authapi/apifakes"
	"github.com/michigantokenizers/skl-client/routeguard"
	"github.com/michigantokenizers/skl-client/session"
	fakestorerepo "github.com/michigantokenizers/skl-client/store/repofakes"
	"github.com/michigantokenizers/skl-client/wallet"
	fakewalletsource "github.com/michigantokenizers/skl-client/wallet/walletfakes"
)

const (
	testAccount  = "0xABC"
	testNonce    = "nonce-1"
	testTokenNew = "T1"
	testTokenOld = "T2"
)

var (
	leagueOne = authapi.League{ID: "L1", Name: "Michigan Keeper"}
	leagueTwo = authapi.League{ID: "L2", Name: "Dynasty West"}
)

// testFixture holds the controller and its fake collaborators.
type testFixture struct {
	api        *apifakes.FakeClient
	store      *fakestorerepo.FakeStore
	wallet     *fakewalletsource.FakeSource
	controller *session.Controller
}

func setupTestFixture(t *testing.T, st *fakestorerepo.FakeStore) *testFixture {
	t.Helper()

	api := apifakes.NewFakeClient()
	src := fakewalletsource.NewFakeSource()

	controller, err := session.New(context.Background(), api, st, src,
		session.WithNonceFunc(func() string { return testNonce }),
	)
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	return &testFixture{
		api:        api,
		store:      st,
		wallet:     src,
		controller: controller,
	}
}

func (f *testFixture) connectWallet(account string) {
	f.wallet.SetStatus(wallet.Snapshot{Connected: true, AccountID: account})
}

func (f *testFixture) disconnectWallet() {
	f.wallet.SetStatus(wallet.Snapshot{})
}

func (f *testFixture) waitForPhase(t *testing.T, phase session.Phase) session.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().Phase == phase
	}, 2*time.Second, 10*time.Millisecond, "never reached phase %s", phase)
	snap := f.controller.Snapshot()
	assertStateInvariants(t, snap)
	return snap
}

// assertStateInvariants checks the properties that must hold in every
// reachable state.
func assertStateInvariants(t *testing.T, snap session.Snapshot) {
	t.Helper()
	if !snap.HasToken() {
		assert.Empty(t, snap.Leagues, "no token but leagues populated")
		assert.Empty(t, snap.SelectedLeagueID, "no token but a league is selected")
		assert.Equal(t, session.AssociationUnknown, snap.Association, "no token but association is settled")
	}
	if snap.SelectedLeagueID != "" {
		_, ok := snap.SelectedLeague()
		assert.True(t, ok, "selected league %q is not in the league list", snap.SelectedLeagueID)
	}
	if snap.Phase == session.PhaseReady {
		assert.True(t, snap.HasToken(), "ready without a token")
		assert.NotEqual(t, session.AssociationUnknown, snap.Association, "ready with unknown association")
	}
}

// readyFixture boots a session from a stored token all the way to Ready with
// two leagues.
func readyFixture(t *testing.T) *testFixture {
	t.Helper()

	f := setupTestFixture(t, fakestorerepo.NewFakeStoreWithToken(testTokenOld))
	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		return authapi.LeaguesResult{Leagues: []authapi.League{leagueOne, leagueTwo}}, nil
	}
	f.controller.Start()
	f.waitForPhase(t, session.PhaseReady)
	return f
}

func TestFreshLoginNewUserRequiresAssociation(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStore())

	var gotAccount, gotNonce string
	f.api.LoginFn = func(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error) {
		gotAccount, gotNonce = accountID, nonce
		return authapi.LoginResult{SessionToken: testTokenNew, IsNewUser: true}, nil
	}

	f.controller.Start()
	f.connectWallet(testAccount)

	snap := f.waitForPhase(t, session.PhaseAssociationRequired)
	assert.Equal(t, testTokenNew, snap.Token)
	assert.Empty(t, snap.Leagues)
	assert.Equal(t, session.AssociationRequired, snap.Association)
	assert.Equal(t, testAccount, gotAccount)
	assert.Equal(t, testNonce, gotNonce)

	stored, err := f.store.Get()
	require.NoError(t, err)
	assert.Equal(t, testTokenNew, stored)
}

func TestReloadVerificationReachesReady(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStoreWithToken(testTokenOld))
	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		require.Equal(t, testTokenOld, token)
		return authapi.LeaguesResult{Leagues: []authapi.League{leagueOne, leagueTwo}}, nil
	}

	f.controller.Start()

	snap := f.waitForPhase(t, session.PhaseReady)
	assert.Equal(t, testTokenOld, snap.Token)
	assert.Equal(t, session.AssociationLinked, snap.Association)
	require.Len(t, snap.Leagues, 2)
	assert.Equal(t, leagueOne.ID, snap.SelectedLeagueID)
	assert.Zero(t, f.api.LoginCalls())
}

func TestReloadVerificationStoredTokenRejected(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStoreWithToken(testTokenOld))
	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		return authapi.LeaguesResult{}, authapi.ErrUnauthorized
	}

	f.controller.Start()

	snap := f.waitForPhase(t, session.PhaseLoggedOut)
	assert.False(t, snap.HasToken())

	stored, err := f.store.Get()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestReloadVerificationPartialFailureFailsSafe(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStoreWithToken(testTokenOld))
	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		return authapi.LeaguesResult{Leagues: []authapi.League{leagueOne}}, nil
	}
	f.api.CheckAssociationFn = func(ctx context.Context, token string) (authapi.AssociationStatus, error) {
		return authapi.AssociationStatus{}, assert.AnError
	}

	f.controller.Start()

	snap := f.waitForPhase(t, session.PhaseAssociationRequired)
	assert.Equal(t, testTokenOld, snap.Token, "non-401 failure must not drop the token")
	assert.Equal(t, session.AssociationRequired, snap.Association)
	require.Len(t, snap.Leagues, 1, "league data fetched before the failure is kept")
	assert.NotEmpty(t, snap.LastError)
}

func TestLeagueRefreshUnauthorizedForcesLogout(t *testing.T) {
	f := readyFixture(t)

	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		return authapi.LeaguesResult{}, authapi.ErrUnauthorized
	}
	f.controller.RefreshLeagues()

	snap := f.waitForPhase(t, session.PhaseLoggedOut)
	assert.False(t, snap.HasToken())
	assert.Empty(t, snap.Leagues)
	assert.Equal(t, routeguard.RedirectToRoot, routeguard.Decide(snap, routeguard.RouteLeague))

	stored, err := f.store.Get()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSelectLeague(t *testing.T) {
	f := readyFixture(t)

	require.NoError(t, f.controller.SelectLeague(leagueTwo.ID))
	snap := f.controller.Snapshot()
	assert.Equal(t, leagueTwo.ID, snap.SelectedLeagueID)
	assert.Equal(t, session.PhaseReady, snap.Phase)

	err := f.controller.SelectLeague("not-a-league")
	require.ErrorIs(t, err, session.ErrInvalidSelection)
	snap = f.controller.Snapshot()
	assert.Equal(t, leagueTwo.ID, snap.SelectedLeagueID, "rejected selection must not change state")
	assertStateInvariants(t, snap)
}

func TestRefreshPreservesManualSelection(t *testing.T) {
	f := readyFixture(t)
	require.NoError(t, f.controller.SelectLeague(leagueTwo.ID))

	var mu sync.Mutex
	leagues := []authapi.League{leagueOne, leagueTwo}
	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		mu.Lock()
		defer mu.Unlock()
		out := make([]authapi.League, len(leagues))
		copy(out, leagues)
		return authapi.LeaguesResult{Leagues: out}, nil
	}

	// Same list again: the manual selection survives.
	f.controller.RefreshLeagues()
	require.Eventually(t, func() bool {
		return f.api.ListLeaguesCalls() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().SelectedLeagueID == leagueTwo.ID
	}, 2*time.Second, 10*time.Millisecond)

	// Selection gone from the fresh list: fall back to the first league.
	mu.Lock()
	leagues = []authapi.League{leagueOne}
	mu.Unlock()
	f.controller.RefreshLeagues()
	require.Eventually(t, func() bool {
		snap := f.controller.Snapshot()
		return snap.SelectedLeagueID == leagueOne.ID && len(snap.Leagues) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Zero leagues is a valid Ready state with no selection.
	mu.Lock()
	leagues = nil
	mu.Unlock()
	f.controller.RefreshLeagues()
	require.Eventually(t, func() bool {
		snap := f.controller.Snapshot()
		return len(snap.Leagues) == 0 && snap.SelectedLeagueID == ""
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, session.PhaseReady, f.controller.Snapshot().Phase)
}

func TestWalletDisconnectDuringVerification(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStoreWithToken(testTokenOld))

	gate := make(chan struct{})
	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		<-gate
		return authapi.LeaguesResult{Leagues: []authapi.League{leagueOne}}, nil
	}

	f.controller.Start()
	f.connectWallet(testAccount)
	f.waitForPhase(t, session.PhaseVerifying)

	f.disconnectWallet()
	f.waitForPhase(t, session.PhaseLoggedOut)

	// Deliver the stale verification response; it must be inert.
	close(gate)
	assert.Never(t, func() bool {
		snap := f.controller.Snapshot()
		return snap.HasToken() || len(snap.Leagues) > 0 || snap.Phase != session.PhaseLoggedOut
	}, 500*time.Millisecond, 20*time.Millisecond, "stale verification response resurrected session state")
}

func TestStaleLoginResponseAfterLogout(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStore())

	gate := make(chan struct{})
	f.api.LoginFn = func(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error) {
		<-gate
		return authapi.LoginResult{SessionToken: testTokenNew}, nil
	}

	f.controller.Start()
	f.connectWallet(testAccount)
	f.waitForPhase(t, session.PhaseLoggingIn)

	f.disconnectWallet()
	f.waitForPhase(t, session.PhaseLoggedOut)

	close(gate)
	assert.Never(t, func() bool {
		return f.controller.Snapshot().HasToken()
	}, 500*time.Millisecond, 20*time.Millisecond, "stale login response persisted a token")

	stored, err := f.store.Get()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestDualTriggerResolvesToOneBootstrapPath(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStoreWithToken(testTokenOld))
	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		return authapi.LeaguesResult{Leagues: []authapi.League{leagueOne}}, nil
	}

	// Both triggers land before the loop settles: reload verification and a
	// wallet connection that would otherwise start a fresh login.
	f.controller.Start()
	f.connectWallet(testAccount)

	snap := f.waitForPhase(t, session.PhaseReady)
	assert.Equal(t, testTokenOld, snap.Token)
	assert.Zero(t, f.api.LoginCalls(), "fresh login must not run while a stored token is being verified")
	assert.Equal(t, 1, f.api.CheckAssociationCalls())
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStore())
	f.api.LoginFn = func(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error) {
		return authapi.LoginResult{SessionToken: testTokenNew}, nil
	}
	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		return authapi.LeaguesResult{Leagues: []authapi.League{leagueOne}}, nil
	}

	f.controller.Start()
	f.connectWallet(testAccount)
	f.waitForPhase(t, session.PhaseReady)

	f.controller.Logout()
	first := f.controller.Snapshot()
	require.Eventually(t, func() bool {
		return !f.controller.Snapshot().WalletConnected
	}, 2*time.Second, 10*time.Millisecond, "disconnect request never reflected in state")
	f.controller.Logout()
	second := f.controller.Snapshot()

	for _, snap := range []session.Snapshot{first, second} {
		assert.Equal(t, session.PhaseLoggedOut, snap.Phase)
		assert.False(t, snap.HasToken())
		assert.Empty(t, snap.Leagues)
		assertStateInvariants(t, snap)
	}

	stored, err := f.store.Get()
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.Eventually(t, func() bool {
		return f.wallet.DisconnectCalls() == 1
	}, 2*time.Second, 10*time.Millisecond, "exactly one wallet disconnect request expected")
}

func TestLogoutSurvivesWalletDisconnectFailure(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStore())
	f.api.LoginFn = func(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error) {
		return authapi.LoginResult{SessionToken: testTokenNew}, nil
	}
	f.controller.Start()
	f.connectWallet(testAccount)
	f.waitForPhase(t, session.PhaseReady)

	f.wallet.DisconnectErr = assert.AnError
	f.controller.Logout()

	snap := f.controller.Snapshot()
	assert.Equal(t, session.PhaseLoggedOut, snap.Phase)
	assert.False(t, snap.HasToken(), "local teardown must not be blocked by the wallet provider")
}

func TestLoginRejectedAllowsRetry(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStore())
	f.api.LoginFn = func(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error) {
		return authapi.LoginResult{}, &authapi.APIError{Op: "Client.Login", Message: "signature check failed"}
	}

	f.controller.Start()
	f.connectWallet(testAccount)

	snap := f.waitForPhase(t, session.PhaseLoginFailed)
	assert.False(t, snap.HasToken())
	assert.True(t, snap.WalletConnected, "wallet stays connected after a rejected login")
	assert.NotEmpty(t, snap.LastError)
	assert.Equal(t, routeguard.AllowRoot, routeguard.Decide(snap, routeguard.RouteRoot))

	stored, err := f.store.Get()
	require.NoError(t, err)
	assert.Empty(t, stored, "no token is ever persisted on a rejected login")

	f.api.LoginFn = func(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error) {
		return authapi.LoginResult{SessionToken: testTokenNew}, nil
	}
	require.NoError(t, f.controller.RetryLogin())
	f.waitForPhase(t, session.PhaseReady)
}

func TestRetryLoginRequiresFailedState(t *testing.T) {
	f := readyFixture(t)
	require.ErrorIs(t, f.controller.RetryLogin(), session.ErrNotRetryable)
}

func TestCompleteAssociation(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStore())
	f.api.LoginFn = func(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error) {
		return authapi.LoginResult{SessionToken: testTokenNew, IsNewUser: true}, nil
	}
	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		return authapi.LeaguesResult{Leagues: []authapi.League{leagueOne}}, nil
	}

	f.controller.Start()
	f.connectWallet(testAccount)
	f.waitForPhase(t, session.PhaseAssociationRequired)

	require.NoError(t, f.controller.CompleteAssociation("mt-sleeper"))
	snap := f.waitForPhase(t, session.PhaseReady)
	assert.Equal(t, session.AssociationLinked, snap.Association)

	require.Eventually(t, func() bool {
		return len(f.controller.Snapshot().Leagues) == 1
	}, 2*time.Second, 10*time.Millisecond, "association completion refreshes the league list")
	assert.Equal(t, 1, f.api.CompleteAssociationCalls())
}

func TestCompleteAssociationFailureStaysPending(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStore())
	f.api.LoginFn = func(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error) {
		return authapi.LoginResult{SessionToken: testTokenNew, IsNewUser: true}, nil
	}
	f.api.CompleteAssociationFn = func(ctx context.Context, token, externalUsername string) error {
		return &authapi.APIError{Op: "Client.CompleteAssociation", Message: "unknown username"}
	}

	f.controller.Start()
	f.connectWallet(testAccount)
	f.waitForPhase(t, session.PhaseAssociationRequired)

	err := f.controller.CompleteAssociation("nope")
	require.Error(t, err)

	snap := f.controller.Snapshot()
	assert.Equal(t, session.PhaseAssociationRequired, snap.Phase)
	assert.Equal(t, testTokenNew, snap.Token, "association failure does not affect session validity")
}

func TestCompleteAssociationOutsidePendingPhase(t *testing.T) {
	f := readyFixture(t)
	require.ErrorIs(t, f.controller.CompleteAssociation("whoever"), session.ErrNotAwaitingAssociation)
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	f := setupTestFixture(t, fakestorerepo.NewFakeStoreWithToken(testTokenOld))
	f.api.ListLeaguesFn = func(ctx context.Context, token string) (authapi.LeaguesResult, error) {
		return authapi.LeaguesResult{Leagues: []authapi.League{leagueOne}}, nil
	}

	snapshots, unsubscribe := f.controller.Subscribe()
	defer unsubscribe()

	f.controller.Start()

	lastVersion := -1
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snapshots:
			require.Greater(t, snap.Version, lastVersion, "versions must be strictly increasing")
			lastVersion = snap.Version
			assertStateInvariants(t, snap)
			if snap.Phase == session.PhaseReady {
				return
			}
		case <-deadline:
			t.Fatal("never observed a Ready snapshot")
		}
	}
}

func TestRosterID(t *testing.T) {
	f := readyFixture(t)

	f.api.GetUserRosterIDFn = func(ctx context.Context, token, leagueID string) (string, error) {
		require.Equal(t, testTokenOld, token)
		require.Equal(t, leagueOne.ID, leagueID)
		return "R77", nil
	}

	rosterID, err := f.controller.RosterID(context.Background(), leagueOne.ID)
	require.NoError(t, err)
	assert.Equal(t, "R77", rosterID)

	_, err = f.controller.RosterID(context.Background(), "not-a-league")
	require.ErrorIs(t, err, session.ErrInvalidSelection)

	f.controller.Logout()
	_, err = f.controller.RosterID(context.Background(), leagueOne.ID)
	require.ErrorIs(t, err, session.ErrNotReady)
}

func TestNewValidatesDependencies(t *testing.T) {
	api := apifakes.NewFakeClient()
	st := fakestorerepo.NewFakeStore()
	src := fakewalletsource.NewFakeSource()

	_, err := session.New(context.Background(), nil, st, src)
	require.Error(t, err)
	_, err = session.New(context.Background(), api, nil, src)
	require.Error(t, err)
	_, err = session.New(context.Background(), api, st, nil)
	require.Error(t, err)
}

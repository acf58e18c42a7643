package session

import (
	"github.com/michigantokenizers/skl-client/authapi"
	"github.com/michigantokenizers/skl-client/wallet"
)

// msg is the sealed union of everything the controller loop can receive.
// Every external trigger (wallet status, bootstrap, API completion, user
// action) arrives as one of these, so transitions are serialized by
// construction.
type msg interface{ isSessionMsg() }

type startMsg struct{}

type walletStatusMsg struct {
	snap wallet.Snapshot
}

type logoutMsg struct {
	reply chan struct{}
}

type selectLeagueMsg struct {
	leagueID string
	reply    chan error
}

type refreshLeaguesMsg struct{}

type retryLoginMsg struct {
	reply chan error
}

type completeAssociationMsg struct {
	externalUsername string
	reply            chan error
}

type snapshotMsg struct {
	reply chan Snapshot
}

type subscribeMsg struct {
	ch    chan Snapshot
	reply chan int
}

type unsubscribeMsg struct {
	id int
}

// bootstrapDoneMsg carries the joined results of the concurrent league
// listing and association check issued while verifying a stored token.
type bootstrapDoneMsg struct {
	epoch      uint64
	leagues    authapi.LeaguesResult
	leaguesErr error
	assoc      authapi.AssociationStatus
	assocErr   error
}

type loginDoneMsg struct {
	epoch     uint64
	accountID string
	result    authapi.LoginResult
	err       error
}

type leaguesDoneMsg struct {
	epoch  uint64
	result authapi.LeaguesResult
	err    error
}

type associationDoneMsg struct {
	epoch uint64
	err   error
	reply chan error
}

func (startMsg) isSessionMsg()               {}
func (walletStatusMsg) isSessionMsg()        {}
func (logoutMsg) isSessionMsg()              {}
func (selectLeagueMsg) isSessionMsg()        {}
func (refreshLeaguesMsg) isSessionMsg()      {}
func (retryLoginMsg) isSessionMsg()          {}
func (completeAssociationMsg) isSessionMsg() {}
func (snapshotMsg) isSessionMsg()            {}
func (subscribeMsg) isSessionMsg()           {}
func (unsubscribeMsg) isSessionMsg()         {}
func (bootstrapDoneMsg) isSessionMsg()       {}
func (loginDoneMsg) isSessionMsg()           {}
func (leaguesDoneMsg) isSessionMsg()         {}
func (associationDoneMsg) isSessionMsg()     {}

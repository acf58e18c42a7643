package session

import "github.com/michigantokenizers/skl-client/authapi"

// Phase is the bootstrap phase of the session lifecycle.
type Phase string

const (
	PhaseLoggedOut           Phase = "logged_out"
	PhaseVerifying           Phase = "verifying_existing_token"
	PhaseLoggingIn           Phase = "logging_in"
	PhaseAssociationRequired Phase = "association_required"
	PhaseReady               Phase = "ready"
	PhaseLoginFailed         Phase = "login_failed"
)

// Association is the tri-state link status between the wallet identity and
// the external fantasy-platform account. It is Unknown until an
// association check or a login response settles it.
type Association int

const (
	AssociationUnknown Association = iota
	AssociationRequired
	AssociationLinked
)

func (a Association) String() string {
	switch a {
	case AssociationRequired:
		return "required"
	case AssociationLinked:
		return "linked"
	default:
		return "unknown"
	}
}

// League is a league summary the session has access to. Listing order is the
// server's order.
type League struct {
	ID   string
	Name string
}

// Snapshot is an immutable copy of the controller's state, safe to read from
// any goroutine. Version increases by one on every state change.
type Snapshot struct {
	Version          int
	Token            string
	WalletConnected  bool
	WalletAccountID  string
	Phase            Phase
	Association      Association
	Leagues          []League
	SelectedLeagueID string
	User             *authapi.UserInfo

	// LastError carries the most recent surfaced failure (login rejection or
	// a retryable network error). Cleared on the next successful transition.
	LastError string
}

// HasToken reports whether a login has succeeded and not been invalidated.
func (s Snapshot) HasToken() bool { return s.Token != "" }

// SelectedLeague returns the selected league summary, if a selection exists.
func (s Snapshot) SelectedLeague() (League, bool) {
	for _, l := range s.Leagues {
		if l.ID == s.SelectedLeagueID {
			return l, true
		}
	}
	return League{}, false
}

// state is the controller-owned mutable form of the session. Only the
// controller loop touches it.
type state struct {
	token            string
	walletConnected  bool
	walletAccountID  string
	phase            Phase
	association      Association
	leagues          []League
	selectedLeagueID string
	user             *authapi.UserInfo
	lastError        string
}

func newState() state {
	return state{phase: PhaseLoggedOut}
}

func (s *state) snapshot(version int) Snapshot {
	snap := Snapshot{
		Version:          version,
		Token:            s.token,
		WalletConnected:  s.walletConnected,
		WalletAccountID:  s.walletAccountID,
		Phase:            s.phase,
		Association:      s.association,
		SelectedLeagueID: s.selectedLeagueID,
		LastError:        s.lastError,
	}
	if len(s.leagues) > 0 {
		snap.Leagues = make([]League, len(s.leagues))
		copy(snap.Leagues, s.leagues)
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// setLeagues replaces the league list while preserving a still-valid manual
// selection. A missing selection falls back to the first league; an empty
// list clears it.
func (s *state) setLeagues(leagues []League) {
	s.leagues = leagues
	if s.selectedLeagueID != "" && s.hasLeague(s.selectedLeagueID) {
		return
	}
	if len(leagues) > 0 {
		s.selectedLeagueID = leagues[0].ID
		return
	}
	s.selectedLeagueID = ""
}

func (s *state) hasLeague(id string) bool {
	for _, l := range s.leagues {
		if l.ID == id {
			return true
		}
	}
	return false
}

// reset returns the state to the logged-out baseline. Wallet connection
// status is an observation of an external source and survives the reset.
func (s *state) reset() {
	s.token = ""
	s.phase = PhaseLoggedOut
	s.association = AssociationUnknown
	s.leagues = nil
	s.selectedLeagueID = ""
	s.user = nil
	s.lastError = ""
}

func leaguesFromAPI(in []authapi.League) []League {
	if len(in) == 0 {
		return nil
	}
	out := make([]League, len(in))
	for i, l := range in {
		out[i] = League{ID: l.ID, Name: l.Name}
	}
	return out
}

// Package session owns the client's authoritative session state. A single
// controller goroutine consumes every trigger (wallet status changes, the
// app-start bootstrap, API completions, user actions) as messages, so
// overlapping triggers cannot race each other's state writes.
//
// In-flight API calls are tagged with the session epoch at issue time. Any
// forced logout increments the epoch, which makes the eventual responses of
// preempted calls inert instead of resurrecting stale state.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/michigantokenizers/skl-client/authapi"
	"github.com/michigantokenizers/skl-client/store"
	"github.com/michigantokenizers/skl-client/wallet"
)

const (
	inboxSize             = 64
	defaultObserverBuffer = 8
)

// Controller is the session lifecycle state machine. Create with New, then
// call Start once the application is ready to bootstrap.
type Controller struct {
	api      API
	sessions store.Repo
	wallet   wallet.ConnectionSource
	log      zerolog.Logger
	newNonce func() string

	inbox  chan msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Loop-owned fields. Nothing below is touched outside the loop
	// goroutine.
	st           state
	epoch        uint64
	version      int
	observers    map[int]chan Snapshot
	nextObserver int
	started      bool
}

// ControllerOption modifies a Controller at construction time.
type ControllerOption func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.log = l
	}
}

// WithNonceFunc sets the login nonce generator (primarily for testing).
func WithNonceFunc(fn func() string) ControllerOption {
	return func(c *Controller) {
		c.newNonce = fn
	}
}

// New creates a controller and starts its loop. The controller does nothing
// until Start is called.
func New(parent context.Context, api API, sessions store.Repo, source wallet.ConnectionSource, options ...ControllerOption) (*Controller, error) {
	if api == nil {
		return nil, errors.New("[session.New] api client is required")
	}
	if sessions == nil {
		return nil, errors.New("[session.New] session store is required")
	}
	if source == nil {
		return nil, errors.New("[session.New] wallet connection source is required")
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		api:       api,
		sessions:  sessions,
		wallet:    source,
		log:       zerolog.Nop(),
		newNonce:  uuid.NewString,
		inbox:     make(chan msg, inboxSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		st:        newState(),
		observers: make(map[int]chan Snapshot),
	}

	for _, opt := range options {
		opt(c)
	}

	go c.loop()
	return c, nil
}

// Start begins observing the wallet source and, when a token survived in the
// store, kicks off reload verification. Calling Start more than once has no
// effect.
func (c *Controller) Start() {
	c.post(startMsg{})
}

// Snapshot returns a copy of the current session state. After Close it
// returns the zero Snapshot.
func (c *Controller) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !c.post(snapshotMsg{reply: reply}) {
		return Snapshot{}
	}
	select {
	case snap := <-reply:
		return snap
	case <-c.ctx.Done():
		return Snapshot{}
	}
}

// Logout tears the session down: token cleared everywhere, league context
// dropped, and the wallet asked to disconnect if it is still connected.
// Logout is idempotent and returns once local state is reset.
func (c *Controller) Logout() {
	reply := make(chan struct{}, 1)
	if !c.post(logoutMsg{reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-c.ctx.Done():
	}
}

// SelectLeague switches the viewed league. The id must be a member of the
// current league list; otherwise ErrInvalidSelection is returned and nothing
// changes.
func (c *Controller) SelectLeague(leagueID string) error {
	reply := make(chan error, 1)
	if !c.post(selectLeagueMsg{leagueID: leagueID, reply: reply}) {
		return ErrControllerClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return ErrControllerClosed
	}
}

// RefreshLeagues re-fetches the league list for the current session. A
// manual selection survives the refresh when still present in the new list.
func (c *Controller) RefreshLeagues() {
	c.post(refreshLeaguesMsg{})
}

// RetryLogin re-attempts a rejected login without requiring the wallet to
// reconnect. It is only valid after a failed login while the wallet is still
// connected.
func (c *Controller) RetryLogin() error {
	reply := make(chan error, 1)
	if !c.post(retryLoginMsg{reply: reply}) {
		return ErrControllerClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return ErrControllerClosed
	}
}

// CompleteAssociation links the session to an external fantasy-platform
// username and, on success, moves the session to Ready with a fresh league
// list. A failure leaves the session awaiting association.
func (c *Controller) CompleteAssociation(externalUsername string) error {
	reply := make(chan error, 1)
	if !c.post(completeAssociationMsg{externalUsername: externalUsername, reply: reply}) {
		return ErrControllerClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return ErrControllerClosed
	}
}

// Subscribe registers an observer for state snapshots. The current snapshot
// is delivered immediately, then one per state change. Observers that stop
// draining are dropped and their channel closed. The returned func
// unsubscribes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, defaultObserverBuffer)
	reply := make(chan int, 1)
	if !c.post(subscribeMsg{ch: ch, reply: reply}) {
		close(ch)
		return ch, func() {}
	}
	select {
	case id := <-reply:
		return ch, func() { c.post(unsubscribeMsg{id: id}) }
	case <-c.ctx.Done():
		return ch, func() {}
	}
}

// RosterID resolves the caller's roster within a league, for "my team"
// navigation. It requires a Ready session and a league in the current list;
// it does not feed the state machine.
func (c *Controller) RosterID(ctx context.Context, leagueID string) (string, error) {
	snap := c.Snapshot()
	if snap.Phase != PhaseReady {
		return "", ErrNotReady
	}
	found := false
	for _, l := range snap.Leagues {
		if l.ID == leagueID {
			found = true
			break
		}
	}
	if !found {
		return "", ErrInvalidSelection
	}
	return c.api.GetUserRosterID(ctx, snap.Token, leagueID)
}

// Close shuts the controller down and closes all observer channels.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}

func (c *Controller) post(m msg) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch m := m.(type) {
			case startMsg:
				c.handleStart()
			case walletStatusMsg:
				c.handleWalletStatus(m.snap)
			case logoutMsg:
				c.handleLogout(m)
			case selectLeagueMsg:
				c.handleSelectLeague(m)
			case refreshLeaguesMsg:
				c.handleRefreshLeagues()
			case retryLoginMsg:
				c.handleRetryLogin(m)
			case completeAssociationMsg:
				c.handleCompleteAssociation(m)
			case snapshotMsg:
				m.reply <- c.st.snapshot(c.version)
			case subscribeMsg:
				c.handleSubscribe(m)
			case unsubscribeMsg:
				if ch, ok := c.observers[m.id]; ok {
					close(ch)
					delete(c.observers, m.id)
				}
			case bootstrapDoneMsg:
				c.handleBootstrapDone(m)
			case loginDoneMsg:
				c.handleLoginDone(m)
			case leaguesDoneMsg:
				c.handleLeaguesDone(m)
			case associationDoneMsg:
				c.handleAssociationDone(m)
			}
		}
	}
}

func (c *Controller) shutdown() {
	for id, ch := range c.observers {
		close(ch)
		delete(c.observers, id)
	}
}

// publish bumps the state version and fans the new snapshot out to
// observers. Slow observers are dropped, lobby-style, rather than blocking
// the loop.
func (c *Controller) publish() {
	c.version++
	snap := c.st.snapshot(c.version)
	for id, ch := range c.observers {
		select {
		case ch <- snap:
		default:
			close(ch)
			delete(c.observers, id)
		}
	}
}

func (c *Controller) setPhase(p Phase) {
	if c.st.phase == p {
		return
	}
	c.log.Debug().
		Str("from", string(c.st.phase)).
		Str("to", string(p)).
		Uint64("epoch", c.epoch).
		Msg("session phase change")
	c.st.phase = p
}

func (c *Controller) handleStart() {
	if c.started {
		return
	}
	c.started = true

	c.wallet.OnStatusChange(func(snap wallet.Snapshot) {
		c.post(walletStatusMsg{snap: snap})
	})

	token, err := c.sessions.Get()
	if err != nil {
		c.log.Warn().Err(err).Msg("session store unreadable, starting logged out")
		token = ""
	}
	if token == "" {
		c.publish()
		return
	}

	c.st.token = token
	c.beginVerification(token)
}

// beginVerification runs the reload bootstrap: league listing and
// association check issued concurrently under the same token.
func (c *Controller) beginVerification(token string) {
	c.setPhase(PhaseVerifying)
	c.st.lastError = ""
	c.publish()

	ep := c.epoch
	go func() {
		var (
			lr   authapi.LeaguesResult
			lerr error
			ar   authapi.AssociationStatus
			aerr error
		)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			lr, lerr = c.api.ListLeagues(c.ctx, token)
		}()
		go func() {
			defer wg.Done()
			ar, aerr = c.api.CheckAssociation(c.ctx, token)
		}()
		wg.Wait()
		c.post(bootstrapDoneMsg{epoch: ep, leagues: lr, leaguesErr: lerr, assoc: ar, assocErr: aerr})
	}()
}

func (c *Controller) handleWalletStatus(snap wallet.Snapshot) {
	changed := c.st.walletConnected != snap.Connected || c.st.walletAccountID != snap.AccountID
	c.st.walletConnected = snap.Connected
	c.st.walletAccountID = snap.AccountID

	if !snap.Connected {
		// Disconnect is an interrupt: it preempts any bootstrap in flight,
		// not just an established session.
		if c.st.token != "" || c.st.phase == PhaseVerifying || c.st.phase == PhaseLoggingIn {
			c.forceLogout("wallet disconnected")
			return
		}
		if changed {
			c.publish()
		}
		return
	}

	if c.st.token == "" && (c.st.phase == PhaseLoggedOut || c.st.phase == PhaseLoginFailed) {
		stored, err := c.sessions.Get()
		if err != nil {
			c.log.Warn().Err(err).Msg("session store unreadable during wallet connect")
			stored = ""
		}
		if stored != "" {
			// A stored token means the reload path owns this bootstrap; a
			// fresh login here would race it for the same session.
			c.log.Debug().Msg("stored token present, leaving bootstrap to reload verification")
			if changed {
				c.publish()
			}
			return
		}
		c.beginLogin(snap.AccountID)
		return
	}

	if changed {
		c.publish()
	}
}

func (c *Controller) beginLogin(accountID string) {
	c.setPhase(PhaseLoggingIn)
	c.st.lastError = ""
	c.publish()

	ep := c.epoch
	nonce := c.newNonce()
	go func() {
		result, err := c.api.Login(c.ctx, accountID, nonce)
		c.post(loginDoneMsg{epoch: ep, accountID: accountID, result: result, err: err})
	}()
}

func (c *Controller) handleLoginDone(m loginDoneMsg) {
	if m.epoch != c.epoch {
		c.log.Debug().Uint64("issued", m.epoch).Uint64("current", c.epoch).Msg("dropping stale login response")
		return
	}
	if c.st.phase != PhaseLoggingIn {
		return
	}

	if m.err != nil {
		c.log.Warn().Err(m.err).Str("account", m.accountID).Msg("login rejected")
		c.setPhase(PhaseLoginFailed)
		c.st.lastError = m.err.Error()
		c.publish()
		return
	}

	c.st.token = m.result.SessionToken
	if err := c.sessions.Set(m.result.SessionToken); err != nil {
		// Memory state stays authoritative; the session just won't survive
		// a reload.
		c.log.Warn().Err(err).Msg("failed to persist session token")
	}

	if m.result.IsNewUser {
		c.st.association = AssociationRequired
		c.setPhase(PhaseAssociationRequired)
		c.publish()
		return
	}

	c.st.association = AssociationLinked
	c.publish()
	c.beginLeaguesFetch()
}

func (c *Controller) beginLeaguesFetch() {
	ep := c.epoch
	token := c.st.token
	go func() {
		result, err := c.api.ListLeagues(c.ctx, token)
		c.post(leaguesDoneMsg{epoch: ep, result: result, err: err})
	}()
}

func (c *Controller) handleBootstrapDone(m bootstrapDoneMsg) {
	if m.epoch != c.epoch {
		c.log.Debug().Uint64("issued", m.epoch).Uint64("current", c.epoch).Msg("dropping stale verification response")
		return
	}
	if c.st.phase != PhaseVerifying {
		return
	}

	if authapi.IsUnauthorized(m.leaguesErr) || authapi.IsUnauthorized(m.assocErr) {
		c.forceLogout("stored token rejected")
		return
	}

	if m.leaguesErr != nil || m.assocErr != nil {
		// Conservative fallback: a half-verified session is treated as
		// needing re-association rather than granted access.
		firstErr := m.leaguesErr
		if firstErr == nil {
			firstErr = m.assocErr
		}
		c.log.Warn().Err(firstErr).Msg("reload verification incomplete, requiring association")
		if m.leaguesErr == nil {
			c.st.setLeagues(leaguesFromAPI(m.leagues.Leagues))
			c.st.user = m.leagues.UserInfo
		}
		c.st.association = AssociationRequired
		c.setPhase(PhaseAssociationRequired)
		c.st.lastError = firstErr.Error()
		c.publish()
		return
	}

	c.st.setLeagues(leaguesFromAPI(m.leagues.Leagues))
	c.st.user = m.leagues.UserInfo
	c.st.lastError = ""
	if m.assoc.NeedsAssociation {
		c.st.association = AssociationRequired
		c.setPhase(PhaseAssociationRequired)
	} else {
		c.st.association = AssociationLinked
		c.setPhase(PhaseReady)
	}
	c.publish()
}

func (c *Controller) handleLeaguesDone(m leaguesDoneMsg) {
	if m.epoch != c.epoch {
		c.log.Debug().Uint64("issued", m.epoch).Uint64("current", c.epoch).Msg("dropping stale league response")
		return
	}
	if c.st.token == "" {
		return
	}

	if authapi.IsUnauthorized(m.err) {
		c.forceLogout("session expired during league fetch")
		return
	}
	if m.err != nil {
		c.log.Warn().Err(m.err).Msg("league fetch failed")
		c.st.lastError = m.err.Error()
		c.publish()
		return
	}

	c.st.setLeagues(leaguesFromAPI(m.result.Leagues))
	if m.result.UserInfo != nil {
		c.st.user = m.result.UserInfo
	}
	c.st.lastError = ""
	if c.st.phase == PhaseLoggingIn {
		c.setPhase(PhaseReady)
	}
	c.publish()
}

func (c *Controller) handleLogout(m logoutMsg) {
	walletConnected := c.st.walletConnected
	c.forceLogout("explicit logout")
	if walletConnected {
		go func() {
			if err := c.wallet.Disconnect(c.ctx); err != nil {
				c.log.Warn().Err(err).Msg("wallet disconnect request failed")
			}
		}()
	}
	m.reply <- struct{}{}
}

// forceLogout is the shared teardown: epoch bump makes in-flight responses
// inert, then token and league context are cleared everywhere.
func (c *Controller) forceLogout(reason string) {
	c.epoch++
	if err := c.sessions.Clear(); err != nil {
		c.log.Warn().Err(err).Msg("failed to clear session store")
	}
	c.log.Info().Str("reason", reason).Uint64("epoch", c.epoch).Msg("session logged out")
	c.st.reset()
	c.publish()
}

func (c *Controller) handleSelectLeague(m selectLeagueMsg) {
	if !c.st.hasLeague(m.leagueID) {
		m.reply <- ErrInvalidSelection
		return
	}
	if c.st.selectedLeagueID != m.leagueID {
		c.st.selectedLeagueID = m.leagueID
		c.publish()
	}
	m.reply <- nil
}

func (c *Controller) handleRefreshLeagues() {
	if c.st.token == "" {
		return
	}
	c.beginLeaguesFetch()
}

func (c *Controller) handleRetryLogin(m retryLoginMsg) {
	if c.st.phase != PhaseLoginFailed || c.st.token != "" {
		m.reply <- ErrNotRetryable
		return
	}
	if !c.st.walletConnected {
		m.reply <- ErrNotRetryable
		return
	}
	c.beginLogin(c.st.walletAccountID)
	m.reply <- nil
}

func (c *Controller) handleCompleteAssociation(m completeAssociationMsg) {
	if c.st.phase != PhaseAssociationRequired {
		m.reply <- ErrNotAwaitingAssociation
		return
	}

	ep := c.epoch
	token := c.st.token
	go func() {
		err := c.api.CompleteAssociation(c.ctx, token, m.externalUsername)
		c.post(associationDoneMsg{epoch: ep, err: err, reply: m.reply})
	}()
}

func (c *Controller) handleAssociationDone(m associationDoneMsg) {
	if m.epoch != c.epoch {
		m.reply <- ErrSessionEnded
		return
	}

	if m.err != nil {
		if authapi.IsUnauthorized(m.err) {
			c.forceLogout("session expired during association")
		} else {
			c.st.lastError = m.err.Error()
			c.publish()
		}
		m.reply <- m.err
		return
	}

	c.st.association = AssociationLinked
	c.st.lastError = ""
	c.setPhase(PhaseReady)
	c.publish()
	c.beginLeaguesFetch()
	m.reply <- nil
}

func (c *Controller) handleSubscribe(m subscribeMsg) {
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = m.ch
	m.ch <- c.st.snapshot(c.version)
	m.reply <- id
}

// Package routeguard maps session state to navigation decisions. It holds no
// state of its own: it only reads controller snapshots.
package routeguard

import "github.com/michigantokenizers/skl-client/session"

// Route identifies where the user currently is in the application.
type Route string

const (
	RouteRoot        Route = "root"
	RouteAssociation Route = "association"
	RouteLeague      Route = "league"
)

// Decision is the guard's verdict for a snapshot.
type Decision string

const (
	// AllowRoot shows the welcome view. Snapshot.LastError, when set, is
	// surfaced alongside it (the login-failed case).
	AllowRoot Decision = "allow_root"
	// ShowLoading keeps the user on a loading indicator while a bootstrap
	// path is in flight.
	ShowLoading Decision = "show_loading"
	// RedirectToAssociation sends the user to the account-linking step.
	RedirectToAssociation Decision = "redirect_to_association"
	// RedirectToLeague sends the user to the league view.
	RedirectToLeague Decision = "redirect_to_league"
	// RedirectToRoot pulls the user back to the welcome view after a
	// logout observed away from the root.
	RedirectToRoot Decision = "redirect_to_root"
)

// Decide returns the allowed-route decision for a session snapshot, given
// the route the user is currently on.
func Decide(snap session.Snapshot, current Route) Decision {
	if !snap.HasToken() {
		if snap.Phase == session.PhaseLoginFailed {
			// Wallet stays connected so the user can retry from the
			// welcome view; the error is surfaced there.
			if current != RouteRoot {
				return RedirectToRoot
			}
			return AllowRoot
		}
		if current != RouteRoot {
			return RedirectToRoot
		}
		return AllowRoot
	}

	switch snap.Phase {
	case session.PhaseVerifying, session.PhaseLoggingIn:
		return ShowLoading
	case session.PhaseAssociationRequired:
		return RedirectToAssociation
	case session.PhaseReady:
		if snap.Association == session.AssociationRequired {
			return RedirectToAssociation
		}
		return RedirectToLeague
	default:
		if current != RouteRoot {
			return RedirectToRoot
		}
		return AllowRoot
	}
}

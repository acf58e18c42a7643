package session

import (
	"context"

	"github.com/michigantokenizers/skl-client/authapi"
)

// API is the slice of the backend the controller drives. *authapi.Client
// satisfies it; tests use apifakes.
type API interface {
	Login(ctx context.Context, accountID, nonce string) (authapi.LoginResult, error)
	VerifySession(ctx context.Context, token string) (authapi.VerifyResult, error)
	CheckAssociation(ctx context.Context, token string) (authapi.AssociationStatus, error)
	CompleteAssociation(ctx context.Context, token, externalUsername string) error
	ListLeagues(ctx context.Context, token string) (authapi.LeaguesResult, error)
	GetUserRosterID(ctx context.Context, token, leagueID string) (string, error)
}

var _ API = (*authapi.Client)(nil)

package authapi

// League is a single league summary as returned by the backend. Order of
// leagues in a listing is the server's order and is preserved.
type League struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserInfo is the profile record attached to league listings.
type UserInfo struct {
	WalletAddress    string `json:"walletAddress"`
	ExternalUsername string `json:"externalUsername,omitempty"`
}

// LoginResult is the outcome of a successful wallet login.
type LoginResult struct {
	SessionToken string
	IsNewUser    bool
}

// VerifyResult is the outcome of a successful session verification.
type VerifyResult struct {
	WalletAddress string
}

// AssociationStatus reports whether the session still needs to be linked to an
// external fantasy-platform account.
type AssociationStatus struct {
	NeedsAssociation bool
}

// LeaguesResult is the outcome of a successful league listing.
type LeaguesResult struct {
	Leagues  []League
	UserInfo *UserInfo
}

// Package authapi is the HTTP client for the SKL backend's session-backed
// API. The session token is opaque to this package; it is attached as a
// bearer credential and never inspected.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxBodySize = 1 << 20 // 1MiB
)

// Config configures the backend client.
type Config struct {
	// BaseURL is the base URL of the SKL backend (e.g. https://api.skl.example).
	BaseURL string
	// HTTPClient is used to execute requests. When nil, a default client with
	// a conservative timeout is used.
	HTTPClient *http.Client
	// MaxBodyBytes caps response bodies to prevent memory exhaustion.
	MaxBodyBytes int64
}

// Client talks JSON-over-HTTP to the SKL backend.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	maxBodyBytes int64
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("[authapi.New] BaseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("[authapi.New] BaseURL must be a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("[authapi.New] BaseURL scheme must be http or https")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodySize
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   client,
		maxBodyBytes: maxBodyBytes,
	}, nil
}

// Login exchanges a wallet account id and a single-use nonce for a session
// token.
func (c *Client) Login(ctx context.Context, accountID, nonce string) (LoginResult, error) {
	if strings.TrimSpace(accountID) == "" {
		return LoginResult{}, ErrEmptyAccountID
	}

	var resp struct {
		envelope
		SessionToken string `json:"sessionToken"`
		IsNewUser    bool   `json:"isNewUser"`
	}
	body := map[string]string{"walletAddress": accountID, "nonce": nonce}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return LoginResult{}, errors.Wrap(err, "[Client.Login]")
	}
	if !resp.Success {
		return LoginResult{}, &APIError{Op: "Client.Login", Message: resp.Error}
	}
	if resp.SessionToken == "" {
		return LoginResult{}, errors.New("[Client.Login] server returned success without a session token")
	}
	return LoginResult{SessionToken: resp.SessionToken, IsNewUser: resp.IsNewUser}, nil
}

// VerifySession checks that a stored token is still valid and returns the
// wallet address it was issued for.
func (c *Client) VerifySession(ctx context.Context, token string) (VerifyResult, error) {
	if token == "" {
		return VerifyResult{}, ErrEmptyToken
	}

	var resp struct {
		envelope
		WalletAddress string `json:"walletAddress"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/session", token, nil, &resp); err != nil {
		return VerifyResult{}, errors.Wrap(err, "[Client.VerifySession]")
	}
	if !resp.Success {
		return VerifyResult{}, &APIError{Op: "Client.VerifySession", Message: resp.Error}
	}
	return VerifyResult{WalletAddress: resp.WalletAddress}, nil
}

// CheckAssociation reports whether the session still needs linking to an
// external fantasy account.
func (c *Client) CheckAssociation(ctx context.Context, token string) (AssociationStatus, error) {
	if token == "" {
		return AssociationStatus{}, ErrEmptyToken
	}

	var resp struct {
		envelope
		NeedsAssociation bool `json:"needsAssociation"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/association", token, nil, &resp); err != nil {
		return AssociationStatus{}, errors.Wrap(err, "[Client.CheckAssociation]")
	}
	if !resp.Success {
		return AssociationStatus{}, &APIError{Op: "Client.CheckAssociation", Message: resp.Error}
	}
	return AssociationStatus{NeedsAssociation: resp.NeedsAssociation}, nil
}

// CompleteAssociation links the session to an external fantasy-platform
// username.
func (c *Client) CompleteAssociation(ctx context.Context, token, externalUsername string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if strings.TrimSpace(externalUsername) == "" {
		return errors.New("[Client.CompleteAssociation] external username is required")
	}

	var resp envelope
	body := map[string]string{"externalUsername": externalUsername}
	if err := c.do(ctx, http.MethodPost, "/auth/association", token, body, &resp); err != nil {
		return errors.Wrap(err, "[Client.CompleteAssociation]")
	}
	if !resp.Success {
		return &APIError{Op: "Client.CompleteAssociation", Message: resp.Error}
	}
	return nil
}

// ListLeagues returns the leagues visible to the session, in server order.
func (c *Client) ListLeagues(ctx context.Context, token string) (LeaguesResult, error) {
	if token == "" {
		return LeaguesResult{}, ErrEmptyToken
	}

	var resp struct {
		envelope
		Leagues  []League  `json:"leagues"`
		UserInfo *UserInfo `json:"userInfo"`
	}
	if err := c.do(ctx, http.MethodGet, "/leagues", token, nil, &resp); err != nil {
		return LeaguesResult{}, errors.Wrap(err, "[Client.ListLeagues]")
	}
	if !resp.Success {
		return LeaguesResult{}, &APIError{Op: "Client.ListLeagues", Message: resp.Error}
	}
	return LeaguesResult{Leagues: resp.Leagues, UserInfo: resp.UserInfo}, nil
}

// GetUserRosterID returns the caller's roster id within a league. Used when
// navigating to "my team"; not consumed by the session state machine.
func (c *Client) GetUserRosterID(ctx context.Context, token, leagueID string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if strings.TrimSpace(leagueID) == "" {
		return "", ErrEmptyLeagueID
	}

	var resp struct {
		envelope
		RosterID string `json:"rosterId"`
	}
	endpoint := "/leagues/" + url.PathEscape(leagueID) + "/roster"
	if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &resp); err != nil {
		return "", errors.Wrap(err, "[Client.GetUserRosterID]")
	}
	if !resp.Success {
		return "", &APIError{Op: "Client.GetUserRosterID", Message: resp.Error}
	}
	return resp.RosterID, nil
}

// envelope is the common response wrapper used by every backend endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "execute request")
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, c.maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return errors.Errorf("unexpected status %d", res.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/njt/graph365/internal/tokencache"
)

// ExpiryMargin is the safety buffer applied to cached access tokens: a
// token expiring within the margin is treated as expired so unattended
// runs never start an API call with a token about to lapse.
const ExpiryMargin = 5 * time.Minute

// Options configures a Manager.
type Options struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	Endpoint     oauth2.Endpoint

	// HTTPClient overrides the default HTTP client (tests).
	HTTPClient *http.Client
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Manager resolves a currently-valid access token from the credential
// cache, silently refreshing through the identity provider when the
// cached token is expired or absent. The cache-hit path never touches
// the network and never rewrites the cache file.
type Manager struct {
	clientID     string
	clientSecret string
	scopes       []string
	tokenURL     string
	store        *tokencache.Store
	client       *http.Client
	now          func() time.Time
}

// NewManager creates a token manager over the given credential store.
func NewManager(store *tokencache.Store, opts Options) *Manager {
	m := &Manager{
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		scopes:       opts.Scopes,
		tokenURL:     opts.Endpoint.TokenURL,
		store:        store,
		client:       opts.HTTPClient,
		now:          opts.Now,
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: 30 * time.Second}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// AccessToken returns a valid access token for the configured client and
// scope set. Failures are terminal: callers must not fall back to
// interactive auth (the CLI targets unattended cron runs).
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	contract := m.store.Load()
	if contract == nil {
		return "", ErrNoCredentials
	}

	account, ok := selectAccount(contract)
	if !ok {
		return "", ErrNoAccount
	}

	if at, ok := contract.FindAccessToken(account.HomeAccountID, account.Environment, m.clientID, account.Realm, m.scopes); ok {
		if m.now().Add(ExpiryMargin).Before(at.ExpiresOnTime()) {
			slog.Debug("using cached access token", "expires_on", at.ExpiresOnTime())
			return at.Secret, nil
		}
		slog.Debug("cached access token expired", "expires_on", at.ExpiresOnTime())
	}

	rt, ok := contract.FindRefreshToken(account.HomeAccountID, account.Environment, m.clientID)
	if !ok {
		return "", ErrRefreshUnavailable
	}
	if m.clientSecret == "" {
		return "", ErrClientSecretRequired
	}

	tr, err := m.redeemRefreshToken(ctx, rt.Secret)
	if err != nil {
		return "", err
	}

	if err := m.persistRefreshed(contract, account, tr); err != nil {
		return "", err
	}

	slog.Debug("access token refreshed", "expires_in", tr.ExpiresIn)
	return tr.AccessToken, nil
}

// selectAccount picks the account deterministically: the first by sorted
// cache key among meaningfully-populated entries. A single account is
// the expected case; selection among several is not supported.
func selectAccount(c *tokencache.Contract) (tokencache.Account, bool) {
	for _, key := range c.AccountKeys() {
		if a := c.Accounts[key]; a.HomeAccountID != "" {
			return a, true
		}
	}
	return tokencache.Account{}, false
}

// redeemRefreshToken performs the confidential-client refresh-token grant.
func (m *Manager) redeemRefreshToken(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", m.clientID)
	form.Set("refresh_token", refreshToken)
	form.Set("scope", strings.Join(m.scopes, " "))
	form.Set("client_info", "1")
	form.Set("client_secret", m.clientSecret)

	body, pe, err := postForm(ctx, m.client, m.tokenURL, form)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	if pe != nil {
		return nil, &RefreshError{Code: pe.Code, Description: pe.Description}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return nil, fmt.Errorf("token endpoint returned no usable access token")
	}

	return &tr, nil
}

// persistRefreshed writes the refreshed access token (and rotated refresh
// token, if one was issued) back to the cache. This is the only mutation
// the silent path performs.
func (m *Manager) persistRefreshed(c *tokencache.Contract, account tokencache.Account, tr *tokenResponse) error {
	now := m.now()

	target := tr.Scope
	if target == "" {
		target = strings.Join(m.scopes, " ")
	}

	at := tokencache.NewAccessToken(
		account.HomeAccountID, account.Environment, account.Realm,
		m.clientID, target, tr.AccessToken,
		now,
		time.Duration(tr.ExpiresIn)*time.Second,
		time.Duration(tr.ExtExpiresIn)*time.Second,
	)
	c.AccessTokens[at.Key()] = at

	if tr.RefreshToken != "" {
		rt := tokencache.RefreshToken{
			HomeAccountID:  account.HomeAccountID,
			Environment:    account.Environment,
			CredentialType: tokencache.CredRefreshToken,
			ClientID:       m.clientID,
			Secret:         tr.RefreshToken,
		}
		c.RefreshTokens[rt.Key()] = rt
	}

	if tr.IDToken != "" {
		idt := tokencache.IDToken{
			HomeAccountID:  account.HomeAccountID,
			Environment:    account.Environment,
			Realm:          account.Realm,
			CredentialType: tokencache.CredIDToken,
			ClientID:       m.clientID,
			Secret:         tr.IDToken,
		}
		c.IDTokens[idt.Key()] = idt
	}

	if err := m.store.Save(c); err != nil {
		return fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}
	return nil
}

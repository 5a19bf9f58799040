package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"github.com/njt/graph365/internal/tokencache"
	"github.com/njt/graph365/libgraph"
)

const deviceCodeGrant = "urn:ietf:params:oauth:grant-type:device_code"

// flowState tracks the device-code flow's progress.
type flowState int

const (
	stateRequestingCode flowState = iota
	statePolling
	stateSucceeded
	stateExpired
	stateFailed
)

func (s flowState) String() string {
	switch s {
	case stateRequestingCode:
		return "requesting_code"
	case statePolling:
		return "polling"
	case stateSucceeded:
		return "succeeded"
	case stateExpired:
		return "expired"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// deviceCodeResponse is the provider's device authorization payload.
type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
	Message         string `json:"message"`
}

// AuthenticatorOptions configures an Authenticator.
type AuthenticatorOptions struct {
	ClientID string
	TenantID string
	Scopes   []string
	Endpoint oauth2.Endpoint

	// Out receives operator-facing instructions (defaults to stderr so
	// stdout stays machine-parseable).
	Out io.Writer
	// HTTPClient overrides the default HTTP client (tests).
	HTTPClient *http.Client
	// Now overrides the clock (tests).
	Now func() time.Time
	// Tick is the unit the provider's polling interval is multiplied by.
	// Defaults to one second; tests shrink it.
	Tick time.Duration
	// GraphBaseURL overrides the Graph endpoint used for post-login
	// profile enrichment (tests).
	GraphBaseURL string
	// OpenURL opens the verification URI in a browser, best-effort.
	OpenURL func(string) error
}

// Authenticator runs the one-shot interactive device-code flow and writes
// the resulting token set into the credential store, replacing whatever
// was there.
type Authenticator struct {
	clientID     string
	tenantID     string
	scopes       []string
	deviceURL    string
	tokenURL     string
	store        *tokencache.Store
	out          io.Writer
	client       *http.Client
	now          func() time.Time
	tick         time.Duration
	graphBaseURL string
	openURL      func(string) error
}

// NewAuthenticator creates a device-code authenticator over the given
// credential store.
func NewAuthenticator(store *tokencache.Store, opts AuthenticatorOptions) *Authenticator {
	a := &Authenticator{
		clientID:     opts.ClientID,
		tenantID:     opts.TenantID,
		scopes:       opts.Scopes,
		deviceURL:    opts.Endpoint.DeviceAuthURL,
		tokenURL:     opts.Endpoint.TokenURL,
		store:        store,
		out:          opts.Out,
		client:       opts.HTTPClient,
		now:          opts.Now,
		tick:         opts.Tick,
		graphBaseURL: opts.GraphBaseURL,
		openURL:      opts.OpenURL,
	}
	if a.out == nil {
		a.out = os.Stderr
	}
	if a.client == nil {
		a.client = &http.Client{Timeout: 30 * time.Second}
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.tick == 0 {
		a.tick = time.Second
	}
	if a.openURL == nil {
		a.openURL = browser.OpenURL
	}
	return a
}

// Login runs the full flow: request a device code, show the verification
// instructions, poll the token endpoint until the user authorizes (or the
// code expires), then write a fresh cache document and best-effort enrich
// the account from the user's profile.
func (a *Authenticator) Login(ctx context.Context) error {
	state := stateRequestingCode
	slog.Debug("device code flow", "state", state)

	dc, err := a.requestDeviceCode(ctx)
	if err != nil {
		slog.Debug("device code flow", "state", stateFailed)
		return err
	}

	a.displayInstructions(dc)

	state = statePolling
	slog.Debug("device code flow", "state", state)

	tr, err := a.poll(ctx, dc)
	if err != nil {
		return err
	}

	slog.Debug("device code flow", "state", stateSucceeded)

	contract := a.buildContract(tr)
	if err := a.store.Save(contract); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	a.enrichAccount(ctx, contract, tr.AccessToken)
	return nil
}

func (a *Authenticator) requestDeviceCode(ctx context.Context) (*deviceCodeResponse, error) {
	form := url.Values{}
	form.Set("client_id", a.clientID)
	form.Set("scope", scopeString(a.scopes))

	body, pe, err := postForm(ctx, a.client, a.deviceURL, form)
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	if pe != nil {
		return nil, &DeviceFlowError{Code: pe.Code, Description: pe.Description}
	}

	var dc deviceCodeResponse
	if err := json.Unmarshal(body, &dc); err != nil {
		return nil, fmt.Errorf("failed to parse device code response: %w", err)
	}
	if dc.DeviceCode == "" || dc.UserCode == "" {
		return nil, &DeviceFlowError{Code: "invalid_response", Description: "provider returned no device code"}
	}

	return &dc, nil
}

func (a *Authenticator) displayInstructions(dc *deviceCodeResponse) {
	if dc.Message != "" {
		fmt.Fprintln(a.out, dc.Message)
	} else {
		fmt.Fprintf(a.out, "To sign in, visit %s and enter the code %s\n", dc.VerificationURI, dc.UserCode)
	}
	if dc.ExpiresIn > 0 {
		fmt.Fprintf(a.out, "The code expires in %s.\n", time.Duration(dc.ExpiresIn)*time.Second)
	}
	if dc.VerificationURI != "" {
		if err := a.openURL(dc.VerificationURI); err != nil {
			slog.Debug("could not open browser", "error", err)
		}
	}
}

// poll posts the device code to the token endpoint at the provider's
// interval until the user authorizes, the provider rejects the flow, or
// the code's expiry window elapses. slow_down stretches the interval by
// five seconds per RFC 8628.
func (a *Authenticator) poll(ctx context.Context, dc *deviceCodeResponse) (*tokenResponse, error) {
	interval := dc.Interval
	if interval <= 0 {
		interval = 5
	}
	deadline := a.now().Add(time.Duration(dc.ExpiresIn) * time.Second)

	for {
		if !a.now().Before(deadline) {
			slog.Debug("device code flow", "state", stateExpired)
			return nil, ErrDeviceFlowExpired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(interval) * a.tick):
		}

		form := url.Values{}
		form.Set("grant_type", deviceCodeGrant)
		form.Set("client_id", a.clientID)
		form.Set("device_code", dc.DeviceCode)
		form.Set("client_info", "1")

		body, pe, err := postForm(ctx, a.client, a.tokenURL, form)
		if err != nil {
			return nil, fmt.Errorf("token poll failed: %w", err)
		}

		if pe != nil {
			switch pe.Code {
			case "authorization_pending":
				continue
			case "slow_down":
				interval += 5
				slog.Debug("provider requested slower polling", "interval", interval)
				continue
			case "expired_token":
				slog.Debug("device code flow", "state", stateExpired)
				return nil, ErrDeviceFlowExpired
			default:
				slog.Debug("device code flow", "state", stateFailed)
				return nil, &DeviceFlowError{Code: pe.Code, Description: pe.Description}
			}
		}

		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, fmt.Errorf("failed to parse token response: %w", err)
		}
		if tr.AccessToken == "" {
			return nil, &DeviceFlowError{Code: "invalid_response", Description: "provider returned no access token"}
		}
		return &tr, nil
	}
}

// buildContract constructs a fresh cache document from the token
// response: account, access token, refresh token and id token entries as
// available.
func (a *Authenticator) buildContract(tr *tokenResponse) *tokencache.Contract {
	environment := endpointHost(a.tokenURL)

	id := parseIdentity(tr, a.tenantID)
	if id.HomeAccountID == "" {
		// No client_info and no id_token in the response; synthesize a
		// local identity so the cache still round-trips.
		id.LocalAccountID = uuid.NewString()
		id.HomeAccountID = id.LocalAccountID + "." + id.Realm
	}

	c := tokencache.NewContract()

	account := tokencache.Account{
		HomeAccountID:  id.HomeAccountID,
		Environment:    environment,
		Realm:          id.Realm,
		LocalAccountID: id.LocalAccountID,
		Username:       id.Username,
		Name:           id.Name,
		AuthorityType:  tokencache.AuthorityTypeMSSTS,
	}
	c.Accounts[account.Key()] = account

	target := tr.Scope
	if target == "" {
		target = scopeString(a.scopes)
	}
	at := tokencache.NewAccessToken(
		id.HomeAccountID, environment, id.Realm,
		a.clientID, target, tr.AccessToken,
		a.now(),
		time.Duration(tr.ExpiresIn)*time.Second,
		time.Duration(tr.ExtExpiresIn)*time.Second,
	)
	c.AccessTokens[at.Key()] = at

	if tr.RefreshToken != "" {
		rt := tokencache.RefreshToken{
			HomeAccountID:  id.HomeAccountID,
			Environment:    environment,
			CredentialType: tokencache.CredRefreshToken,
			ClientID:       a.clientID,
			Secret:         tr.RefreshToken,
		}
		c.RefreshTokens[rt.Key()] = rt
	}

	if tr.IDToken != "" {
		idt := tokencache.IDToken{
			HomeAccountID:  id.HomeAccountID,
			Environment:    environment,
			Realm:          id.Realm,
			CredentialType: tokencache.CredIDToken,
			ClientID:       a.clientID,
			Secret:         tr.IDToken,
		}
		c.IDTokens[idt.Key()] = idt
	}

	c.AppMetadata["appmetadata-"+environment+"-"+a.clientID] = tokencache.AppMetadata{
		ClientID:    a.clientID,
		Environment: environment,
	}

	return c
}

// enrichAccount fills in the account's username and display name from the
// user's Graph profile. Failure here never fails the login.
func (a *Authenticator) enrichAccount(ctx context.Context, c *tokencache.Contract, accessToken string) {
	client := libgraph.NewClient(accessToken)
	if a.graphBaseURL != "" {
		client.SetBaseURL(a.graphBaseURL)
	}

	user, err := client.GetMe(ctx)
	if err != nil {
		slog.Warn("could not fetch profile to enrich account", "error", err)
		return
	}

	for key, account := range c.Accounts {
		if user.UserPrincipalName != "" {
			account.Username = user.UserPrincipalName
		}
		if user.DisplayName != "" {
			account.Name = user.DisplayName
		}
		c.Accounts[key] = account
	}

	if err := a.store.Save(c); err != nil {
		slog.Warn("could not persist enriched account", "error", err)
	}
}

func scopeString(scopes []string) string {
	return strings.Join(scopes, " ")
}

func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

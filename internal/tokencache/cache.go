// Package tokencache implements the on-disk credential cache shared with
// other Microsoft identity tooling. The document layout and key naming
// follow the MSAL cache contract so externally-populated caches can be
// read directly.
package tokencache

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Credential type discriminators as they appear in cache entries.
const (
	CredAccessToken  = "AccessToken"
	CredRefreshToken = "RefreshToken"
	CredIDToken      = "IdToken"

	// AuthorityTypeMSSTS marks accounts issued by the Microsoft security
	// token service (the only authority type this tool produces).
	AuthorityTypeMSSTS = "MSSTS"
)

// Contract is the full cache document. All five maps must be present
// (possibly empty) for the document to be well-formed; use NewContract
// or Normalize to guarantee that.
type Contract struct {
	AccessTokens  map[string]AccessToken  `json:"AccessToken"`
	RefreshTokens map[string]RefreshToken `json:"RefreshToken"`
	IDTokens      map[string]IDToken      `json:"IdToken"`
	Accounts      map[string]Account      `json:"Account"`
	AppMetadata   map[string]AppMetadata  `json:"AppMetadata"`
}

// NewContract returns an empty, well-formed cache document.
func NewContract() *Contract {
	return &Contract{
		AccessTokens:  map[string]AccessToken{},
		RefreshTokens: map[string]RefreshToken{},
		IDTokens:      map[string]IDToken{},
		Accounts:      map[string]Account{},
		AppMetadata:   map[string]AppMetadata{},
	}
}

// Normalize replaces any nil map with an empty one so a freshly
// unmarshalled document always satisfies the well-formedness invariant.
func (c *Contract) Normalize() {
	if c.AccessTokens == nil {
		c.AccessTokens = map[string]AccessToken{}
	}
	if c.RefreshTokens == nil {
		c.RefreshTokens = map[string]RefreshToken{}
	}
	if c.IDTokens == nil {
		c.IDTokens = map[string]IDToken{}
	}
	if c.Accounts == nil {
		c.Accounts = map[string]Account{}
	}
	if c.AppMetadata == nil {
		c.AppMetadata = map[string]AppMetadata{}
	}
}

// Account identifies a signed-in user within a tenant.
type Account struct {
	HomeAccountID  string `json:"home_account_id"`
	Environment    string `json:"environment"`
	Realm          string `json:"realm"`
	LocalAccountID string `json:"local_account_id"`
	Username       string `json:"username"`
	Name           string `json:"name,omitempty"`
	AuthorityType  string `json:"authority_type"`
}

// Key returns the composite cache key for the account.
func (a Account) Key() string {
	return cacheKey(a.HomeAccountID, a.Environment, a.Realm)
}

// AccessToken is a cached bearer credential for a scope set.
// CachedAt and ExpiresOn are epoch seconds serialized as decimal strings,
// matching the cache contract.
type AccessToken struct {
	HomeAccountID     string `json:"home_account_id"`
	Environment       string `json:"environment"`
	Realm             string `json:"realm"`
	CredentialType    string `json:"credential_type"`
	ClientID          string `json:"client_id"`
	Secret            string `json:"secret"`
	Target            string `json:"target"`
	CachedAt          string `json:"cached_at"`
	ExpiresOn         string `json:"expires_on"`
	ExtendedExpiresOn string `json:"extended_expires_on,omitempty"`
	TokenType         string `json:"token_type"`
}

// NewAccessToken builds an access token entry cached at now and expiring
// after lifetime.
func NewAccessToken(homeAccountID, environment, realm, clientID, target, secret string, now time.Time, lifetime, extLifetime time.Duration) AccessToken {
	at := AccessToken{
		HomeAccountID:  homeAccountID,
		Environment:    environment,
		Realm:          realm,
		CredentialType: CredAccessToken,
		ClientID:       clientID,
		Secret:         secret,
		Target:         target,
		CachedAt:       strconv.FormatInt(now.Unix(), 10),
		ExpiresOn:      strconv.FormatInt(now.Add(lifetime).Unix(), 10),
		TokenType:      "Bearer",
	}
	if extLifetime > 0 {
		at.ExtendedExpiresOn = strconv.FormatInt(now.Add(extLifetime).Unix(), 10)
	}
	return at
}

// Key returns the composite cache key for the access token.
func (t AccessToken) Key() string {
	return cacheKey(t.HomeAccountID, t.Environment, t.CredentialType, t.ClientID, t.Realm, t.Target)
}

// ExpiresOnTime returns the expiry as a time.Time. A malformed or empty
// expires_on yields the zero time, which callers treat as expired.
func (t AccessToken) ExpiresOnTime() time.Time {
	return epochTime(t.ExpiresOn)
}

// CachedAtTime returns the cache write time, or the zero time if unset.
func (t AccessToken) CachedAtTime() time.Time {
	return epochTime(t.CachedAt)
}

// MatchesScopes reports whether the token's target covers every requested
// scope. Comparison is case-insensitive; the reserved OpenID scopes that
// the token endpoint never echoes back are ignored.
func (t AccessToken) MatchesScopes(scopes []string) bool {
	granted := map[string]bool{}
	for _, s := range strings.Fields(strings.ToLower(t.Target)) {
		granted[s] = true
	}
	for _, s := range scopes {
		s = strings.ToLower(s)
		switch s {
		case "openid", "profile", "offline_access":
			continue
		}
		if !granted[s] {
			return false
		}
	}
	return true
}

// RefreshToken is a cached refresh credential. Expiry is not tracked
// locally; the identity provider is authoritative.
type RefreshToken struct {
	HomeAccountID  string `json:"home_account_id"`
	Environment    string `json:"environment"`
	CredentialType string `json:"credential_type"`
	ClientID       string `json:"client_id"`
	Secret         string `json:"secret"`
}

// Key returns the composite cache key for the refresh token. Refresh
// tokens carry no realm or target; the key keeps their separator slots
// empty per the cache contract.
func (t RefreshToken) Key() string {
	return cacheKey(t.HomeAccountID, t.Environment, t.CredentialType, t.ClientID, "", "")
}

// IDToken is a cached identity token. Informational only; never used to
// authorize API calls.
type IDToken struct {
	HomeAccountID  string `json:"home_account_id"`
	Environment    string `json:"environment"`
	Realm          string `json:"realm"`
	CredentialType string `json:"credential_type"`
	ClientID       string `json:"client_id"`
	Secret         string `json:"secret"`
}

// Key returns the composite cache key for the id token.
func (t IDToken) Key() string {
	return cacheKey(t.HomeAccountID, t.Environment, t.CredentialType, t.ClientID, t.Realm, "")
}

// AppMetadata is reserved per the cache contract and may be empty.
type AppMetadata struct {
	ClientID    string `json:"client_id,omitempty"`
	Environment string `json:"environment,omitempty"`
	FamilyID    string `json:"family_id,omitempty"`
}

// AccountKeys returns the account keys in sorted order, giving callers a
// deterministic iteration order over the Accounts map.
func (c *Contract) AccountKeys() []string {
	keys := make([]string, 0, len(c.Accounts))
	for k := range c.Accounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FindAccessToken returns the matching access token with the latest
// expiry for the given account, client and scope set.
func (c *Contract) FindAccessToken(homeAccountID, environment, clientID, realm string, scopes []string) (AccessToken, bool) {
	var best AccessToken
	found := false
	for _, t := range c.AccessTokens {
		if !strings.EqualFold(t.HomeAccountID, homeAccountID) ||
			!strings.EqualFold(t.Environment, environment) ||
			!strings.EqualFold(t.ClientID, clientID) ||
			!strings.EqualFold(t.Realm, realm) {
			continue
		}
		if !t.MatchesScopes(scopes) {
			continue
		}
		if !found || t.ExpiresOnTime().After(best.ExpiresOnTime()) {
			best = t
			found = true
		}
	}
	return best, found
}

// FindRefreshToken returns the refresh token for the given account and
// client, if one is cached.
func (c *Contract) FindRefreshToken(homeAccountID, environment, clientID string) (RefreshToken, bool) {
	for _, t := range c.RefreshTokens {
		if strings.EqualFold(t.HomeAccountID, homeAccountID) &&
			strings.EqualFold(t.Environment, environment) &&
			strings.EqualFold(t.ClientID, clientID) {
			return t, true
		}
	}
	return RefreshToken{}, false
}

// cacheKey joins key parts with hyphens and lowercases the result, the
// composite key convention used throughout the cache.
func cacheKey(parts ...string) string {
	return strings.ToLower(strings.Join(parts, "-"))
}

func epochTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

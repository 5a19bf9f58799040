package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/njt/graph365/internal/tokencache"
)

const (
	testEnv      = "login.microsoftonline.com"
	testRealm    = "utid"
	testHomeID   = "uid.utid"
	testClientID = "client-1"
)

var testScopes = []string{"User.Read", "Mail.Read"}

func testNow() time.Time {
	return time.Unix(1700000000, 0)
}

// seedContract builds a cache with one account, an access token expiring
// at now+atLifetime (skipped if zero secret) and optionally a refresh
// token.
func seedContract(atSecret string, atLifetime time.Duration, withRT bool) *tokencache.Contract {
	c := tokencache.NewContract()

	account := tokencache.Account{
		HomeAccountID:  testHomeID,
		Environment:    testEnv,
		Realm:          testRealm,
		LocalAccountID: "uid",
		Username:       "user@example.com",
		AuthorityType:  tokencache.AuthorityTypeMSSTS,
	}
	c.Accounts[account.Key()] = account

	if atSecret != "" {
		at := tokencache.NewAccessToken(
			testHomeID, testEnv, testRealm, testClientID,
			"User.Read Mail.Read", atSecret,
			testNow().Add(-time.Minute), atLifetime+time.Minute, 0,
		)
		c.AccessTokens[at.Key()] = at
	}

	if withRT {
		rt := tokencache.RefreshToken{
			HomeAccountID:  testHomeID,
			Environment:    testEnv,
			CredentialType: tokencache.CredRefreshToken,
			ClientID:       testClientID,
			Secret:         "cached-refresh-token",
		}
		c.RefreshTokens[rt.Key()] = rt
	}

	return c
}

func newTestManager(t *testing.T, contract *tokencache.Contract, tokenURL string) (*Manager, *tokencache.Store) {
	t.Helper()

	store := tokencache.NewStore(filepath.Join(t.TempDir(), "cache.json"))
	if contract != nil {
		require.NoError(t, store.Save(contract))
	}

	mgr := NewManager(store, Options{
		ClientID:     testClientID,
		ClientSecret: "app-secret",
		Scopes:       testScopes,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		Now:          testNow,
	})
	return mgr, store
}

// countingTokenServer returns a token endpoint whose responses come from
// respond and counts how many requests it received.
func countingTokenServer(t *testing.T, respond http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		respond(w, r)
	}))
	t.Cleanup(server.Close)
	return server, calls
}

func TestAccessTokenCacheHit(t *testing.T) {
	server, calls := countingTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("cache hit must not reach the network")
	})

	mgr, store := newTestManager(t, seedContract("cached-secret", time.Hour, true), server.URL)

	before, err := os.ReadFile(store.PrimaryPath())
	require.NoError(t, err)

	token, err := mgr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached-secret", token)
	assert.Equal(t, int32(0), calls.Load())

	// The cache-hit path is read-only: the file must be byte-identical.
	after, err := os.ReadFile(store.PrimaryPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAccessTokenRefreshOnExpired(t *testing.T) {
	server, calls := countingTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "cached-refresh-token", r.Form.Get("refresh_token"))
		assert.Equal(t, testClientID, r.Form.Get("client_id"))
		assert.Equal(t, "app-secret", r.Form.Get("client_secret"))
		assert.Equal(t, "User.Read Mail.Read", r.Form.Get("scope"))

		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "AT2",
			"refresh_token": "RT2",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "User.Read Mail.Read",
		})
	})

	// Access token expired 10 seconds ago.
	contract := seedContract("", 0, true)
	stale := tokencache.NewAccessToken(
		testHomeID, testEnv, testRealm, testClientID,
		"User.Read Mail.Read", "stale-secret",
		testNow().Add(-time.Hour), time.Hour-10*time.Second, 0,
	)
	contract.AccessTokens[stale.Key()] = stale
	oldExpiry := stale.ExpiresOnTime()

	mgr, store := newTestManager(t, contract, server.URL)

	token, err := mgr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT2", token)
	assert.Equal(t, int32(1), calls.Load())

	reloaded := store.Load()
	require.NotNil(t, reloaded)

	at, ok := reloaded.FindAccessToken(testHomeID, testEnv, testClientID, testRealm, testScopes)
	require.True(t, ok)
	assert.Equal(t, "AT2", at.Secret)
	assert.Equal(t, testNow().Add(time.Hour), at.ExpiresOnTime())
	assert.True(t, at.ExpiresOnTime().After(oldExpiry), "new expiry must be strictly later")

	rt, ok := reloaded.FindRefreshToken(testHomeID, testEnv, testClientID)
	require.True(t, ok)
	assert.Equal(t, "RT2", rt.Secret, "rotated refresh token must be persisted")
}

func TestAccessTokenRefreshWithoutRotation(t *testing.T) {
	server, _ := countingTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "AT2",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	mgr, store := newTestManager(t, seedContract("", 0, true), server.URL)

	token, err := mgr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT2", token)

	rt, ok := store.Load().FindRefreshToken(testHomeID, testEnv, testClientID)
	require.True(t, ok)
	assert.Equal(t, "cached-refresh-token", rt.Secret, "refresh token must survive when not rotated")
}

func TestAccessTokenExpiryMargin(t *testing.T) {
	// Token technically valid for two more minutes, inside the safety
	// margin: must be refreshed.
	server, calls := countingTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "AT2",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	mgr, _ := newTestManager(t, seedContract("nearly-expired", 2*time.Minute, true), server.URL)

	token, err := mgr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT2", token)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAccessTokenRefreshUnavailable(t *testing.T) {
	server, calls := countingTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no refresh token: must not reach the network")
	})

	mgr, store := newTestManager(t, seedContract("stale", -time.Minute, false), server.URL)

	before, err := os.ReadFile(store.PrimaryPath())
	require.NoError(t, err)

	_, err = mgr.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrRefreshUnavailable)
	assert.Equal(t, int32(0), calls.Load())

	after, readErr := os.ReadFile(store.PrimaryPath())
	require.NoError(t, readErr)
	assert.Equal(t, before, after, "failure must not mutate the store")
}

func TestAccessTokenRefreshWithoutClientSecret(t *testing.T) {
	server, calls := countingTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("missing client secret: must not reach the network")
	})

	store := tokencache.NewStore(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, store.Save(seedContract("", 0, true)))

	mgr := NewManager(store, Options{
		ClientID: testClientID,
		Scopes:   testScopes,
		Endpoint: oauth2.Endpoint{TokenURL: server.URL},
		Now:      testNow,
	})

	before, err := os.ReadFile(store.PrimaryPath())
	require.NoError(t, err)

	_, err = mgr.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrClientSecretRequired)
	assert.Equal(t, int32(0), calls.Load())

	after, readErr := os.ReadFile(store.PrimaryPath())
	require.NoError(t, readErr)
	assert.Equal(t, before, after, "failure must not mutate the store")
}

func TestAccessTokenCacheHitWithoutClientSecret(t *testing.T) {
	// A valid cached token needs no secret; only the refresh grant does.
	store := tokencache.NewStore(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, store.Save(seedContract("cached-secret", time.Hour, true)))

	mgr := NewManager(store, Options{
		ClientID: testClientID,
		Scopes:   testScopes,
		Now:      testNow,
	})

	token, err := mgr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached-secret", token)
}

func TestAccessTokenRefreshFailed(t *testing.T) {
	server, _ := countingTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "AADSTS70008: The refresh token has expired.",
		})
	})

	mgr, store := newTestManager(t, seedContract("", 0, true), server.URL)

	before, err := os.ReadFile(store.PrimaryPath())
	require.NoError(t, err)

	_, err = mgr.AccessToken(context.Background())

	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, "invalid_grant", refreshErr.Code)
	assert.Contains(t, refreshErr.Description, "AADSTS70008")
	assert.Contains(t, err.Error(), "invalid_grant")

	after, readErr := os.ReadFile(store.PrimaryPath())
	require.NoError(t, readErr)
	assert.Equal(t, before, after)
}

func TestAccessTokenNoStore(t *testing.T) {
	mgr, _ := newTestManager(t, nil, "http://unused.invalid")

	_, err := mgr.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAccessTokenCorruptStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("%%% not json"), 0o600))

	mgr := NewManager(tokencache.NewStore(path), Options{
		ClientID: testClientID,
		Scopes:   testScopes,
		Now:      testNow,
	})

	_, err := mgr.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAccessTokenNoAccount(t *testing.T) {
	mgr, _ := newTestManager(t, tokencache.NewContract(), "http://unused.invalid")

	_, err := mgr.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoAccount)
}

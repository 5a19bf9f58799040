// Package auth implements the token lifecycle: silent access-token
// resolution against the credential cache (with refresh-token grants for
// a confidential client) and the interactive device-code bootstrap flow.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// tokenResponse is the identity provider's token endpoint success payload,
// shared by the refresh-token and device-code grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	ExtExpiresIn int64  `json:"ext_expires_in"`
	ClientInfo   string `json:"client_info"`
}

// providerError is the OAuth2 error payload returned with non-2xx token
// endpoint responses.
type providerError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// postForm sends a form-encoded POST and returns the response body along
// with any OAuth error payload parsed from a non-2xx response. A non-2xx
// response with an unparseable body yields a providerError whose
// description is the raw body.
func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) ([]byte, *providerError, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pe providerError
		if jsonErr := json.Unmarshal(body, &pe); jsonErr != nil || pe.Code == "" {
			pe = providerError{
				Code:        fmt.Sprintf("http_%d", resp.StatusCode),
				Description: truncate(string(body), 512),
			}
		}
		return body, &pe, nil
	}

	return body, nil, nil
}

// identity is the account identity extracted from a token response.
type identity struct {
	HomeAccountID  string
	LocalAccountID string
	Realm          string
	Username       string
	Name           string
}

// parseIdentity derives the account identity from the client_info blob,
// falling back to id_token claims. The id_token is parsed without
// signature verification: it arrived over TLS from the authority and is
// used for cache bookkeeping only, never for authorization.
func parseIdentity(tr *tokenResponse, fallbackRealm string) identity {
	id := identity{Realm: fallbackRealm}

	if tr.ClientInfo != "" {
		var ci struct {
			UID  string `json:"uid"`
			UTID string `json:"utid"`
		}
		if raw, err := base64.RawURLEncoding.DecodeString(tr.ClientInfo); err == nil {
			if json.Unmarshal(raw, &ci) == nil && ci.UID != "" && ci.UTID != "" {
				id.HomeAccountID = ci.UID + "." + ci.UTID
				id.LocalAccountID = ci.UID
				id.Realm = ci.UTID
			}
		}
	}

	if tr.IDToken != "" {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tr.IDToken, claims); err == nil {
			oid, _ := claims["oid"].(string)
			tid, _ := claims["tid"].(string)
			if id.HomeAccountID == "" && oid != "" && tid != "" {
				id.HomeAccountID = oid + "." + tid
				id.LocalAccountID = oid
				id.Realm = tid
			}
			if u, ok := claims["preferred_username"].(string); ok {
				id.Username = u
			}
			if n, ok := claims["name"].(string); ok {
				id.Name = n
			}
		}
	}

	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

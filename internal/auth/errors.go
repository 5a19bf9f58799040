package auth

import (
	"errors"
	"fmt"
)

// Silent acquisition failures. All are terminal for the invoking command;
// nothing in this package retries or falls back to interactive auth.
var (
	// ErrNoCredentials means no usable credential cache was found.
	ErrNoCredentials = errors.New("no cached credentials found: run 'graph365 login' to authenticate")

	// ErrNoAccount means the cache exists but holds no account.
	ErrNoAccount = errors.New("credential cache contains no account: run 'graph365 login' to authenticate")

	// ErrRefreshUnavailable means the cached access token is expired or
	// missing and no refresh token is cached for the account.
	ErrRefreshUnavailable = errors.New("no refresh token cached for account: run 'graph365 login' to re-authenticate")

	// ErrClientSecretRequired means a refresh was needed but no client
	// secret is configured for the confidential-client grant.
	ErrClientSecretRequired = errors.New("GRAPH365_CLIENT_SECRET is not set: silent token refresh requires the client secret")
)

// RefreshError is returned when the identity provider rejects a
// refresh-token grant (revoked consent, expired client secret, expired
// refresh token). It carries the provider's error code and description
// for operator diagnosis.
type RefreshError struct {
	Code        string
	Description string
}

func (e *RefreshError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token refresh rejected by identity provider: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("token refresh rejected by identity provider: %s", e.Code)
}

// ErrDeviceFlowExpired means the device code expired before the user
// completed authorization.
var ErrDeviceFlowExpired = errors.New("device code expired before authorization completed: run 'graph365 login' again")

// DeviceFlowError is returned when the identity provider rejects the
// device-code flow outright (bad client id, denied consent).
type DeviceFlowError struct {
	Code        string
	Description string
}

func (e *DeviceFlowError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("device code flow failed: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("device code flow failed: %s", e.Code)
}

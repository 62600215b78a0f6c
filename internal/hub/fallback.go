package hub

import (
	"context"

	"github.com/rs/zerolog/log"
)

// TokenKind selects which exchange the fallback executor performs on
// escalation. The metadata API expects session tokens; the distribution API
// expects registry bearer tokens scoped per repository-action.
type TokenKind int

const (
	// SessionAuth escalates with a metadata-API session token.
	SessionAuth TokenKind = iota

	// RegistryAuth escalates with a distribution-API bearer token for the
	// scope passed to Execute.
	RegistryAuth
)

// Execute performs one logical upstream call with the authentication
// escalation policy every operation shares:
//
//  1. the call runs unauthenticated first, keeping public-resource requests
//     fast and free of exchange round trips;
//  2. only when the failure is auth-shaped (401, or 404 — Hub hides private
//     resources behind "not found") and a credential is configured, the
//     credential is exchanged for an ephemeral token and the same call is
//     retried once with it attached;
//  3. a failed exchange or failed retry surfaces as AuthFailedError;
//  4. any other failure propagates unchanged, with no retry.
//
// Without a configured credential the unauthenticated failure propagates
// directly: no exchange is ever attempted.
func Execute[T any](ctx context.Context, c *Client, scope string, kind TokenKind, call func(ctx context.Context, token string) (T, error)) (T, error) {
	result, err := call(ctx, "")
	if err == nil {
		return result, nil
	}

	if !authShaped(err) || !c.HasCredential() {
		var zero T
		return zero, err
	}

	log.Debug().Str("scope", scope).
		Msg("hub: unauthenticated request rejected, retrying with exchanged token")

	token, exchangeErr := c.exchange(ctx, scope, kind)
	if exchangeErr != nil {
		var zero T
		return zero, exchangeErr
	}

	result, err = call(ctx, token)
	if err != nil {
		var zero T
		return zero, &AuthFailedError{Scope: scope, Err: err}
	}

	return result, nil
}

func (c *Client) exchange(ctx context.Context, scope string, kind TokenKind) (string, error) {
	switch kind {
	case RegistryAuth:
		return c.RegistryToken(ctx, scope)
	default:
		return c.SessionToken(ctx)
	}
}

package hub

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

// PullScope returns the registry token scope granting pull access to a
// repository.
func PullScope(namespace, repository string) string {
	return fmt.Sprintf("repository:%s/%s:pull", namespace, repository)
}

// RegistryToken exchanges the configured credential for a short-lived bearer
// token accepted by the distribution API, scoped to a single resource-action
// pair. Hub has historically accepted personal access tokens either as a
// basic-auth password or directly as a bearer on the exchange request; both
// forms are probed, password form first.
//
// Tokens are cached by credential fingerprint and scope, so repeated calls
// within the token lifetime cost no upstream round trip.
func (c *Client) RegistryToken(ctx context.Context, scope string) (string, error) {
	if !c.HasCredential() {
		return "", &AuthFailedError{Scope: scope, Err: fmt.Errorf("no credential configured")}
	}

	cacheKey := "registry:" + c.credentialFingerprint() + ":" + scope
	if token, ok := c.cachedToken(ctx, cacheKey); ok {
		return token, nil
	}

	exchangeURL := fmt.Sprintf("%s/token?service=%s&scope=%s",
		c.authURL, url.QueryEscape(c.authService), url.QueryEscape(scope))

	// password form: credential presented as basic-auth password
	token, err := c.requestRegistryToken(ctx, exchangeURL, func(req *http.Request) {
		req.SetBasicAuth(c.username, c.accessToken)
	})
	if err != nil {
		if !authShaped(err) {
			return "", &AuthFailedError{Scope: scope, Err: err}
		}

		log.Debug().Str("scope", scope).
			Msg("hub: password-form token exchange rejected, probing bearer form")

		// bearer form: credential presented directly as a bearer token
		token, err = c.requestRegistryToken(ctx, exchangeURL, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+c.accessToken)
		})
		if err != nil {
			return "", &AuthFailedError{Scope: scope, Err: err}
		}
	}

	c.storeToken(ctx, cacheKey, token)
	return token, nil
}

// SessionToken exchanges the configured credential for a metadata-API
// session token via the login endpoint. The returned token is a JWT; its
// expiry claim is inspected so near-expired tokens are never cached.
func (c *Client) SessionToken(ctx context.Context) (string, error) {
	if !c.HasCredential() {
		return "", &AuthFailedError{Err: fmt.Errorf("no credential configured")}
	}

	cacheKey := "session:" + c.credentialFingerprint()
	if token, ok := c.cachedToken(ctx, cacheKey); ok {
		return token, nil
	}

	credentials, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.accessToken,
	})
	if err != nil {
		return "", fmt.Errorf("encoding login request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.apiURL+"/v2/users/login",
		"", strings.NewReader(string(credentials)), "application/json")
	if err != nil {
		return "", &AuthFailedError{Err: err}
	}
	defer resp.Body.Close()

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &AuthFailedError{Err: fmt.Errorf("decoding login response: %w", err)}
	}
	if body.Token == "" {
		return "", &AuthFailedError{Err: fmt.Errorf("login response contained no token")}
	}

	if sessionTokenCacheable(body.Token) {
		c.storeToken(ctx, cacheKey, body.Token)
	}

	return body.Token, nil
}

// requestRegistryToken performs one token-exchange GET with the given
// authorization applied, returning the issued token.
func (c *Client) requestRegistryToken(ctx context.Context, exchangeURL string, authorize func(*http.Request)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exchangeURL, nil)
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return "", err
	}

	// the token endpoint answers with either "token" or "access_token"
	// depending on the grant path taken
	var body struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	token := body.Token
	if token == "" {
		token = body.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("token response contained no token")
	}

	return token, nil
}

// credentialFingerprint produces a short stable identifier for the
// configured credential, used only for cache keying. The credential itself
// never appears in a cache key.
func (c *Client) credentialFingerprint() string {
	h := blake3.New()
	io.WriteString(h, c.username)
	io.WriteString(h, "\x00")
	io.WriteString(h, c.accessToken)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *Client) cachedToken(ctx context.Context, key string) (string, bool) {
	if c.tokens == nil {
		return "", false
	}

	token, found, err := c.tokens.Get(ctx, key)
	if err != nil || !found {
		return "", false
	}
	return token, true
}

func (c *Client) storeToken(ctx context.Context, key, token string) {
	if c.tokens == nil {
		return
	}
	if err := c.tokens.Set(ctx, key, token); err != nil {
		log.Warn().Err(err).Msg("hub: failed to cache ephemeral token")
	}
}

// sessionTokenCacheable parses the session JWT without verification and
// reports whether it lives long enough to be worth caching. Verification is
// the upstream's job; only the expiry claim matters here.
func sessionTokenCacheable(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// opaque (non-JWT) tokens are cached on the cache's own TTL
		return true
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return true
	}

	return time.Until(expiry.Time) > time.Minute
}

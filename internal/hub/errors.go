package hub

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is an upstream response outside the 2xx range. The message is
// redacted before construction, so it is safe to surface to callers.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream responded %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("upstream responded %d: %s", e.Code, e.Message)
}

// Status provides the HTTP status mapping used by the outer handler layer.
func (e *StatusError) Status() (int, string) {
	return e.Code, e.Message
}

// AuthFailedError indicates that the credential exchange or the
// authenticated retry was rejected. It never carries credential or token
// material: the wrapped cause has already been redacted.
type AuthFailedError struct {
	Scope string
	Err   error
}

func (e *AuthFailedError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed for scope %q: %v", e.Scope, e.Err)
}

func (e *AuthFailedError) Unwrap() error {
	return e.Err
}

// Status maps authentication failures to 401 for the handler layer.
func (e *AuthFailedError) Status() (int, string) {
	return http.StatusUnauthorized, "authentication failed"
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// IsAuthFailed reports whether err is an authentication failure.
func IsAuthFailed(err error) bool {
	var ae *AuthFailedError
	return errors.As(err, &ae)
}

// authShaped reports whether an upstream failure should trigger the
// authenticated retry. Docker Hub reports private resources as 404 to
// anonymous callers, so "not found" is treated the same as "unauthorized":
// with a credential configured a genuinely missing public resource pays one
// exchange round trip before failing, which is accepted here in exchange for
// private resources being reachable at all.
func authShaped(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusUnauthorized || se.Code == http.StatusNotFound
}

// redact removes credential material from text destined for error messages
// or logs. Upstream error bodies can echo request parameters, so every
// secret known to the client is scrubbed before the text escapes.
func redact(text string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, secret, "[REDACTED]")
	}
	return text
}

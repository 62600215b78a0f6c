package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// MockHubServer is a configurable stand-in for the hub.docker.com metadata
// API, with request and auth-header capture.
type MockHubServer struct {
	Server *httptest.Server

	// SessionToken is issued by the login endpoint.
	SessionToken string

	// LoginStatusCode lets tests reject the login exchange.
	LoginStatusCode int

	// Responses maps request paths (without query) to JSON payloads.
	Responses map[string]any

	// PrivatePaths lists paths that answer 401 to anonymous requests and
	// serve their payload only with the session token attached.
	PrivatePaths map[string]bool

	RequestCount   int
	LoginCount     int
	LastAuthHeader string
}

// SetupMockHubServer creates a mock metadata API handling login and
// configured GET/DELETE paths.
func SetupMockHubServer(t *testing.T) *MockHubServer {
	t.Helper()

	mock := &MockHubServer{
		SessionToken:    "test-session-token",
		LoginStatusCode: http.StatusOK,
		Responses:       map[string]any{},
		PrivatePaths:    map[string]bool{},
	}

	router := http.NewServeMux()

	router.HandleFunc("POST /v2/users/login", func(w http.ResponseWriter, r *http.Request) {
		mock.LoginCount++

		if mock.LoginStatusCode != http.StatusOK {
			w.WriteHeader(mock.LoginStatusCode)
			return
		}

		WriteJSON(w, map[string]string{"token": mock.SessionToken})
	})

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mock.RequestCount++
		mock.LastAuthHeader = r.Header.Get("Authorization")

		payload, ok := mock.Responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			WriteJSON(w, map[string]string{"message": "object not found"})
			return
		}

		if mock.PrivatePaths[r.URL.Path] &&
			r.Header.Get("Authorization") != "Bearer "+mock.SessionToken {
			w.WriteHeader(http.StatusUnauthorized)
			WriteJSON(w, map[string]string{"detail": "authentication required"})
			return
		}

		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		WriteJSON(w, payload)
	})

	mock.Server = httptest.NewServer(router)
	t.Cleanup(mock.Server.Close)
	return mock
}

// MockAuthServer is a configurable stand-in for the auth.docker.io token
// endpoint.
type MockAuthServer struct {
	Server *httptest.Server

	// Token is the ephemeral token issued on successful exchange.
	Token string

	// AcceptPassword controls whether the basic-auth password form of the
	// exchange succeeds; when false only the bearer form is accepted.
	AcceptPassword bool

	// AcceptBearer controls whether the bearer form succeeds.
	AcceptBearer bool

	// Credential is the personal access token expected from the client.
	Credential string

	ExchangeCount int
	LastScope     string
}

// SetupMockAuthServer creates a mock token endpoint probing both credential
// presentation forms.
func SetupMockAuthServer(t *testing.T) *MockAuthServer {
	t.Helper()

	mock := &MockAuthServer{
		Token:          "ephemeral-registry-token",
		AcceptPassword: true,
		AcceptBearer:   true,
		Credential:     "test-access-token",
	}

	router := http.NewServeMux()

	router.HandleFunc("GET /token", func(w http.ResponseWriter, r *http.Request) {
		mock.ExchangeCount++
		mock.LastScope = r.URL.Query().Get("scope")

		authorized := false
		if _, password, ok := r.BasicAuth(); ok {
			authorized = mock.AcceptPassword && password == mock.Credential
		} else if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			authorized = mock.AcceptBearer && bearer == mock.Credential
		}

		if !authorized {
			w.WriteHeader(http.StatusUnauthorized)
			WriteJSON(w, map[string]string{"details": "incorrect username or password"})
			return
		}

		WriteJSON(w, map[string]string{"token": mock.Token})
	})

	mock.Server = httptest.NewServer(router)
	t.Cleanup(mock.Server.Close)
	return mock
}

// MockRegistryServer is a configurable stand-in for the
// registry-1.docker.io distribution API.
type MockRegistryServer struct {
	Server *httptest.Server

	// ValidToken is the bearer the registry accepts. Anonymous requests
	// are rejected 401, matching the real distribution API.
	ValidToken string

	// Manifests maps "/v2/{ns}/{repo}/manifests/{ref}" to documents.
	Manifests map[string]any

	// Blobs maps "/v2/{ns}/{repo}/blobs/{digest}" to documents.
	Blobs map[string]any

	// Public marks the registry as serving anonymous requests, for tests
	// that exercise the no-escalation path.
	Public bool

	RequestCount   int
	LastAuthHeader string
}

// SetupMockRegistryServer creates a mock distribution API serving
// configured manifests and config blobs.
func SetupMockRegistryServer(t *testing.T) *MockRegistryServer {
	t.Helper()

	mock := &MockRegistryServer{
		ValidToken: "ephemeral-registry-token",
		Manifests:  map[string]any{},
		Blobs:      map[string]any{},
	}

	router := http.NewServeMux()

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mock.RequestCount++
		mock.LastAuthHeader = r.Header.Get("Authorization")

		if !mock.Public && r.Header.Get("Authorization") != "Bearer "+mock.ValidToken {
			w.WriteHeader(http.StatusUnauthorized)
			WriteJSON(w, map[string]any{"errors": []map[string]string{{"code": "UNAUTHORIZED"}}})
			return
		}

		if payload, ok := mock.Manifests[r.URL.Path]; ok {
			WriteJSON(w, payload)
			return
		}
		if payload, ok := mock.Blobs[r.URL.Path]; ok {
			WriteJSON(w, payload)
			return
		}

		w.WriteHeader(http.StatusNotFound)
		WriteJSON(w, map[string]any{"errors": []map[string]string{{"code": "MANIFEST_UNKNOWN"}}})
	})

	mock.Server = httptest.NewServer(router)
	t.Cleanup(mock.Server.Close)
	return mock
}

// WriteJSON writes a JSON response with the appropriate content type.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "marshal failure", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

package devserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avelin/chatter/internal/devserver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := devserver.New(devserver.Config{}, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, token string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func register(t *testing.T, ts *httptest.Server, email string) map[string]any {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/auth/register", "", map[string]any{
		"email":     email,
		"password":  "motdepasse8",
		"full_name": "Marie Dupont",
		"company":   "Avelin",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode(t, resp)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	body := register(t, ts, "marie@example.com")
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "marie@example.com", user["email"])
	assert.Equal(t, "Marie Dupont", user["full_name"])
	assert.Equal(t, "user", user["role"])

	t.Run("duplicate email rejected", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/auth/register", "", map[string]any{
			"email":     "marie@example.com",
			"password":  "motdepasse8",
			"full_name": "Marie Dupont",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "email already registered", decode(t, resp)["detail"])
	})

	t.Run("login succeeds", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/auth/login", "", map[string]any{
			"email":    "marie@example.com",
			"password": "motdepasse8",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode(t, resp)
		assert.NotEmpty(t, body["access_token"])
		assert.NotEmpty(t, body["refresh_token"])
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/auth/login", "", map[string]any{
			"email":    "marie@example.com",
			"password": "mauvais-mdp",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid credentials", decode(t, resp)["detail"])
	})

	t.Run("unknown email rejected", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/auth/login", "", map[string]any{
			"email":    "inconnue@example.com",
			"password": "motdepasse8",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"missing email", map[string]any{"password": "motdepasse8", "full_name": "X"}},
		{"malformed email", map[string]any{"email": "pas-un-email", "password": "motdepasse8", "full_name": "X"}},
		{"short password", map[string]any{"email": "a@b.fr", "password": "court", "full_name": "X"}},
		{"missing full name", map[string]any{"email": "a@b.fr", "password": "motdepasse8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/auth/register", "", tt.payload)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRefresh(t *testing.T) {
	ts := newTestServer(t)
	body := register(t, ts, "marie@example.com")
	refreshToken := body["refresh_token"].(string)

	t.Run("valid refresh token", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/auth/refresh", "", map[string]any{
			"refresh_token": refreshToken,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode(t, resp)
		assert.NotEmpty(t, got["access_token"])
		// No rotation: the response carries no refresh token.
		assert.Nil(t, got["refresh_token"])
		user := got["user"].(map[string]any)
		assert.Equal(t, "marie@example.com", user["email"])
	})

	t.Run("garbage refresh token", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/auth/refresh", "", map[string]any{
			"refresh_token": "garbage",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)
	body := register(t, ts, "marie@example.com")
	accessToken := body["access_token"].(string)

	t.Run("with token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/me", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+accessToken)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode(t, resp)
		assert.Equal(t, "marie@example.com", got["email"])
	})

	t.Run("without token", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/auth/me")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestChatAnonymous(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/chat", "", map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": "Bonjour"},
		},
		"model":       "mistral",
		"temperature": 0.7,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Réponse de développement à : Bonjour", body["response"])
	assert.NotEmpty(t, body["timestamp"])
	sources := body["sources"].([]any)
	require.Len(t, sources, 2)
	first := sources[0].(map[string]any)
	assert.Equal(t, "Document de démonstration A", first["text"])
	assert.Equal(t, 0.92, first["score"])
}

func TestChatAnonymous_EmptyHistory(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/chat", "", map[string]any{"messages": []map[string]string{}})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatProtected(t *testing.T) {
	ts := newTestServer(t)
	body := register(t, ts, "marie@example.com")
	accessToken := body["access_token"].(string)

	t.Run("authenticated", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/chat/protected", accessToken, map[string]any{
			"message":         "Bonjour",
			"conversation_id": "conv-1",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode(t, resp)
		assert.Equal(t, "Réponse de développement à : Bonjour", got["response"])
	})

	t.Run("missing message", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/chat/protected", accessToken, map[string]any{
			"conversation_id": "conv-1",
		})
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("no token", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/chat/protected", "", map[string]any{"message": "Bonjour"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bad token", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/chat/protected", "not-a-jwt", map[string]any{"message": "Bonjour"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

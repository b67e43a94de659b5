package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCookieClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func postJSON(t *testing.T, client *http.Client, url string, payload interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(data))
	require.NoError(t, err)
	return resp
}

func TestRefreshRotation(t *testing.T) {
	e := newTestEnv(t)
	e.whitelist(t, "member@example.com", false)

	client := newCookieClient(t)

	resp := postJSON(t, client, e.server.URL+"/api/auth/register", map[string]string{
		"email":    "member@example.com",
		"password": "password123",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The register response set the refresh cookie; rotate it
	resp = postJSON(t, client, e.server.URL+"/api/auth/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.NotEmpty(t, body.Tokens.AccessToken)

	// Rotation replaced the cookie, so a second refresh also works
	resp = postJSON(t, client, e.server.URL+"/api/auth/refresh", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshWithoutCookie(t *testing.T) {
	e := newTestEnv(t)

	client := newCookieClient(t)
	resp := postJSON(t, client, e.server.URL+"/api/auth/refresh", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	e := newTestEnv(t)
	e.whitelist(t, "member@example.com", false)

	client := newCookieClient(t)

	resp := postJSON(t, client, e.server.URL+"/api/auth/register", map[string]string{
		"email":    "member@example.com",
		"password": "password123",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, client, e.server.URL+"/api/auth/logout", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, client, e.server.URL+"/api/auth/refresh", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

//go:build integration

package integration

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/askpaper/askpaper/internal/pkg/httputil"
	"github.com/askpaper/askpaper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_Register_Login_Flow(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail()
	password := "password123"

	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"email":     email,
		"password":  password,
		"full_name": "Flow Tester",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var registerResult struct {
		Data struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &registerResult)
	assert.Equal(t, email, registerResult.Data.Email)
	assert.Equal(t, "user", registerResult.Data.Role)
	assert.NotEmpty(t, registerResult.Data.ID)

	resp, err = client.POST("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Both token cookies are set and inaccessible to scripts.
	var hasAccessToken, hasRefreshToken bool
	for _, c := range resp.Cookies() {
		switch c.Name {
		case httputil.AccessTokenCookie:
			hasAccessToken = true
			assert.True(t, c.HttpOnly)
			assert.Equal(t, "/", c.Path)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		case httputil.RefreshTokenCookie:
			hasRefreshToken = true
			assert.True(t, c.HttpOnly)
			assert.Equal(t, "/", c.Path)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		}
	}
	assert.True(t, hasAccessToken, "access_token cookie should be set")
	assert.True(t, hasRefreshToken, "refresh_token cookie should be set")

	var loginResult struct {
		Success     bool   `json:"success"`
		AccessToken string `json:"access_token"`
		User        struct {
			ID        string `json:"id"`
			Email     string `json:"email"`
			FullName  string `json:"full_name"`
			Role      string `json:"role"`
			CreatedAt int64  `json:"created_at"`
		} `json:"user"`
	}
	testutil.DecodeJSON(t, resp, &loginResult)
	assert.True(t, loginResult.Success)
	assert.NotEmpty(t, loginResult.AccessToken)
	assert.Equal(t, email, loginResult.User.Email)
	assert.Equal(t, "Flow Tester", loginResult.User.FullName)
	assert.Positive(t, loginResult.User.CreatedAt, "created_at should be Unix seconds")

	// The session cookie authenticates /me.
	resp, err = client.GET("/api/v1/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var meResult struct {
		Data struct {
			Email string `json:"email"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &meResult)
	assert.Equal(t, email, meResult.Data.Email)
}

func TestAuth_Register_DuplicateEmail(t *testing.T) {
	client := newTestClient(t)
	_, email := registerTestUser(t, client, "password123")

	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"email":     email,
		"password":  "password123",
		"full_name": "Duplicate",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var result struct {
		Detail string `json:"detail"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.NotEmpty(t, result.Detail)
}

func TestAuth_Login_UnknownEmail(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/auth/login", map[string]string{
		"email":    "nonexistent@example.com",
		"password": "whatever1",
	})
	require.NoError(t, err)

	// Unknown email is a 404, distinct from a bad password.
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_Login_WrongPassword(t *testing.T) {
	client := newTestClient(t)
	_, email := registerTestUser(t, client, "password123")

	resp, err := client.POST("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "wrong-password",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_SilentRefresh(t *testing.T) {
	client := newTestClient(t)
	_, email := registerTestUser(t, client, "password123")
	client.LoginAs(t, email, "password123")

	// Drop the access cookie, keep the refresh cookie.
	serverURL, err := url.Parse(testServer.URL)
	require.NoError(t, err)

	var refreshCookie *http.Cookie
	for _, c := range client.HTTPClient.Jar.Cookies(serverURL) {
		if c.Name == httputil.RefreshTokenCookie {
			refreshCookie = c
		}
	}
	require.NotNil(t, refreshCookie)
	client.ClearToken()
	client.HTTPClient.Jar.SetCookies(serverURL, []*http.Cookie{refreshCookie})

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A fresh access cookie is minted from the refresh token.
	var minted bool
	for _, c := range resp.Cookies() {
		if c.Name == httputil.AccessTokenCookie && c.Value != "" {
			minted = true
		}
	}
	assert.True(t, minted, "a replacement access cookie should be set")

	var meResult struct {
		Data struct {
			Email string `json:"email"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &meResult)
	assert.Equal(t, email, meResult.Data.Email)
}

func TestAuth_NoRefreshMintWhenAccessValid(t *testing.T) {
	client := newTestClient(t)
	_, email := registerTestUser(t, client, "password123")
	client.LoginAs(t, email, "password123")

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, c := range resp.Cookies() {
		assert.NotEqual(t, httputil.AccessTokenCookie, c.Name,
			"no access cookie should be re-set while the current one is valid")
	}
	_ = resp.Body.Close()
}

func TestAuth_Logout(t *testing.T) {
	client := newTestClient(t)
	_, email := registerTestUser(t, client, "password123")
	client.LoginAs(t, email, "password123")

	resp, err := client.POST("/api/v1/auth/logout", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Both cookies are expired in the response.
	expired := 0
	for _, c := range resp.Cookies() {
		if c.Name == httputil.AccessTokenCookie || c.Name == httputil.RefreshTokenCookie {
			assert.Less(t, c.MaxAge, 0, "cookie %s should be expired", c.Name)
			expired++
		}
	}
	assert.Equal(t, 2, expired)
	_ = resp.Body.Close()

	resp, err = client.GET("/api/v1/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_Logout_WithoutSession(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/auth/logout", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_ProtectedRouteWithoutTokens(t *testing.T) {
	client := newTestClientWithoutValidation()

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var result struct {
		Detail string `json:"detail"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "authentication required", result.Detail)
}

func TestAuth_BearerHeaderAuth(t *testing.T) {
	client := newTestClient(t)
	_, email := registerTestUser(t, client, "password123")

	resp, err := client.POST("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "password123",
	})
	require.NoError(t, err)

	var loginResult struct {
		AccessToken string `json:"access_token"`
	}
	testutil.DecodeJSON(t, resp, &loginResult)
	require.NotEmpty(t, loginResult.AccessToken)

	// A cookie-less client can authenticate with the raw token.
	headerClient := newTestClient(t)
	headerClient.Token = loginResult.AccessToken

	resp, err = headerClient.GET("/api/v1/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_DeletedUserSessionRejected(t *testing.T) {
	client := newTestClient(t)
	id, email := registerTestUser(t, client, "password123")
	client.LoginAs(t, email, "password123")

	deleteUserByID(t, id)

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

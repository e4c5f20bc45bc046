//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/askpaper/askpaper/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_GetByID(t *testing.T) {
	client := newTestClient(t)
	id, email := registerTestUser(t, client, "password123")
	client.LoginAs(t, email, "password123")

	resp, err := client.GET("/api/v1/users/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, id, result.Data.ID)
	assert.Equal(t, email, result.Data.Email)
}

func TestUsers_GetByID_NotFound(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		resp, err := client.GET("/api/v1/users/" + id)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "id %s", id)
		_ = resp.Body.Close()
	}
}

func TestUsers_PartialUpdate(t *testing.T) {
	client := newTestClient(t)
	id, email := registerTestUser(t, client, "password123")
	client.LoginAs(t, email, "password123")

	resp, err := client.PATCH("/api/v1/users/"+id, map[string]string{
		"full_name": "Renamed User",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Email    string `json:"email"`
			FullName string `json:"full_name"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "Renamed User", result.Data.FullName)
	assert.Equal(t, email, result.Data.Email, "omitted fields stay unchanged")
}

func TestUsers_UpdatePassword(t *testing.T) {
	client := newTestClient(t)
	id, email := registerTestUser(t, client, "password123")
	client.LoginAs(t, email, "password123")

	resp, err := client.PATCH("/api/v1/users/"+id, map[string]string{
		"password": "new-password",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// Old password stops working, the new one logs in.
	fresh := newTestClientWithoutValidation()
	resp, err = fresh.POST("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	fresh.LoginAs(t, email, "new-password")
}

func TestUsers_UpdateEmailConflict(t *testing.T) {
	client := newTestClient(t)
	_, takenEmail := registerTestUser(t, client, "password123")
	id, email := registerTestUser(t, client, "password123")
	client.LoginAs(t, email, "password123")

	resp, err := client.PATCH("/api/v1/users/"+id, map[string]string{
		"email": takenEmail,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestUsers_Delete(t *testing.T) {
	client := newTestClient(t)
	id, email := registerTestUser(t, client, "password123")
	client.LoginAs(t, email, "password123")

	resp, err := client.DELETE("/api/v1/users/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.WithoutValidation().GET("/api/v1/users/" + id)
	require.NoError(t, err)
	// The deleting session belonged to the deleted user.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

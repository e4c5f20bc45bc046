//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/askpaper/askpaper/internal/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// seedAccounts inserts the well-known login accounts used across tests.
func seedAccounts(ctx context.Context) error {
	accounts := []struct {
		email    string
		password string
		fullName string
		role     string
	}{
		{"admin@example.com", "admin123", "Admin", "admin"},
		{"moderator@example.com", "admin123", "Moderator", "moderator"},
		{"user@example.com", "user123", "Regular User", "user"},
	}

	for _, account := range accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(account.password), bcrypt.MinCost)
		if err != nil {
			return err
		}
		_, err = testDB.Exec(ctx, `
			INSERT INTO users (email, password_hash, full_name, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO NOTHING
		`, account.email, string(hash), account.fullName, account.role)
		if err != nil {
			return err
		}
	}
	return nil
}

// registerTestUser creates a fresh user via the API and returns its id
// and email. The caller owns cleanup via bulk-delete or cascade.
func registerTestUser(t *testing.T, client *testutil.Client, password string) (id, email string) {
	t.Helper()

	email = testutil.RandomEmail()
	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"email":     email,
		"password":  password,
		"full_name": "Test User",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data.ID)
	return result.Data.ID, email
}

// uploadDocument uploads a file for the logged-in client and returns the
// document id.
func uploadDocument(t *testing.T, client *testutil.Client, filename, content string) string {
	t.Helper()

	resp, err := client.PostMultipart("/api/v1/rag/documents", nil, map[string][2]string{
		"file": {filename, content},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.Equal(t, "pending", result.Data.Status)
	return result.Data.ID
}

// waitForDocumentStatus polls the document list until the document
// reaches the wanted status or the timeout elapses.
func waitForDocumentStatus(t *testing.T, client *testutil.Client, documentID, want string) {
	t.Helper()

	require.Eventually(t, func() bool {
		resp, err := client.GET("/api/v1/rag/documents")
		if err != nil {
			return false
		}
		var result struct {
			Data []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"data"`
		}
		testutil.DecodeJSON(t, resp, &result)
		for _, doc := range result.Data {
			if doc.ID == documentID {
				return doc.Status == want
			}
		}
		return false
	}, 10*time.Second, 100*time.Millisecond, "document %s should reach status %s", documentID, want)
}

// pinDocumentPending forces a document back to pending and pushes its
// next attempt far into the future so the indexer leaves it alone.
func pinDocumentPending(t *testing.T, id string) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `
		UPDATE documents
		SET status = 'pending', next_attempt_at = now() + interval '1 hour'
		WHERE id = $1
	`, id)
	require.NoError(t, err)
}

// deleteUserByID removes a user directly from the database.
func deleteUserByID(t *testing.T, id string) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	require.NoError(t, err)
}

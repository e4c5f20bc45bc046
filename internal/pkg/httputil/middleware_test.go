package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/askpaper/askpaper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver implements SessionResolver with canned results.
type stubResolver struct {
	user           *domain.User
	newAccessToken string
	err            error

	gotAccess  string
	gotRefresh string
}

func (s *stubResolver) ResolveSession(_ context.Context, accessToken, refreshToken string) (*domain.User, string, error) {
	s.gotAccess = accessToken
	s.gotRefresh = refreshToken
	return s.user, s.newAccessToken, s.err
}

var testSettings = CookieSettings{
	Secure:     false,
	AccessTTL:  5 * time.Minute,
	RefreshTTL: 30 * 24 * time.Hour,
}

// echoUserHandler writes the resolved user's email, or "anonymous".
func echoUserHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := GetUser(r.Context()); user != nil {
			Text(w, http.StatusOK, user.Email)
			return
		}
		Text(w, http.StatusOK, "anonymous")
	})
}

func TestSessionMiddleware_NoCookies(t *testing.T) {
	resolver := &stubResolver{}
	handler := SessionMiddleware(resolver, testSettings)(echoUserHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
	assert.Empty(t, rec.Result().Cookies(), "no cookies should be set")
}

func TestSessionMiddleware_ValidAccessCookie(t *testing.T) {
	resolver := &stubResolver{user: &domain.User{Email: "test@example.com", Role: domain.RoleUser}}
	handler := SessionMiddleware(resolver, testSettings)(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "valid-access"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "test@example.com", rec.Body.String())
	assert.Equal(t, "valid-access", resolver.gotAccess)
	assert.Empty(t, rec.Result().Cookies(), "no cookie should be set when nothing was minted")
}

func TestSessionMiddleware_SilentRefresh(t *testing.T) {
	resolver := &stubResolver{
		user:           &domain.User{Email: "test@example.com", Role: domain.RoleUser},
		newAccessToken: "minted-access",
	}
	handler := SessionMiddleware(resolver, testSettings)(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "valid-refresh"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "test@example.com", rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1, "exactly the minted access cookie should be set")
	cookie := cookies[0]
	assert.Equal(t, AccessTokenCookie, cookie.Name)
	assert.Equal(t, "minted-access", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int(testSettings.AccessTTL.Seconds()), cookie.MaxAge)
}

func TestSessionMiddleware_BearerHeader(t *testing.T) {
	resolver := &stubResolver{user: &domain.User{Email: "test@example.com"}}
	handler := SessionMiddleware(resolver, testSettings)(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "header-token", resolver.gotAccess)
	assert.Equal(t, "test@example.com", rec.Body.String())
}

func TestSessionMiddleware_UnusableTokensPassThrough(t *testing.T) {
	// Resolver returns no user and no error: the request continues
	// anonymously instead of failing.
	resolver := &stubResolver{}
	handler := SessionMiddleware(resolver, testSettings)(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "expired"})
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "expired"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestSessionMiddleware_ResolverError(t *testing.T) {
	resolver := &stubResolver{err: errors.New("db down")}
	handler := SessionMiddleware(resolver, testSettings)(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "anything"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"internal error"}`, rec.Body.String())
}

func TestRequireAuth(t *testing.T) {
	handler := RequireAuth(echoUserHandler())

	t.Run("unauthenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"detail":"authentication required"}`, rec.Body.String())
	})

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), &domain.User{Email: "test@example.com"}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireRole(domain.RoleAdmin)(ok)

	t.Run("unauthenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), &domain.User{Role: domain.RoleUser}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"detail":"access denied, required role: admin"}`, rec.Body.String())
	})

	t.Run("moderator is not admin", func(t *testing.T) {
		// Membership is exact, moderator does not inherit admin access.
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), &domain.User{Role: domain.RoleModerator}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("allowed role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), &domain.User{Role: domain.RoleAdmin}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestClearAuthCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearAuthCookies(rec, testSettings)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, cookie := range cookies {
		assert.Empty(t, cookie.Value)
		assert.Negative(t, cookie.MaxAge, "cookie %s should be expired", cookie.Name)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, bearerToken(req), "header %q", tt.header)
	}
}

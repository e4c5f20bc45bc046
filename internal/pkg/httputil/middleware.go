package httputil

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/askpaper/askpaper/internal/domain"
)

// Cookie names for the token pair.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieSettings controls attributes of the authentication cookies.
type CookieSettings struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// CORSMiddleware creates CORS middleware that handles preflight requests
// and adds appropriate CORS headers to responses.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if originsSet[origin] || originsSet["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

const userKey contextKey = "user"

// SessionResolver resolves the token pair carried by a request into an
// identity. A non-empty newAccessToken means the access token was minted
// from the refresh token and must be handed back to the client.
// An unusable token pair yields (nil, "", nil): resolution itself never
// produces an HTTP error.
type SessionResolver interface {
	ResolveSession(ctx context.Context, accessToken, refreshToken string) (user *domain.User, newAccessToken string, err error)
}

// SessionMiddleware resolves the request's auth cookies into an identity
// stored in the request context. When the resolver mints a fresh access
// token the middleware sets it as a cookie on the response; when the
// access token alone was sufficient no cookie is touched.
//
// A bearer Authorization header is accepted in place of the access cookie
// for non-browser clients. Requests without a usable identity pass through
// unauthenticated; gating is left to RequireAuth and RequireRole.
func SessionMiddleware(resolver SessionResolver, settings CookieSettings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessToken := bearerToken(r)
			if accessToken == "" {
				if c, err := r.Cookie(AccessTokenCookie); err == nil {
					accessToken = c.Value
				}
			}

			var refreshToken string
			if c, err := r.Cookie(RefreshTokenCookie); err == nil {
				refreshToken = c.Value
			}

			if accessToken == "" && refreshToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, newAccessToken, err := resolver.ResolveSession(r.Context(), accessToken, refreshToken)
			if err != nil {
				Error(w, http.StatusInternalServerError, "internal error")
				return
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}

			if newAccessToken != "" {
				SetAccessCookie(w, newAccessToken, settings)
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that did not resolve to an identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r.Context()) == nil {
			Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole creates middleware restricting a route to an allowed role
// set. Membership is exact: there is no hierarchy among roles.
func RequireRole(allowed ...domain.Role) func(http.Handler) http.Handler {
	names := make([]string, len(allowed))
	for i, role := range allowed {
		names[i] = string(role)
	}
	detail := "access denied, required role: " + strings.Join(names, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				Error(w, http.StatusUnauthorized, "authentication required")
				return
			}

			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			Error(w, http.StatusForbidden, detail)
		})
	}
}

// GetUser extracts the authenticated user from context.
// Returns nil for unauthenticated requests.
func GetUser(ctx context.Context) *domain.User {
	if user, ok := ctx.Value(userKey).(*domain.User); ok {
		return user
	}
	return nil
}

// WithUser returns a context carrying the given identity. Exported for tests.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// SetAccessCookie sets the short-lived access token cookie.
func SetAccessCookie(w http.ResponseWriter, token string, settings CookieSettings) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(settings.AccessTTL.Seconds()),
		HttpOnly: true,
		Secure:   settings.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetRefreshCookie sets the long-lived refresh token cookie.
func SetRefreshCookie(w http.ResponseWriter, token string, settings CookieSettings) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(settings.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   settings.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAuthCookies removes both auth cookies by setting Max-Age < 0.
func ClearAuthCookies(w http.ResponseWriter, settings CookieSettings) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   settings.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// bearerToken extracts a bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

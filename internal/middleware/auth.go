package middleware

import (
	"net/http"

	"github.com/agng-dev/montron/internal/auth"
	"github.com/agng-dev/montron/internal/store"
)

const sessionCookieName = "montron_session"

// authenticate resolves the request's identity from either a Bearer token or
// the session cookie. Returns (AuthContext, true) on success.
func authenticate(r *http.Request, jwtManager *auth.JWTManager, sessionStore *store.SessionStore, userStore *store.UserStore) (auth.AuthContext, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, err := auth.ExtractToken(header)
		if err != nil {
			return auth.AuthContext{}, false
		}
		claims, err := jwtManager.ValidateToken(token)
		if err != nil {
			return auth.AuthContext{}, false
		}
		return auth.AuthContext{UserID: claims.UserID, Role: claims.Role}, true
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return auth.AuthContext{}, false
	}
	sess, err := sessionStore.GetByToken(cookie.Value)
	if err != nil || sess == nil {
		return auth.AuthContext{}, false
	}
	user, err := userStore.GetByID(sess.UserID)
	if err != nil || user == nil {
		return auth.AuthContext{}, false
	}
	return auth.AuthContext{
		UserID:       user.ID,
		Role:         user.Role,
		SessionToken: sess.Token,
	}, true
}

// RequireAuth protects browser pages. Unauthenticated requests redirect to
// /login; HTMX requests get an HX-Redirect header instead of a 303.
func RequireAuth(jwtManager *auth.JWTManager, sessionStore *store.SessionStore, userStore *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := authenticate(r, jwtManager, sessionStore, userStore)
			if !ok {
				redirectToLogin(w, r)
				return
			}
			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAPIAuth protects JSON endpoints. Unauthenticated requests get 401.
func RequireAPIAuth(jwtManager *auth.JWTManager, sessionStore *store.SessionStore, userStore *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := authenticate(r, jwtManager, sessionStore, userStore)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/login")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

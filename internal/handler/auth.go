package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agng-dev/montron/internal/auth"
	"github.com/agng-dev/montron/internal/model"
	"github.com/agng-dev/montron/internal/store"
)

const sessionCookieName = "montron_session"

type AuthHandler struct {
	users      *store.UserStore
	sessions   *store.SessionStore
	jwtManager *auth.JWTManager
	firebase   *auth.FirebaseVerifier
	logger     *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ss *store.SessionStore,
	jm *auth.JWTManager,
	fv *auth.FirebaseVerifier,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:      us,
		sessions:   ss,
		jwtManager: jm,
		firebase:   fv,
		logger:     logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string      `json:"accessToken"`
	User        *model.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "E-Mail und Passwort sind erforderlich")
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Same response for unknown user and wrong password, no enumeration.
	if user == nil || user.PasswordHash == "" {
		writeError(w, http.StatusUnauthorized, "E-Mail oder Passwort ist falsch")
		return
	}
	if err := auth.CheckPassword(req.Password, user.PasswordHash); err != nil {
		writeError(w, http.StatusUnauthorized, "E-Mail oder Passwort ist falsch")
		return
	}

	h.issueSession(w, r, user)
}

type firebaseLoginRequest struct {
	IDToken string `json:"idToken"`
}

// FirebaseLogin exchanges a Firebase ID token for a local session. The
// Firebase client SDK handles the MFA challenge; by the time the token
// reaches us it already reflects a completed sign-in.
func (h *AuthHandler) FirebaseLogin(w http.ResponseWriter, r *http.Request) {
	if h.firebase == nil {
		writeError(w, http.StatusNotImplemented, "Firebase-Anmeldung ist nicht konfiguriert")
		return
	}

	var req firebaseLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.IDToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	uid, err := h.firebase.VerifyIDToken(r.Context(), req.IDToken)
	if err != nil {
		h.logger.Warn("firebase token rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "Anmeldung fehlgeschlagen")
		return
	}

	user, err := h.users.GetByFirebaseUID(uid)
	if err != nil {
		h.logger.Error("firebase uid lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Kein Benutzerkonto für diese Anmeldung")
		return
	}

	h.issueSession(w, r, user)
}

// Refresh exchanges a valid session cookie for a fresh access token. The
// cookie stays as is; only the short-lived JWT is reissued.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	sess, err := h.sessions.GetByToken(cookie.Value)
	if err != nil {
		h.logger.Error("refresh session lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "session expired")
		return
	}

	user, err := h.users.GetByID(sess.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "session expired")
		return
	}

	token, err := h.jwtManager.GenerateToken(user)
	if err != nil {
		h.logger.Error("generate access token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, User: user})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(cookie.Value); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	if strings.HasPrefix(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Me returns the authenticated user, for page bootstrapping.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	user, err := h.users.GetByID(ac.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, user *model.User) {
	sess, err := h.sessions.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		// Browser form post, the session cookie carries the login.
		if r.Header.Get("HX-Request") == "true" {
			w.Header().Set("HX-Redirect", "/")
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	token, err := h.jwtManager.GenerateToken(user)
	if err != nil {
		h.logger.Error("generate access token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, User: user})
}

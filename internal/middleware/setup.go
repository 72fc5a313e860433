package middleware

import (
	"net/http"
	"strings"

	"github.com/agng-dev/montron/internal/store"
)

// SetupGate enforces the one-time installation flow. While the installation
// is unconfigured, every route except the setup flow (and static assets)
// redirects to /setup. Once configured, the setup flow itself is sealed off.
func SetupGate(configStore *store.ConfigStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, err := configStore.InstallationState()
			if err != nil {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			isSetup := strings.HasPrefix(r.URL.Path, "/setup")
			isStatic := strings.HasPrefix(r.URL.Path, "/static/")

			if !state.Configured() && !isSetup && !isStatic {
				redirectToSetup(w, r)
				return
			}
			if state.Configured() && isSetup && r.URL.Path != "/setup/state" {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func redirectToSetup(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/setup")
		w.WriteHeader(http.StatusOK)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.Error(w, "Setup required", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, "/setup", http.StatusSeeOther)
}

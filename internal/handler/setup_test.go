package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agng-dev/montron/internal/formapi"
	"github.com/agng-dev/montron/internal/model"
	"github.com/agng-dev/montron/internal/secrets"
	"github.com/agng-dev/montron/internal/store"
)

// fakeFormBuilder answers the token info endpoint, accepting exactly one
// service token.
func fakeFormBuilder(t *testing.T, goodToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/token/info" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+goodToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"companyId":   "company-1",
			"companyName": "Gartenbau Wagner GmbH",
			"scopes":      []string{"employees:read", "submissions:read"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSetupFixture(t *testing.T) (*SetupHandler, *store.ConfigStore, *secrets.Box) {
	t.Helper()
	db := openTestDB(t)
	cs := store.NewConfigStore(db)
	box, err := secrets.NewBox("test-passphrase")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	fc := formapi.NewClient(formapi.Config{})
	return NewSetupHandler(cs, fc, box, testLogger()), cs, box
}

func TestSetupStateStartsUnconfigured(t *testing.T) {
	h, _, _ := newSetupFixture(t)

	req := httptest.NewRequest("GET", "/setup/state", nil)
	rec := httptest.NewRecorder()
	h.State(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var state model.InstallationState
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Configured() {
		t.Errorf("state = %s, want unconfigured", state.State)
	}
}

func TestSetupTokenBindsInstallation(t *testing.T) {
	h, cs, box := newSetupFixture(t)
	fb := fakeFormBuilder(t, "valid-service-token")

	body := `{"baseUrl":"` + fb.URL + `","serviceToken":"valid-service-token"}`
	req := httptest.NewRequest("POST", "/setup/token", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Token(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var state model.InstallationState
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !state.Configured() {
		t.Errorf("state = %s, want configured", state.State)
	}
	if state.CompanyName == nil || *state.CompanyName != "Gartenbau Wagner GmbH" {
		t.Errorf("company name = %v, want Gartenbau Wagner GmbH", state.CompanyName)
	}

	// The token lands encrypted and decrypts back to the original.
	stored, err := cs.FormAPIToken()
	if err != nil {
		t.Fatalf("stored token: %v", err)
	}
	if stored == "valid-service-token" {
		t.Error("service token stored in plaintext")
	}
	plain, err := box.Decrypt(stored)
	if err != nil {
		t.Fatalf("decrypt stored token: %v", err)
	}
	if plain != "valid-service-token" {
		t.Errorf("decrypted token = %q, want the original", plain)
	}
}

func TestSetupTokenRejected(t *testing.T) {
	h, cs, _ := newSetupFixture(t)
	fb := fakeFormBuilder(t, "valid-service-token")

	body := `{"baseUrl":"` + fb.URL + `","serviceToken":"wrong-token"}`
	req := httptest.NewRequest("POST", "/setup/token", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Token(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	state, err := cs.InstallationState()
	if err != nil {
		t.Fatalf("installation state: %v", err)
	}
	if state.Configured() {
		t.Error("installation configured despite rejected token")
	}
}

func TestSetupTokenMissingFields(t *testing.T) {
	h, _, _ := newSetupFixture(t)

	req := httptest.NewRequest("POST", "/setup/token", strings.NewReader(`{"baseUrl":"","serviceToken":""}`))
	rec := httptest.NewRecorder()
	h.Token(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestConfigPutValidatesNewToken(t *testing.T) {
	db := openTestDB(t)
	cs := store.NewConfigStore(db)
	box, err := secrets.NewBox("test-passphrase")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	fc := formapi.NewClient(formapi.Config{})
	h := NewConfigHandler(cs, fc, box, testLogger())
	fb := fakeFormBuilder(t, "rotated-token")

	body := `{"baseUrl":"` + fb.URL + `","serviceToken":"rotated-token"}`
	req := httptest.NewRequest("PUT", "/api/config/form-api", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PutFormAPI(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var cfg model.FormAPIConfig
	if err := json.NewDecoder(rec.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.BaseURL != fb.URL || !cfg.TokenSet {
		t.Errorf("config = %+v, want baseUrl %s with token set", cfg, fb.URL)
	}
}

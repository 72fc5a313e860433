package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/agng-dev/montron/internal/model"
)

// Keys in the app_config table.
const (
	keySetupState          = "setup_state"
	keyCompanyID           = "company_id"
	keyCompanyName         = "company_name"
	keyConfiguredAt        = "configured_at"
	keyConfiguredByIP      = "configured_by_ip"
	keyConfiguredUserAgent = "configured_user_agent"
	keyFormAPIBaseURL      = "form_api_base_url"
	keyFormAPIToken        = "form_api_token" // encrypted at rest
)

// ConfigStore holds installation-level key-value configuration: the setup
// state, the Form Builder binding, and the ingest cursors.
type ConfigStore struct {
	db *sql.DB
}

func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

func (s *ConfigStore) get(key string) (*string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config %q: %w", key, err)
	}
	return &value, nil
}

func (s *ConfigStore) set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO app_config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

// InstallationState reads the setup flow state. A fresh database reads as
// UNCONFIGURED.
func (s *ConfigStore) InstallationState() (*model.InstallationState, error) {
	state := &model.InstallationState{State: model.SetupUnconfigured}

	v, err := s.get(keySetupState)
	if err != nil {
		return nil, err
	}
	if v != nil {
		state.State = *v
	}
	if state.CompanyID, err = s.get(keyCompanyID); err != nil {
		return nil, err
	}
	if state.CompanyName, err = s.get(keyCompanyName); err != nil {
		return nil, err
	}
	if v, err = s.get(keyConfiguredAt); err != nil {
		return nil, err
	} else if v != nil {
		if ts, perr := time.Parse(time.RFC3339, *v); perr == nil {
			state.ConfiguredAt = &ts
		}
	}
	if state.ConfiguredByIP, err = s.get(keyConfiguredByIP); err != nil {
		return nil, err
	}
	state.ConfiguredUserAgent, err = s.get(keyConfiguredUserAgent)
	return state, err
}

// MarkConfigured completes the one-time setup, recording who bound the
// installation and from where.
func (s *ConfigStore) MarkConfigured(companyID, companyName, clientIP, userAgent string) error {
	pairs := [][2]string{
		{keySetupState, model.SetupConfigured},
		{keyCompanyID, companyID},
		{keyCompanyName, companyName},
		{keyConfiguredAt, time.Now().UTC().Format(time.RFC3339)},
		{keyConfiguredByIP, clientIP},
		{keyConfiguredUserAgent, userAgent},
	}
	for _, p := range pairs {
		if err := s.set(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

// FormAPIBaseURL returns the configured Form Builder base URL, empty if unset.
func (s *ConfigStore) FormAPIBaseURL() (string, error) {
	v, err := s.get(keyFormAPIBaseURL)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (s *ConfigStore) SetFormAPIBaseURL(baseURL string) error {
	return s.set(keyFormAPIBaseURL, baseURL)
}

// FormAPIToken returns the encrypted service token blob, empty if unset.
// Decryption is the secrets package's job.
func (s *ConfigStore) FormAPIToken() (string, error) {
	v, err := s.get(keyFormAPIToken)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (s *ConfigStore) SetFormAPIToken(encrypted string) error {
	return s.set(keyFormAPIToken, encrypted)
}

// FormAPIConfig assembles the settings view of the binding without ever
// exposing the token itself.
func (s *ConfigStore) FormAPIConfig() (*model.FormAPIConfig, error) {
	baseURL, err := s.FormAPIBaseURL()
	if err != nil {
		return nil, err
	}
	token, err := s.FormAPIToken()
	if err != nil {
		return nil, err
	}
	var updatedAt time.Time
	err = s.db.QueryRow(
		`SELECT COALESCE(MAX(updated_at), CURRENT_TIMESTAMP) FROM app_config WHERE key IN (?, ?)`,
		keyFormAPIBaseURL, keyFormAPIToken,
	).Scan(&updatedAt)
	if err != nil {
		return nil, fmt.Errorf("get form api updated_at: %w", err)
	}
	return &model.FormAPIConfig{
		BaseURL:   baseURL,
		TokenSet:  token != "",
		UpdatedAt: updatedAt,
	}, nil
}

// --- Ingest cursors ---

// Cursor returns the updatedAfter watermark for a feed, empty on first run.
func (s *ConfigStore) Cursor(feed string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT updated_after FROM ingest_cursors WHERE feed = ?`, feed).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get ingest cursor %q: %w", feed, err)
	}
	return v, nil
}

func (s *ConfigStore) SetCursor(feed, updatedAfter string) error {
	_, err := s.db.Exec(`
		INSERT INTO ingest_cursors (feed, updated_after, last_run_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (feed) DO UPDATE SET updated_after = excluded.updated_after, last_run_at = CURRENT_TIMESTAMP`,
		feed, updatedAfter,
	)
	if err != nil {
		return fmt.Errorf("set ingest cursor %q: %w", feed, err)
	}
	return nil
}

package model

import "time"

// Installation states for the one-time setup flow.
const (
	SetupUnconfigured = "UNCONFIGURED"
	SetupConfigured   = "CONFIGURED"
)

// FormAPIConfig binds this installation to a Form Builder backend. The
// service token is stored encrypted at rest; TokenSet tells the settings UI
// whether one exists without revealing it.
type FormAPIConfig struct {
	BaseURL   string    `json:"baseUrl"`
	TokenSet  bool      `json:"tokenSet"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type InstallationState struct {
	State               string     `json:"state"`
	CompanyID           *string    `json:"companyId"`
	CompanyName         *string    `json:"companyName"`
	ConfiguredAt        *time.Time `json:"configuredAt"`
	ConfiguredByIP      *string    `json:"-"`
	ConfiguredUserAgent *string    `json:"-"`
}

func (s *InstallationState) Configured() bool {
	return s.State == SetupConfigured
}

package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	FirebaseUID  *string   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserPIN holds the release PIN state for a user. The server owns attempt
// counting and lockout; clients only see status and 423 responses.
type UserPIN struct {
	UserID         string     `json:"userId"`
	PinHash        string     `json:"-"`
	FailedAttempts int        `json:"failedAttempts"`
	LockedUntil    *time.Time `json:"lockedUntil"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// PINStatus is the payload of GET /api/users/me/pin/status.
type PINStatus struct {
	IsSet          bool       `json:"isSet"`
	IsLocked       bool       `json:"isLocked"`
	LockedUntil    *time.Time `json:"lockedUntil"`
	FailedAttempts int        `json:"failedAttempts"`
}

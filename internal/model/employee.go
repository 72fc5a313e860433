package model

import "time"

type Employee struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	FirstName  *string   `json:"firstName"`
	LastName   *string   `json:"lastName"`
	Department *string   `json:"department"`
	Active     bool      `json:"active"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DisplayName matches the convention used across the UI: SURNAME Firstname.
func (e *Employee) DisplayName() string {
	last := ""
	if e.LastName != nil {
		last = *e.LastName
	}
	first := ""
	if e.FirstName != nil {
		first = *e.FirstName
	}
	if last == "" && first == "" {
		return e.Username
	}
	if last == "" {
		return first
	}
	if first == "" {
		return last
	}
	return last + " " + first
}

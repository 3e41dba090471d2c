package domain

import "time"

// SessionSchemaVersion identifies the persisted shape of session blobs.
const SessionSchemaVersion = 1

// Session is the currently authenticated identity for the browser context this
// service backs. At most one session is active at a time; logging in replaces it.
type Session struct {
	SchemaVersion int       `json:"schema_version"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	Role          Role      `json:"role"`
	LoggedInAt    time.Time `json:"logged_in_at"`
}

// IsAdmin reports whether the session identity carries the admin role.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// RosterEntry records one user on the "currently logged in" roster. The roster
// supports the product's multi-user-in-one-browser demo scenario and outlives
// the single active session.
type RosterEntry struct {
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	LoggedInAt  time.Time `json:"logged_in_at"`
}

// SessionRoster is the persisted list of logged-in users.
type SessionRoster struct {
	SchemaVersion int           `json:"schema_version"`
	Entries       []RosterEntry `json:"entries"`
}

// NewSessionRoster returns an empty roster at the current schema version.
func NewSessionRoster() SessionRoster {
	return SessionRoster{SchemaVersion: SessionSchemaVersion}
}

// Upsert adds the entry or refreshes an existing one keyed by email.
func (r *SessionRoster) Upsert(entry RosterEntry) {
	entry.Email = NormalizeEmail(entry.Email)
	for i := range r.Entries {
		if r.Entries[i].Email == entry.Email {
			r.Entries[i] = entry
			return
		}
	}
	r.Entries = append(r.Entries, entry)
}

// Remove drops the roster entry for the email. Returns false when absent.
func (r *SessionRoster) Remove(email string) bool {
	key := NormalizeEmail(email)
	for i := range r.Entries {
		if r.Entries[i].Email == key {
			r.Entries = append(r.Entries[:i], r.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether the email is on the roster.
func (r SessionRoster) Contains(email string) bool {
	key := NormalizeEmail(email)
	for _, entry := range r.Entries {
		if entry.Email == key {
			return true
		}
	}
	return false
}

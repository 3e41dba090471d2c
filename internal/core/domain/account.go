package domain

import (
	"strings"
	"time"
)

// AccountCollectionSchemaVersion identifies the persisted shape of the account blob.
// Bump when the on-disk representation changes.
const AccountCollectionSchemaVersion = 1

// Role enumerates the access levels an account can hold.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole normalizes a stored role value, defaulting to RoleUser for
// anything unrecognized.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Account is one registered credential pair in the local fallback store.
type Account struct {
	Email             string    `json:"email"`
	DisplayName       string    `json:"display_name"`
	PasswordHash      string    `json:"password_hash"`
	PasswordAlgo      string    `json:"password_algo"`
	Role              Role      `json:"role"`
	RegisteredAt      time.Time `json:"registered_at"`
	PasswordChangedAt time.Time `json:"password_changed_at"`
}

// IsAdmin reports whether the account carries the admin role.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// AccountCollection is the full persisted set of local accounts. Every mutation
// rewrites the whole collection (read-modify-write), so the blob carries a
// schema version for validated parse-or-default on read.
type AccountCollection struct {
	SchemaVersion int       `json:"schema_version"`
	Accounts      []Account `json:"accounts"`
}

// NewAccountCollection returns an empty collection at the current schema version.
func NewAccountCollection() AccountCollection {
	return AccountCollection{SchemaVersion: AccountCollectionSchemaVersion}
}

// Find returns the account registered under the given email and whether it exists.
// Lookup is by exact normalized email match.
func (c AccountCollection) Find(email string) (Account, bool) {
	key := NormalizeEmail(email)
	for _, account := range c.Accounts {
		if account.Email == key {
			return account, true
		}
	}
	return Account{}, false
}

// Append adds a new account. Returns false without mutating when the email is
// already registered.
func (c *AccountCollection) Append(account Account) bool {
	if _, exists := c.Find(account.Email); exists {
		return false
	}
	account.Email = NormalizeEmail(account.Email)
	c.Accounts = append(c.Accounts, account)
	return true
}

// Replace swaps the stored account for the same email. Returns false when the
// email is not registered.
func (c *AccountCollection) Replace(account Account) bool {
	key := NormalizeEmail(account.Email)
	for i := range c.Accounts {
		if c.Accounts[i].Email == key {
			account.Email = key
			c.Accounts[i] = account
			return true
		}
	}
	return false
}

// Remove deletes the account registered under the email. Returns false when absent.
func (c *AccountCollection) Remove(email string) bool {
	key := NormalizeEmail(email)
	for i := range c.Accounts {
		if c.Accounts[i].Email == key {
			c.Accounts = append(c.Accounts[:i], c.Accounts[i+1:]...)
			return true
		}
	}
	return false
}

// NormalizeEmail lowercases and trims an email so every store lookup is keyed
// by the exact same value used at issuance time.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayNameFromEmail derives a default display name from the email local part.
func DisplayNameFromEmail(email string) string {
	normalized := NormalizeEmail(email)
	if idx := strings.Index(normalized, "@"); idx > 0 {
		return normalized[:idx]
	}
	return normalized
}

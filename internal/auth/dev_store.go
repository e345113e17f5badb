// Package auth provides the AuthStore interface and DevStore implementation.
package auth

import (
	"time"
)

// AuthStore is the interface for user authentication and session management.
// Both Store (production) and DevStore (dev/testing) implement this.
type AuthStore interface {
	HasUsers() bool
	CreateUser(username, password string, role Role) error
	Authenticate(username, password string) (*Session, error)
	ValidateSession(token string) (*User, error)
	Logout(token string) error
	GetUser(username string) (*User, error)
	ListUsers() []*User
	UpdatePassword(username, newPassword string) error
	UpdateRole(username string, role Role) error
	DeleteUser(username string) error
}

// DevStore is a dev/test auth store that auto-authenticates with full permissions.
// Every call succeeds, and every session token validates as the built-in
// "dev" admin user.
type DevStore struct {
	devUser *User
}

// NewDevStore creates a dev auth store with a pre-authenticated admin user.
func NewDevStore() *DevStore {
	return &DevStore{
		devUser: &User{
			Username:  "dev",
			Role:      RoleAdmin,
			UpdatedAt: time.Now(),
		},
	}
}

func (d *DevStore) HasUsers() bool { return true }

func (d *DevStore) CreateUser(username, password string, role Role) error { return nil }

func (d *DevStore) Authenticate(username, password string) (*Session, error) {
	return &Session{
		Token:     "dev-session-token",
		Username:  d.devUser.Username,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (d *DevStore) ValidateSession(token string) (*User, error) {
	return d.devUser, nil
}

func (d *DevStore) Logout(token string) error { return nil }

func (d *DevStore) GetUser(username string) (*User, error) {
	return d.devUser, nil
}

func (d *DevStore) ListUsers() []*User {
	return []*User{d.devUser}
}

func (d *DevStore) UpdatePassword(username, newPassword string) error { return nil }

func (d *DevStore) UpdateRole(username string, role Role) error { return nil }

func (d *DevStore) DeleteUser(username string) error { return nil }

// Verify interface compliance at compile time.
var _ AuthStore = (*Store)(nil)
var _ AuthStore = (*DevStore)(nil)

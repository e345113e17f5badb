// Package auth provides the single-admin authentication and session
// management the UI login endpoint needs. The login/session-cookie HTTP
// surface itself lives outside this repository; this package only owns the
// credential and session state, persisted through the shared Store so it
// survives restarts without a side file of its own.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"panoptikon.dev/panoptikon/internal/store"
)

// Role defines user permission levels. Panoptikon has exactly one login
// identity (the admin), but the level is kept as a type so CanAccess checks
// read the same way they would with multiple roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// User represents the authenticated identity.
type User struct {
	Username  string
	Role      Role
	UpdatedAt time.Time
}

// Session mirrors a row in the store's sessions table plus the username it
// authenticates, for callers that need more than a bare token.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

const (
	adminUsernameSettingKey = "admin_username"
	adminPasswordHashKey    = "admin_password_hash"
	defaultSessionExpiry    = 24 * 3600
)

// Store adapts the admin credential and the Store's sessions table into the
// AuthStore interface. Unlike a multi-user system, CreateUser/UpdateRole/
// DeleteUser operate on the single admin identity; there is nothing else to
// manage.
type Store struct {
	backing              *store.Store
	sessionExpirySeconds int
}

// NewStore wraps backing. sessionExpirySeconds comes from the server
// config's auth.session_expiry_seconds; 0 falls back to 24h.
func NewStore(backing *store.Store, sessionExpirySeconds int) *Store {
	if sessionExpirySeconds <= 0 {
		sessionExpirySeconds = defaultSessionExpiry
	}
	return &Store{backing: backing, sessionExpirySeconds: sessionExpirySeconds}
}

// HasUsers reports whether an admin credential has been set up yet.
func (s *Store) HasUsers() bool {
	_, ok, err := s.backing.GetSetting(adminPasswordHashKey)
	return err == nil && ok
}

// CreateUser sets the admin credential. It refuses to overwrite an existing
// one — callers that want to change the password use UpdatePassword. The
// password must satisfy DefaultPasswordPolicy before it is hashed.
func (s *Store) CreateUser(username, password string, role Role) error {
	if username == "" || password == "" {
		return errors.New("username and password required")
	}
	if s.HasUsers() {
		return errors.New("admin user already exists")
	}
	if err := ValidatePassword(password, DefaultPasswordPolicy(), username); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.backing.SetSetting(adminUsernameSettingKey, username); err != nil {
		return err
	}
	return s.backing.SetSetting(adminPasswordHashKey, string(hash))
}

// Authenticate validates credentials and, on success, opens a new session.
func (s *Store) Authenticate(username, password string) (*Session, error) {
	storedUsername, ok, err := s.backing.GetSetting(adminUsernameSettingKey)
	if err != nil {
		return nil, err
	}
	if !ok || storedUsername != username {
		return nil, errors.New("invalid credentials")
	}

	hash, ok, err := s.backing.GetSetting(adminPasswordHashKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, errors.New("invalid credentials")
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	if err := s.backing.CreateSession(token, s.sessionExpirySeconds); err != nil {
		return nil, err
	}

	return &Session{
		Token:     token,
		Username:  username,
		ExpiresAt: time.Now().Add(time.Duration(s.sessionExpirySeconds) * time.Second),
	}, nil
}

// ValidateSession checks if a session token is valid and, if so, returns the
// admin user it authenticates.
func (s *Store) ValidateSession(token string) (*User, error) {
	ok, err := s.backing.ValidateSession(token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("invalid session")
	}
	return s.adminUser()
}

// Logout invalidates a session.
func (s *Store) Logout(token string) error {
	return s.backing.DeleteSession(token)
}

// GetUser returns the admin user if username matches the configured admin
// identity.
func (s *Store) GetUser(username string) (*User, error) {
	user, err := s.adminUser()
	if err != nil {
		return nil, err
	}
	if user.Username != username {
		return nil, errors.New("user not found")
	}
	return user, nil
}

// ListUsers returns the single admin user, if configured.
func (s *Store) ListUsers() []*User {
	user, err := s.adminUser()
	if err != nil {
		return nil
	}
	return []*User{user}
}

// UpdatePassword replaces the admin password hash. newPassword must
// satisfy DefaultPasswordPolicy before it is hashed.
func (s *Store) UpdatePassword(username, newPassword string) error {
	user, err := s.adminUser()
	if err != nil {
		return err
	}
	if user.Username != username {
		return errors.New("user not found")
	}
	if err := ValidatePassword(newPassword, DefaultPasswordPolicy(), username); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.backing.SetSetting(adminPasswordHashKey, string(hash))
}

// UpdateRole accepts only RoleAdmin, which changes nothing; any other role
// is refused, since the single admin identity cannot be demoted.
func (s *Store) UpdateRole(username string, role Role) error {
	if role != RoleAdmin {
		return errors.New("cannot demote the only admin user")
	}
	return nil
}

// DeleteUser always fails: deleting the only admin would lock the UI out.
func (s *Store) DeleteUser(username string) error {
	return errors.New("cannot delete the last admin user")
}

func (s *Store) adminUser() (*User, error) {
	username, ok, err := s.backing.GetSetting(adminUsernameSettingKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("no admin user configured")
	}
	return &User{Username: username, Role: RoleAdmin, UpdatedAt: s.backing.Clock().Now()}, nil
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CanAccess checks if a role has permission for an action.
func (r Role) CanAccess(action string) bool {
	switch action {
	case "view":
		return true
	case "modify":
		return r == RoleAdmin || r == RoleOperator
	case "admin":
		return r == RoleAdmin
	default:
		return false
	}
}

package types

import "time"

// Roles assignable to a user account.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the system.
// It contains identity, role, profile and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level within the
	// system ("user" or "admin").
	Role string `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Profile holds optional display information for the user.
	Profile Profile `json:"profile" db:"profile"`

	// IsActive marks whether the account may authenticate. Deactivated
	// accounts are rejected by the auth guard.
	IsActive bool `json:"isActive" db:"is_active"`

	// LastLoginAt is the timestamp of the most recent successful login,
	// nil if the user has never logged in.
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Profile holds the user-editable display fields of an account.
type Profile struct {
	FirstName string `json:"firstName" db:"first_name"`
	LastName  string `json:"lastName" db:"last_name"`
	Phone     string `json:"phone" db:"phone"`
	Location  string `json:"location" db:"location"`
	Bio       string `json:"bio" db:"bio"`
	AvatarURL string `json:"avatarUrl" db:"avatar_url"`
}

// PublicUser is the lightweight user summary embedded in pet listings,
// comments and cheer lists. It never carries credentials or email.
type PublicUser struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Public projects the user into its embeddable summary form.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.Profile.FirstName,
		LastName:  u.Profile.LastName,
		AvatarURL: u.Profile.AvatarURL,
	}
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

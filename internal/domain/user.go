package domain

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownRole  = errors.New("unknown role")
)

// Role is the access level the CRM API assigns to an account
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

// ParseRole validates a role claim received from the API or a token
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin, RoleManager:
		return Role(s), nil
	default:
		return "", ErrUnknownRole
	}
}

// User is the identity record returned by the profile and auth endpoints
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	Name     string `json:"name,omitempty"`
	Surname  string `json:"surname,omitempty"`
	IsActive bool   `json:"isActive,omitempty"`
}

// IsAdmin reports whether the user may open admin pages
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName returns "Name Surname" when known, otherwise the email
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.Name != "" && u.Surname != "":
		return u.Name + " " + u.Surname
	case u.Name != "":
		return u.Name
	default:
		return u.Email
	}
}

// UserProfile is the extended record served by /users/profile
type UserProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Name      string `json:"name,omitempty"`
	Surname   string `json:"surname,omitempty"`
	Address   string `json:"address,omitempty"`
	Role      string `json:"role"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// UpdateUserProfile carries the editable profile fields; empty fields are left untouched
type UpdateUserProfile struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

package auth

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the domain representation of an account. It mirrors the users
// table and carries no JSON annotations so presentation layers choose their
// own shape.
type User struct {
	ID            string
	Username      string
	FirstName     string
	LastName      string
	MiddleInitial string
	Address       string
	Age           *int
	PasswordHash  string
	Role          Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Principal is the caller identity extracted from a verified token.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// RegisterRequest contains sign-up data supplied by callers. Registration
// always creates a regular user; administrators are provisioned out of band.
type RegisterRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	MiddleInitial string `json:"middle_initial"`
	Address       string `json:"address"`
	Age           *int   `json:"age"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

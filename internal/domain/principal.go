package domain

import "time"

// Role partitions principals into end-users and admins. Email uniqueness
// is scoped per role, so the same address may hold both a user and an
// admin account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a role string from a route parameter.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Principal is a registered account. PasswordHash is a salted bcrypt
// hash; the plaintext is never stored.
type Principal struct {
	ID           string
	Role         Role
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

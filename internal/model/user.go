package model

import "time"

// Account roles stored in users.role and carried in the access token's
// "role" claim.
const (
	AccountClient     = "CLIENT"
	AccountFreelancer = "FREELANCER"
)

// User represents an account row in the `users` table. Only active users
// resolve through the directory, so deactivating an account makes every
// negotiation that references it unable to produce a job.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hashed password.
//	Role         – CLIENT or FREELANCER.
//	DisplayName  – name shown to the counterparty in notifications.
//	IsActive     – whether the account can still take part in negotiations.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	DisplayName  string    `json:"display_name"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NegotiationRole maps an account role onto the side it plays in a
// negotiation. ok is false for roles that cannot negotiate.
func NegotiationRole(accountRole string) (Role, bool) {
	switch accountRole {
	case AccountClient:
		return RoleRequester, true
	case AccountFreelancer:
		return RoleProvider, true
	}
	return "", false
}

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the raw token is stored.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

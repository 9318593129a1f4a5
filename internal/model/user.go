package model

import "time"

// User represents an application user record as stored in the
// `users` table.  Plan is the single source of truth for the user's
// current entitlement and is only ever written by the plan
// transition authority.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – display name chosen at registration.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – USER or ADMIN.
//  Plan         – current plan tier (free, pro, attorney).
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Username     string    // users.username
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	Plan         PlanTier  // users.plan
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

package model

import "time"

// Roles accepted in the JWT "role" claim.  Only owners may change the
// schedule; staff can read it.
const (
    RoleOwner = "OWNER"
    RoleStaff = "STAFF"
)

// User represents an application user record as stored in the
// `users` table.  The password hash never leaves the repository and
// handler layers.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – OWNER or STAFF.
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

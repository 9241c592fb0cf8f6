package types

import "time"

// User is the identity record. Password hash and token columns are never
// serialized; the JSON field names match the public API contract
// (camelCase, dateCreated).
type User struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DateCreated  time.Time `json:"dateCreated"`
	Token        *string   `json:"-"`
	// TokenExpiration is set iff Token is set (enforced by a DB CHECK).
	TokenExpiration *time.Time `json:"-"`
}

// RegisterUserParams is the typed registration payload. All fields are
// required at the boundary.
type RegisterUserParams struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// UpdateProfileParams carries the only fields a profile update may change.
// Nil pointers mean "leave unchanged"; anything else a client sends is
// dropped at decode time, which is what keeps id/token out of reach.
type UpdateProfileParams struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
}

// TokenResponse is the body returned by GET /token.
type TokenResponse struct {
	Token           string    `json:"token"`
	TokenExpiration time.Time `json:"tokenExpiration"`
}

package model

import "time"

// User is an account that owns one task collection, keyed by Email.
// Accounts created through Google sign-in have no PasswordHash.
type User struct {
	ID           string    `json:"id" bson:"_id" db:"id"`
	Name         string    `json:"name" bson:"name" db:"name"`
	Email        string    `json:"email" bson:"email" db:"email"`
	PasswordHash string    `json:"-" bson:"password,omitempty" db:"password_hash"`
	GoogleID     string    `json:"googleId,omitempty" bson:"googleId,omitempty" db:"google_id"`
	CreatedAt    time.Time `json:"created_at" bson:"createdAt" db:"created_at"`
}

// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account identity. PasswordHash is a bcrypt blob and never
// leaves the server.
type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash []byte
	IsActive     bool
	IsProvider   bool
	CreatedAt    time.Time
}

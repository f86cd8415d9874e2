// Package model defines domain entities for the application.
package model

import "time"

// User represents a registered user in the directory.
// IDs are assigned by the store from a monotonic counter starting at 1.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

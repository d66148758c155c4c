// Package domain contains entity without logic, just meta-data
package domain

import (
	"github.com/google/uuid"
)

// UserID is the server-assigned identity of one live connection.
type UserID string

// NewUserID generates a fresh identity for an accepted connection.
func NewUserID() UserID {
	return UserID(uuid.NewString())
}

func (id UserID) String() string { return string(id) }

package models

import (
	"strings"
	"unicode"
)

type Role string

const (
	RoleClient  Role = "client"
	RoleTrainer Role = "trainer"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleTrainer, RoleAdmin:
		return true
	}
	return false
}

// Staff reports whether the role may start conversations and receive
// workout notifications.
func (r Role) Staff() bool {
	return r == RoleTrainer || r == RoleAdmin
}

// User is the identity record supplied by the user store.
type User struct {
	ID     string   `bson:"-" json:"id"`
	Name   string   `bson:"name" json:"name"`
	Role   Role     `bson:"role" json:"role"`
	Scopes []string `bson:"scopes,omitempty" json:"scopes,omitempty"`
}

// Identity is the verified caller attached to every request.
type Identity struct {
	UserID string
	Name   string
	Role   Role
	Scopes []string
}

// ValidUserID rejects empty ids and ids with control characters, which the
// key-value store uses as separators.
func ValidUserID(id string) bool {
	return id != "" && !strings.ContainsFunc(id, unicode.IsControl)
}

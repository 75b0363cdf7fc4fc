// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"math/rand"
)

const (
	MaxUserIDLen = 36

	suffixLen     = 4
	suffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	ErrUserIDTooLong = errors.New("user id too long")
	ErrUserIDEmpty   = errors.New("user id empty")
)

type UserID string

type User struct {
	ID UserID `json:"id"`
}

// NewUser validates an externally supplied identity string.
func NewUser(id string) (*User, error) {
	if len(id) == 0 {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	return &User{ID: UserID(id)}, nil
}

// GenerateUserID makes a fresh "UserXXXX" identity with a random base36 suffix.
func GenerateUserID() UserID {
	b := make([]byte, suffixLen)
	for i := range b {
		b[i] = suffixCharset[rand.Intn(len(suffixCharset))]
	}
	return UserID("User" + string(b))
}

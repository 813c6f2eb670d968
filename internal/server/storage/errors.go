package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUsername indicates that user with this username already exists
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrDuplicateEmail indicates that user with this email already exists
	ErrDuplicateEmail = errors.New("email already taken")

	// ErrTokenNotFound indicates that refresh token was not found
	ErrTokenNotFound = errors.New("refresh token not found")
)

package apperrors

import (
	"errors"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token is revoked")
	ErrRefreshInvalid       = errors.New("refresh token is invalid")

	ErrTokenMalformed     = errors.New("token is malformed")
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrTokenMissingExpiry = errors.New("token has no expiry claim")
)

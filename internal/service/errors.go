package service

import "errors"

// Grant and credential errors. Each maps to one OAuth2 error code at the HTTP
// edge; messages are deliberately generic.
var (
	ErrInvalidClient        = errors.New("the client credentials are invalid")
	ErrInvalidScope         = errors.New("no valid scope given")
	ErrInvalidGrant         = errors.New("the provided grant is invalid or expired")
	ErrInvalidRequest       = errors.New("the request is missing a required parameter")
	ErrUnsupportedGrantType = errors.New("the grant type is not supported")
	ErrServiceUnavailable   = errors.New("the service is temporarily unavailable")
	ErrQuotaExceeded        = errors.New("plan quota exceeded")
	ErrInvalidToken         = errors.New("invalid or expired token")
)

// Signed assertion errors.
var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

package service

import "errors"

// ErrInvalidToken covers every token validation failure: missing, unknown,
// expired and revoked all look the same to the caller so the response never
// reveals which one it was.
var ErrInvalidToken = errors.New("invalid or expired token")

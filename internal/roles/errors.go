package roles

import "errors"

var (
	ErrInvalidRole  = errors.New("roles: invalid role")
	ErrInvalidInput = errors.New("roles: invalid input")
)

package domain

import "errors"

var (
	ErrNotExist  = errors.New("does not exist")
	ErrConflict  = errors.New("already exists")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid argument")
)

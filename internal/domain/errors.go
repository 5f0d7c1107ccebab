package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrInvalidFill   = errors.New("invalid fill event")
	ErrContextDone   = errors.New("context cancelled")
)

package service

import (
	"errors"

	"github.com/gurkanbulca/taskassign/pkg/auth"
)

var (
	ErrEmailTaken    = errors.New("email is already registered")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("task was modified by another request")
	ErrAccountLocked = errors.New("account is locked")
	ErrWeakPassword  = auth.ErrWeakPassword
)

package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrExpired           = errors.New("expired")
	ErrOutOfRange        = errors.New("out of range")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
)

var (
	ErrAlreadyPending      = fmt.Errorf("%w: a pending war already exists for this challenge", ErrConflict)
	ErrCapacity            = fmt.Errorf("%w: mini war is full", ErrConflict)
	ErrInviteCodeExhausted = fmt.Errorf("%w: could not generate a unique invite code", ErrConflict)
)

// notFound turns gorm's missing-row error into ErrNotFound naming the entity.
func notFound(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, entity)
	}
	return err
}

package service

import (
	"errors"
	"fmt"

	"health-chat/internal/repository"
)

// Taxonomia de errores expuesta por la capa de servicio.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrUpstream    = errors.New("upstream error")
	ErrStorage     = errors.New("storage error")
	ErrRateLimited = errors.New("rate limited")
	ErrConflict    = errors.New("conflict")
)

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// storageError traduce errores de repositorio a la taxonomia del servicio.
func storageError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
	}
}

package domain

import "errors"

var (
	// ErrNotFound is returned when a collection or card is required but absent.
	ErrNotFound = errors.New("not found")

	// ErrWrongCollection is returned when a card exists but belongs to a
	// different collection than the one it was addressed through.
	ErrWrongCollection = errors.New("card does not belong to this collection")

	// ErrValidation is returned for malformed identifiers, bad pagination
	// bounds and stored records that fail to parse.
	ErrValidation = errors.New("validation failed")
)

package storage

import (
	"fmt"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// CollectionNotFound wraps domain.ErrNotFound for a collection id.
func CollectionNotFound(id domain.ID) error {
	return fmt.Errorf("collection %s: %w", id, domain.ErrNotFound)
}

// CardNotFound wraps domain.ErrNotFound for a card id.
func CardNotFound(id domain.ID) error {
	return fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
}

// CardOrphaned is returned by Save when the row is gone and so is the
// collection it should be recreated in.
func CardOrphaned(card, collection domain.ID) error {
	return fmt.Errorf("card %s not found and collection %s does not exist: %w", card, collection, domain.ErrNotFound)
}

// WrongCollection wraps domain.ErrWrongCollection.
func WrongCollection(card, want, got domain.ID) error {
	return fmt.Errorf("card %s belongs to collection %s, not %s: %w", card, got, want, domain.ErrWrongCollection)
}

package repository

import (
	"context"

	"convoyhub/internal/models"
	"convoyhub/pkg/location"

	"github.com/google/uuid"
)

// ConvoyStore persists convoys. Every method is atomic on its own; nothing
// spans calls.
type ConvoyStore interface {
	// Create inserts the convoy with its initial members.
	// Returns ErrJoinCodeTaken when the join code collides.
	Create(ctx context.Context, c *models.Convoy) error

	// GetByID returns a non-deleted convoy with members in join order.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Convoy, error)

	// GetByJoinCode looks up a non-deleted convoy by normalised join code.
	GetByJoinCode(ctx context.Context, code string) (*models.Convoy, error)

	// Mutate loads the convoy exclusively, applies fn and persists the result
	// as one unit. When fn fails nothing is written. The returned convoy is
	// the committed state.
	Mutate(ctx context.Context, id uuid.UUID, fn func(c *models.Convoy) error) (*models.Convoy, error)

	// UpdateCenter overwrites the whole center snapshot if userID is a
	// member. Returns domain.ErrNotMember or domain.ErrNotFound otherwise.
	UpdateCenter(ctx context.Context, id uuid.UUID, userID uint, center models.Center) error

	// FindNearby returns live convoys whose center lies in box, most recently
	// updated first. Private convoys are included only when requesterID is a
	// member, so a page is never thinned after the fact.
	FindNearby(ctx context.Context, box location.Box, requesterID uint, limit, offset int) ([]models.Convoy, error)

	// ListByMember returns the convoys userID belongs to, most recently
	// updated first.
	ListByMember(ctx context.Context, userID uint, limit, offset int) ([]models.Convoy, error)
}

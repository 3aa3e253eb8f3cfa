package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"convoyhub/internal/domain"
	"convoyhub/internal/models"
	"convoyhub/pkg/location"

	"github.com/google/uuid"
)

// MemoryConvoyStore is an in-process ConvoyStore. A single mutex serialises
// every call; Mutate works on a copy and swaps it in only on success.
type MemoryConvoyStore struct {
	mu      sync.Mutex
	convoys map[uuid.UUID]*models.Convoy
	codes   map[string]uuid.UUID
}

var _ ConvoyStore = (*MemoryConvoyStore)(nil)

func NewMemoryConvoyStore() *MemoryConvoyStore {
	return &MemoryConvoyStore{
		convoys: make(map[uuid.UUID]*models.Convoy),
		codes:   make(map[string]uuid.UUID),
	}
}

func (s *MemoryConvoyStore) Create(_ context.Context, c *models.Convoy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convoys[c.ID]; ok {
		return fmt.Errorf("convoy %s already exists", c.ID)
	}
	if c.JoinCode != nil {
		if _, taken := s.codes[*c.JoinCode]; taken {
			return ErrJoinCodeTaken
		}
		s.codes[*c.JoinCode] = c.ID
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.convoys[c.ID] = c.Clone()
	return nil
}

func (s *MemoryConvoyStore) live(id uuid.UUID) (*models.Convoy, error) {
	c, ok := s.convoys[id]
	if !ok || c.DeletedAt.Valid {
		return nil, fmt.Errorf("%w: convoy %s", domain.ErrNotFound, id)
	}
	return c, nil
}

func (s *MemoryConvoyStore) GetByID(_ context.Context, id uuid.UUID) (*models.Convoy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (s *MemoryConvoyStore) GetByJoinCode(_ context.Context, code string) (*models.Convoy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("%w: join code", domain.ErrNotFound)
	}
	c, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (s *MemoryConvoyStore) Mutate(_ context.Context, id uuid.UUID, fn func(c *models.Convoy) error) (*models.Convoy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.live(id)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.JoinCode != nil {
		if owner, taken := s.codes[*next.JoinCode]; taken && owner != id {
			return nil, ErrJoinCodeTaken
		}
	}
	if cur.JoinCode != nil {
		delete(s.codes, *cur.JoinCode)
	}
	if next.JoinCode != nil {
		s.codes[*next.JoinCode] = id
	}
	next.UpdatedAt = time.Now()
	s.convoys[id] = next
	return next.Clone(), nil
}

func (s *MemoryConvoyStore) UpdateCenter(_ context.Context, id uuid.UUID, userID uint, center models.Center) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.live(id)
	if err != nil {
		return err
	}
	if !c.IsMember(userID) {
		return fmt.Errorf("%w: user %d", domain.ErrNotMember, userID)
	}
	next := c.Clone()
	next.Center = center
	next.UpdatedAt = time.Now()
	s.convoys[id] = next
	return nil
}

func (s *MemoryConvoyStore) FindNearby(_ context.Context, box location.Box, requesterID uint, limit, offset int) ([]models.Convoy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Convoy
	for _, c := range s.convoys {
		if c.DeletedAt.Valid || !c.IsLive || !box.Contains(c.Center.Lat, c.Center.Lng) {
			continue
		}
		if c.Visibility == domain.VisibilityPrivate && !c.IsMember(requesterID) {
			continue
		}
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Center.RecordedAt.After(out[j].Center.RecordedAt)
	})
	if offset >= len(out) {
		return []models.Convoy{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryConvoyStore) ListByMember(_ context.Context, userID uint, limit, offset int) ([]models.Convoy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Convoy
	for _, c := range s.convoys {
		if c.DeletedAt.Valid || !c.IsMember(userID) {
			continue
		}
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if offset >= len(out) {
		return []models.Convoy{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"convoyhub/internal/domain"
	"convoyhub/internal/logger"
	"convoyhub/internal/metrics"
	"convoyhub/internal/models"
	"convoyhub/internal/repository"
	"convoyhub/pkg/joincode"
	"convoyhub/pkg/location"
	"convoyhub/pkg/proximity"

	"github.com/google/uuid"
)

// IdentityStore is the slice of the user store the convoy aggregate needs.
type IdentityStore interface {
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
	IncrementUserStat(ctx context.Context, id uint, field string, delta int) error
	UpdateUserLocation(ctx context.Context, id uint, lat, lng float64, heading, speed *float64) error
}

const (
	joinCodeAttempts = 5
	defaultListLimit = 20
	maxListLimit     = 100
)

// ConvoyService owns every convoy state change. Each method is one atomic
// read-modify-write against the store; nothing spans calls.
type ConvoyService struct {
	store      repository.ConvoyStore
	users      IdentityStore
	log        *logger.Logger
	now        func() time.Time
	codes      func() (string, error)
	defaultMax int
	maxRadius  float64
	maxLimit   int
}

type Option func(*ConvoyService)

func WithClock(now func() time.Time) Option {
	return func(s *ConvoyService) { s.now = now }
}

func WithJoinCodes(gen func() (string, error)) Option {
	return func(s *ConvoyService) { s.codes = gen }
}

func WithDefaultMaxMembers(n int) Option {
	return func(s *ConvoyService) {
		if n >= domain.MinConvoyMembers && n <= domain.MaxConvoyMembers {
			s.defaultMax = n
		}
	}
}

// WithNearbyLimits caps the radius and result count of FindNearby.
func WithNearbyLimits(maxRadiusKm float64, maxLimit int) Option {
	return func(s *ConvoyService) {
		if maxRadiusKm > 0 {
			s.maxRadius = maxRadiusKm
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

func NewConvoyService(store repository.ConvoyStore, users IdentityStore, log *logger.Logger, opts ...Option) *ConvoyService {
	s := &ConvoyService{
		store:      store,
		users:      users,
		log:        log.With("service", "convoy"),
		now:        func() time.Time { return time.Now().UTC() },
		codes:      joincode.Generate,
		defaultMax: domain.DefaultConvoyMembers,
		maxRadius:  100,
		maxLimit:   50,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LocationInput is one position fix reported by a member.
type LocationInput struct {
	Lat      float64
	Lng      float64
	Heading  *float64
	Speed    *float64
	Accuracy *float64
}

func (in LocationInput) validate() error {
	if !location.ValidLatLng(in.Lat, in.Lng) {
		return fmt.Errorf("%w: lat must be in [-90,90] and lng in [-180,180]", domain.ErrValidation)
	}
	if in.Heading != nil && (math.IsNaN(*in.Heading) || *in.Heading < 0 || *in.Heading > 360) {
		return fmt.Errorf("%w: heading must be in [0,360]", domain.ErrValidation)
	}
	if in.Speed != nil && !(*in.Speed >= 0) {
		return fmt.Errorf("%w: speed must be >= 0", domain.ErrValidation)
	}
	if in.Accuracy != nil && !(*in.Accuracy >= 0) {
		return fmt.Errorf("%w: accuracy must be >= 0", domain.ErrValidation)
	}
	return nil
}

func (in LocationInput) center(at time.Time) models.Center {
	return models.Center{
		Lat:        in.Lat,
		Lng:        in.Lng,
		Heading:    in.Heading,
		Speed:      in.Speed,
		Accuracy:   in.Accuracy,
		RecordedAt: at,
	}
}

type CreateConvoyInput struct {
	OwnerID       uint
	Title         *string
	Description   *string
	Visibility    string // empty means public
	MaxMembers    *int   // nil means the configured default
	Route         *models.Route
	InitialCenter *LocationInput
}

type UpdateConvoyInput struct {
	Title       *string
	Description *string
	Visibility  *string
	MaxMembers  *int
	Route       *models.Route
	ClearRoute  bool
}

// JoinInput identifies the convoy by id, by join code, or both.
type JoinInput struct {
	ConvoyID *uuid.UUID
	JoinCode string
	UserID   uint
}

type NearbyQuery struct {
	Lat         float64
	Lng         float64
	RadiusKm    float64 // zero means domain.DefaultNearbyRadiusKm
	Limit       int     // zero means domain.DefaultNearbyLimit
	Exact       bool    // drop bounding-box corners outside the circle
	RequesterID uint
}

type NearbyResult struct {
	Convoy     *models.Convoy
	DistanceKm float64
	Proximity  string
}

// MembershipChange describes the outcome of a join, add, leave or kick.
type MembershipChange struct {
	Convoy        *models.Convoy
	UserID        uint
	Changed       bool // false when an add found the user already a member
	PreviousOwner uint
}

// OwnerChanged reports an ownership transfer caused by the change.
func (m *MembershipChange) OwnerChanged() bool {
	return m.Changed && len(m.Convoy.Members) > 0 && m.Convoy.OwnerID != m.PreviousOwner
}

func observe(op string, err *error) {
	metrics.ObserveConvoyOp(op, *err)
}

func validateText(v *string, field string, max int) error {
	if v != nil && len(strings.TrimSpace(*v)) > max {
		return fmt.Errorf("%w: %s longer than %d characters", domain.ErrValidation, field, max)
	}
	return nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func validateMaxMembers(n int) error {
	if n < domain.MinConvoyMembers || n > domain.MaxConvoyMembers {
		return fmt.Errorf("%w: max members must be between %d and %d", domain.ErrValidation, domain.MinConvoyMembers, domain.MaxConvoyMembers)
	}
	return nil
}

func validateRoute(r *models.Route) error {
	if r == nil {
		return nil
	}
	if len(r.Waypoints) > domain.MaxWaypoints {
		return fmt.Errorf("%w: at most %d waypoints", domain.ErrValidation, domain.MaxWaypoints)
	}
	for i, w := range r.Waypoints {
		if !location.ValidLatLng(w.Lat, w.Lng) {
			return fmt.Errorf("%w: waypoint %d has invalid coordinates", domain.ErrValidation, i)
		}
	}
	if (r.Distance != nil && *r.Distance < 0) || (r.Duration != nil && *r.Duration < 0) {
		return fmt.Errorf("%w: route distance and duration must be >= 0", domain.ErrValidation)
	}
	return nil
}

// redact hides the join code from users outside the convoy.
func redact(c *models.Convoy, userID uint) *models.Convoy {
	if c.JoinCode == nil || c.IsMember(userID) {
		return c
	}
	cp := c.Clone()
	cp.JoinCode = nil
	return cp
}

func (s *ConvoyService) bumpStat(ctx context.Context, userID uint, field string) {
	if err := s.users.IncrementUserStat(ctx, userID, field, 1); err != nil {
		s.log.Warn("user stat increment failed", "user_id", userID, "field", field, "error", err)
	}
}

// mutate runs fn under the store's exclusive load and verifies the aggregate
// invariants before anything is written. Join code collisions are retried
// with a fresh code.
func (s *ConvoyService) mutate(ctx context.Context, id uuid.UUID, fn func(c *models.Convoy) error) (*models.Convoy, error) {
	var (
		c   *models.Convoy
		err error
	)
	for attempt := 1; attempt <= joinCodeAttempts; attempt++ {
		c, err = s.store.Mutate(ctx, id, func(c *models.Convoy) error {
			if err := fn(c); err != nil {
				return err
			}
			return c.CheckInvariants()
		})
		if !errors.Is(err, repository.ErrJoinCodeTaken) {
			break
		}
	}
	return c, err
}

func (s *ConvoyService) newCode() (*string, error) {
	code, err := s.codes()
	if err != nil {
		return nil, fmt.Errorf("generate join code: %w", err)
	}
	return &code, nil
}

// Create opens a convoy owned by in.OwnerID, who becomes its sole member.
func (s *ConvoyService) Create(ctx context.Context, in CreateConvoyInput) (c *models.Convoy, err error) {
	defer observe("create", &err)

	visibility := in.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}
	if !domain.ValidVisibility(visibility) {
		return nil, fmt.Errorf("%w: unknown visibility %q", domain.ErrValidation, visibility)
	}
	maxMembers := s.defaultMax
	if in.MaxMembers != nil {
		maxMembers = *in.MaxMembers
	}
	if err := validateMaxMembers(maxMembers); err != nil {
		return nil, err
	}
	if in.InitialCenter == nil {
		return nil, fmt.Errorf("%w: initial center is required", domain.ErrValidation)
	}
	if err := in.InitialCenter.validate(); err != nil {
		return nil, err
	}
	if err := validateText(in.Title, "title", domain.MaxTitleLength); err != nil {
		return nil, err
	}
	if err := validateText(in.Description, "description", domain.MaxDescriptionLength); err != nil {
		return nil, err
	}
	if err := validateRoute(in.Route); err != nil {
		return nil, err
	}
	if _, err := s.users.FindUserByID(ctx, in.OwnerID); err != nil {
		return nil, err
	}

	now := s.now()
	for attempt := 1; ; attempt++ {
		c = &models.Convoy{
			ID:          uuid.New(),
			Title:       trimmed(in.Title),
			Description: trimmed(in.Description),
			Visibility:  visibility,
			MaxMembers:  maxMembers,
			Center:      in.InitialCenter.center(now),
		}
		c.SetRoute(in.Route)
		if _, err := c.AddMember(in.OwnerID, now); err != nil {
			return nil, err
		}
		if visibility == domain.VisibilityInvite {
			if c.JoinCode, err = s.newCode(); err != nil {
				return nil, err
			}
		}
		if err := c.CheckInvariants(); err != nil {
			return nil, err
		}
		err = s.store.Create(ctx, c)
		if errors.Is(err, repository.ErrJoinCodeTaken) && attempt < joinCodeAttempts {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create convoy: %w", err)
		}
		break
	}

	s.bumpStat(ctx, in.OwnerID, domain.StatConvoysCreated)
	s.log.Info("convoy created", "convoy_id", c.ID, "owner_id", in.OwnerID, "visibility", visibility)
	return c, nil
}

// Get returns a convoy as seen by requesterID. Private convoys are visible to
// members only.
func (s *ConvoyService) Get(ctx context.Context, id uuid.UUID, requesterID uint) (c *models.Convoy, err error) {
	defer observe("get", &err)
	c, err = s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Visibility == domain.VisibilityPrivate && !c.IsMember(requesterID) {
		return nil, fmt.Errorf("%w: private convoy", domain.ErrForbidden)
	}
	return redact(c, requesterID), nil
}

// ListForUser returns the convoys userID belongs to.
func (s *ConvoyService) ListForUser(ctx context.Context, userID uint, limit, offset int) (list []models.Convoy, err error) {
	defer observe("list", &err)
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListByMember(ctx, userID, limit, offset)
}

// Members returns the member list in join order.
func (s *ConvoyService) Members(ctx context.Context, id uuid.UUID, requesterID uint) ([]models.ConvoyMember, error) {
	c, err := s.Get(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	return c.Members, nil
}

func (s *ConvoyService) addMember(ctx context.Context, convoyID uuid.UUID, userID uint, guard func(c *models.Convoy) error) (*MembershipChange, error) {
	if _, err := s.users.FindUserByID(ctx, userID); err != nil {
		return nil, err
	}
	out := &MembershipChange{UserID: userID}
	now := s.now()
	c, err := s.mutate(ctx, convoyID, func(c *models.Convoy) error {
		if guard != nil {
			if err := guard(c); err != nil {
				return err
			}
		}
		out.PreviousOwner = c.OwnerID
		added, err := c.AddMember(userID, now)
		out.Changed = added
		return err
	})
	if err != nil {
		return nil, err
	}
	out.Convoy = c
	if out.Changed {
		s.bumpStat(ctx, userID, domain.StatConvoysJoined)
	}
	return out, nil
}

// AddMember adds userID to the convoy. Adding an existing member is a no-op.
func (s *ConvoyService) AddMember(ctx context.Context, convoyID uuid.UUID, userID uint) (m *MembershipChange, err error) {
	defer observe("add_member", &err)
	return s.addMember(ctx, convoyID, userID, nil)
}

// Invite is AddMember performed by the owner on behalf of another user.
func (s *ConvoyService) Invite(ctx context.Context, convoyID uuid.UUID, requesterID, userID uint) (m *MembershipChange, err error) {
	defer observe("invite", &err)
	return s.addMember(ctx, convoyID, userID, func(c *models.Convoy) error {
		return c.RequireOwner(requesterID)
	})
}

func (s *ConvoyService) removeMember(ctx context.Context, convoyID uuid.UUID, userID uint, guard func(c *models.Convoy) error) (*MembershipChange, error) {
	out := &MembershipChange{UserID: userID, Changed: true}
	now := s.now()
	c, err := s.mutate(ctx, convoyID, func(c *models.Convoy) error {
		if guard != nil {
			if err := guard(c); err != nil {
				return err
			}
		}
		out.PreviousOwner = c.OwnerID
		return c.RemoveMember(userID, now)
	})
	if err != nil {
		return nil, err
	}
	out.Convoy = c
	if c.IsOrphaned() {
		s.log.Info("convoy emptied", "convoy_id", convoyID, "last_owner_id", c.OwnerID)
	}
	return out, nil
}

// RemoveMember drops userID. Ownership passes to the earliest-joined
// remaining member; an emptied convoy is ended.
func (s *ConvoyService) RemoveMember(ctx context.Context, convoyID uuid.UUID, userID uint) (m *MembershipChange, err error) {
	defer observe("remove_member", &err)
	return s.removeMember(ctx, convoyID, userID, nil)
}

// Leave removes the caller from the convoy.
func (s *ConvoyService) Leave(ctx context.Context, convoyID uuid.UUID, userID uint) (m *MembershipChange, err error) {
	defer observe("leave", &err)
	return s.removeMember(ctx, convoyID, userID, nil)
}

// Kick lets the owner remove another member.
func (s *ConvoyService) Kick(ctx context.Context, convoyID uuid.UUID, requesterID, userID uint) (m *MembershipChange, err error) {
	defer observe("kick", &err)
	return s.removeMember(ctx, convoyID, userID, func(c *models.Convoy) error {
		if err := c.RequireOwner(requesterID); err != nil {
			return err
		}
		if requesterID == userID {
			return fmt.Errorf("%w: owners leave instead of kicking themselves", domain.ErrValidation)
		}
		return nil
	})
}

// Join admits in.UserID by convoy id, join code or both. Invite-only convoys
// need the code; private convoys cannot be joined this way.
func (s *ConvoyService) Join(ctx context.Context, in JoinInput) (m *MembershipChange, err error) {
	defer observe("join", &err)

	code := joincode.Normalize(in.JoinCode)
	if in.ConvoyID == nil && code == "" {
		return nil, fmt.Errorf("%w: convoy id or join code is required", domain.ErrValidation)
	}
	if code != "" && !joincode.Valid(code) {
		return nil, fmt.Errorf("%w: join code must be %d letters or digits", domain.ErrValidation, joincode.Length)
	}
	if _, err := s.users.FindUserByID(ctx, in.UserID); err != nil {
		return nil, err
	}

	var convoyID uuid.UUID
	if code != "" {
		c, err := s.store.GetByJoinCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if in.ConvoyID != nil && *in.ConvoyID != c.ID {
			return nil, fmt.Errorf("%w: join code does not belong to this convoy", domain.ErrNotFound)
		}
		convoyID = c.ID
	} else {
		convoyID = *in.ConvoyID
	}

	out := &MembershipChange{UserID: in.UserID}
	now := s.now()
	c, err := s.mutate(ctx, convoyID, func(c *models.Convoy) error {
		if c.IsMember(in.UserID) {
			return fmt.Errorf("%w: user %d", domain.ErrAlreadyMember, in.UserID)
		}
		if code == "" {
			switch c.Visibility {
			case domain.VisibilityInvite:
				return fmt.Errorf("%w: convoy is invite-only", domain.ErrInviteRequired)
			case domain.VisibilityPrivate:
				return fmt.Errorf("%w: private convoy", domain.ErrForbidden)
			}
		} else if c.JoinCode == nil || *c.JoinCode != code {
			// code was rotated between lookup and lock
			return fmt.Errorf("%w: join code", domain.ErrNotFound)
		}
		out.PreviousOwner = c.OwnerID
		added, err := c.AddMember(in.UserID, now)
		out.Changed = added
		return err
	})
	if err != nil {
		return nil, err
	}
	out.Convoy = c
	s.bumpStat(ctx, in.UserID, domain.StatConvoysJoined)
	return out, nil
}

// Start makes the convoy live. changed is false when it already was.
func (s *ConvoyService) Start(ctx context.Context, convoyID uuid.UUID, requesterID uint) (c *models.Convoy, changed bool, err error) {
	defer observe("start", &err)
	now := s.now()
	c, err = s.mutate(ctx, convoyID, func(c *models.Convoy) error {
		wasLive := c.IsLive
		if err := c.Start(requesterID, now); err != nil {
			return err
		}
		changed = !wasLive
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return c, changed, nil
}

// End stops a live convoy. changed is false when it was not live.
func (s *ConvoyService) End(ctx context.Context, convoyID uuid.UUID, requesterID uint) (c *models.Convoy, changed bool, err error) {
	defer observe("end", &err)
	now := s.now()
	c, err = s.mutate(ctx, convoyID, func(c *models.Convoy) error {
		wasLive := c.IsLive
		if err := c.End(requesterID, now); err != nil {
			return err
		}
		changed = wasLive
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return c, changed, nil
}

// UpdateLocation replaces the convoy center with the member's fix and mirrors
// it onto the member's own last known location.
func (s *ConvoyService) UpdateLocation(ctx context.Context, convoyID uuid.UUID, userID uint, in LocationInput) (center models.Center, err error) {
	defer observe("update_location", &err)
	if err := in.validate(); err != nil {
		return models.Center{}, err
	}
	center = in.center(s.now())
	if err := s.store.UpdateCenter(ctx, convoyID, userID, center); err != nil {
		if errors.Is(err, domain.ErrNotMember) {
			return models.Center{}, fmt.Errorf("%w: not a member of this convoy", domain.ErrForbidden)
		}
		return models.Center{}, err
	}
	if err := s.users.UpdateUserLocation(ctx, userID, in.Lat, in.Lng, in.Heading, in.Speed); err != nil {
		s.log.Warn("user location mirror failed", "user_id", userID, "error", err)
	}
	return center, nil
}

// FindNearby returns live convoys whose center lies in the bounding box of the
// search circle, most recently updated first. Private convoys are only
// returned to their members.
func (s *ConvoyService) FindNearby(ctx context.Context, q NearbyQuery) (out []NearbyResult, err error) {
	defer observe("nearby", &err)
	if !location.ValidLatLng(q.Lat, q.Lng) {
		return nil, fmt.Errorf("%w: lat must be in [-90,90] and lng in [-180,180]", domain.ErrValidation)
	}
	radius := q.RadiusKm
	if radius == 0 {
		radius = domain.DefaultNearbyRadiusKm
	}
	if !(radius > 0) || radius > s.maxRadius {
		return nil, fmt.Errorf("%w: radius must be in (0,%g] km", domain.ErrValidation, s.maxRadius)
	}
	limit := q.Limit
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be >= 0", domain.ErrValidation)
	}
	if limit == 0 {
		limit = domain.DefaultNearbyLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	box := location.BoundingBox(q.Lat, q.Lng, radius)
	out = make([]NearbyResult, 0, limit)
	// Exact mode drops box corners, so keep paging until limit survive or the
	// box runs dry.
	for offset := 0; ; offset += limit {
		page, err := s.store.FindNearby(ctx, box, q.RequesterID, limit, offset)
		if err != nil {
			return nil, err
		}
		for i := range page {
			c := &page[i]
			d := location.DistanceKm(q.Lat, q.Lng, c.Center.Lat, c.Center.Lng)
			if q.Exact && d > radius {
				continue
			}
			out = append(out, NearbyResult{
				Convoy:     redact(c, q.RequesterID),
				DistanceKm: math.Round(d*100) / 100,
				Proximity:  proximity.Label(d, radius),
			})
			if len(out) == limit {
				return out, nil
			}
		}
		if !q.Exact || len(page) < limit {
			return out, nil
		}
	}
}

// FindByJoinCode resolves a code case-insensitively, live or not.
func (s *ConvoyService) FindByJoinCode(ctx context.Context, code string) (c *models.Convoy, err error) {
	defer observe("find_by_code", &err)
	code = joincode.Normalize(code)
	if !joincode.Valid(code) {
		return nil, fmt.Errorf("%w: join code", domain.ErrNotFound)
	}
	return s.store.GetByJoinCode(ctx, code)
}

// Update applies owner edits. Switching to invite issues a join code and
// switching away clears it.
func (s *ConvoyService) Update(ctx context.Context, convoyID uuid.UUID, requesterID uint, in UpdateConvoyInput) (c *models.Convoy, err error) {
	defer observe("update", &err)
	if err := validateText(in.Title, "title", domain.MaxTitleLength); err != nil {
		return nil, err
	}
	if err := validateText(in.Description, "description", domain.MaxDescriptionLength); err != nil {
		return nil, err
	}
	if in.Visibility != nil && !domain.ValidVisibility(*in.Visibility) {
		return nil, fmt.Errorf("%w: unknown visibility %q", domain.ErrValidation, *in.Visibility)
	}
	if in.MaxMembers != nil {
		if err := validateMaxMembers(*in.MaxMembers); err != nil {
			return nil, err
		}
	}
	if err := validateRoute(in.Route); err != nil {
		return nil, err
	}

	return s.mutate(ctx, convoyID, func(c *models.Convoy) error {
		if err := c.RequireOwner(requesterID); err != nil {
			return err
		}
		if in.Title != nil {
			c.Title = trimmed(in.Title)
		}
		if in.Description != nil {
			c.Description = trimmed(in.Description)
		}
		if in.MaxMembers != nil {
			if *in.MaxMembers < len(c.Members) {
				return fmt.Errorf("%w: convoy already has %d members", domain.ErrValidation, len(c.Members))
			}
			c.MaxMembers = *in.MaxMembers
		}
		if in.ClearRoute {
			c.SetRoute(nil)
		} else if in.Route != nil {
			c.SetRoute(in.Route)
		}
		if in.Visibility != nil {
			c.Visibility = *in.Visibility
		}
		switch {
		case c.Visibility == domain.VisibilityInvite && c.JoinCode == nil:
			code, err := s.newCode()
			if err != nil {
				return err
			}
			c.JoinCode = code
		case c.Visibility != domain.VisibilityInvite:
			c.JoinCode = nil
		}
		return nil
	})
}

// RegenerateJoinCode rotates the code of an invite-only convoy.
func (s *ConvoyService) RegenerateJoinCode(ctx context.Context, convoyID uuid.UUID, requesterID uint) (c *models.Convoy, err error) {
	defer observe("regenerate_code", &err)
	return s.mutate(ctx, convoyID, func(c *models.Convoy) error {
		if err := c.RequireOwner(requesterID); err != nil {
			return err
		}
		if c.Visibility != domain.VisibilityInvite {
			return fmt.Errorf("%w: only invite-only convoys have a join code", domain.ErrValidation)
		}
		code, err := s.newCode()
		if err != nil {
			return err
		}
		c.JoinCode = code
		return nil
	})
}

// Delete soft-deletes the convoy. It is ended first if live.
func (s *ConvoyService) Delete(ctx context.Context, convoyID uuid.UUID, requesterID uint) (c *models.Convoy, err error) {
	defer observe("delete", &err)
	now := s.now()
	c, err = s.mutate(ctx, convoyID, func(c *models.Convoy) error {
		if err := c.RequireOwner(requesterID); err != nil {
			return err
		}
		c.SoftDelete(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("convoy deleted", "convoy_id", convoyID, "owner_id", requesterID)
	return c, nil
}

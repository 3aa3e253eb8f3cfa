package models

import (
	"fmt"
	"sort"
	"time"

	"convoyhub/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Waypoint is one stop on a convoy route.
type Waypoint struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Name  string  `json:"name,omitempty"`
	Order int     `json:"order"`
}

// Route is stored as a single JSON column; distance in meters, duration in seconds.
type Route struct {
	Waypoints []Waypoint `json:"waypoints"`
	Polyline  *string    `json:"polyline,omitempty"`
	Distance  *float64   `json:"distance,omitempty"`
	Duration  *float64   `json:"duration,omitempty"`
}

// Center is the latest location snapshot of a convoy. It is always replaced
// as a whole.
type Center struct {
	Lat        float64   `gorm:"column:lat;type:decimal(10,8);not null;default:0;index:idx_convoy_center" json:"lat"`
	Lng        float64   `gorm:"column:lng;type:decimal(11,8);not null;default:0;index:idx_convoy_center" json:"lng"`
	Heading    *float64  `gorm:"column:heading" json:"heading,omitempty"`
	Speed      *float64  `gorm:"column:speed" json:"speed,omitempty"`
	Accuracy   *float64  `gorm:"column:accuracy" json:"accuracy,omitempty"`
	RecordedAt time.Time `gorm:"column:recorded_at;index" json:"updated_at"`
}

// ConvoyMember is one membership row. Seq is the per-convoy join sequence and
// decides owner succession.
type ConvoyMember struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	ConvoyID uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_convoy_member" json:"-"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_convoy_member;index" json:"user_id"`
	Seq      int64     `gorm:"not null" json:"seq"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`
}

func (ConvoyMember) TableName() string {
	return "convoy_members"
}

type Convoy struct {
	ID          uuid.UUID                  `gorm:"type:char(36);primaryKey" json:"id"`
	OwnerID     uint                       `gorm:"not null;index" json:"owner_id"`
	Title       *string                    `gorm:"size:100" json:"title,omitempty"`
	Description *string                    `gorm:"size:500" json:"description,omitempty"`
	IsLive      bool                       `gorm:"not null;default:false;index" json:"is_live"`
	Visibility  string                     `gorm:"size:10;not null;default:'public'" json:"visibility"`
	MaxMembers  int                        `gorm:"not null;default:20" json:"max_members"`
	JoinCode    *string                    `gorm:"size:6;uniqueIndex" json:"join_code,omitempty"` // NULL unless invite-only
	MemberSeq   int64                      `gorm:"not null;default:0" json:"-"`
	Route       *datatypes.JSONType[Route] `gorm:"type:json" json:"route,omitempty"`
	Center      Center                     `gorm:"embedded;embeddedPrefix:center_" json:"current_center"`
	StartedAt   *time.Time                 `json:"started_at,omitempty"`
	EndedAt     *time.Time                 `json:"ended_at,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
	DeletedAt   gorm.DeletedAt             `gorm:"index" json:"-"`

	Members []ConvoyMember `gorm:"foreignKey:ConvoyID" json:"members"`
}

func (Convoy) TableName() string {
	return "convoys"
}

func (c *Convoy) IsMember(userID uint) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// MemberIDs returns member user ids in join order.
func (c *Convoy) MemberIDs() []uint {
	ids := make([]uint, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.UserID
	}
	return ids
}

func (c *Convoy) IsFull() bool { return len(c.Members) >= c.MaxMembers }

// IsOrphaned reports a convoy whose last member left; OwnerID still names the
// last owner.
func (c *Convoy) IsOrphaned() bool { return len(c.Members) == 0 }

// SetRoute replaces the route; nil clears it.
func (c *Convoy) SetRoute(r *Route) {
	if r == nil {
		c.Route = nil
		return
	}
	j := datatypes.NewJSONType(*r)
	c.Route = &j
}

// RouteData returns the decoded route or nil.
func (c *Convoy) RouteData() *Route {
	if c.Route == nil {
		return nil
	}
	r := c.Route.Data()
	return &r
}

// RequireOwner fails with ErrForbidden unless userID is the owner and still a member.
func (c *Convoy) RequireOwner(userID uint) error {
	if c.OwnerID != userID || !c.IsMember(userID) {
		return fmt.Errorf("%w: only the convoy owner can do this", domain.ErrForbidden)
	}
	return nil
}

// AddMember appends userID with the next join sequence. It is a no-op when
// userID is already a member and reports whether a row was added. The first
// member of an empty convoy becomes its owner.
func (c *Convoy) AddMember(userID uint, at time.Time) (bool, error) {
	if c.IsMember(userID) {
		return false, nil
	}
	if c.IsFull() {
		return false, fmt.Errorf("%w: %d of %d members", domain.ErrCapacity, len(c.Members), c.MaxMembers)
	}
	c.MemberSeq++
	c.Members = append(c.Members, ConvoyMember{
		ConvoyID: c.ID,
		UserID:   userID,
		Seq:      c.MemberSeq,
		JoinedAt: at,
	})
	if len(c.Members) == 1 {
		c.OwnerID = userID
	}
	return true, nil
}

// RemoveMember drops userID. An owner is succeeded by the earliest-joined
// remaining member; removing the last member ends the convoy.
func (c *Convoy) RemoveMember(userID uint, at time.Time) error {
	idx := -1
	for i, m := range c.Members {
		if m.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: user %d", domain.ErrNotMember, userID)
	}
	c.Members = append(c.Members[:idx:idx], c.Members[idx+1:]...)

	if len(c.Members) == 0 {
		c.IsLive = false
		t := at
		c.EndedAt = &t
		return nil
	}
	if c.OwnerID == userID {
		c.OwnerID = c.earliestMember().UserID
	}
	return nil
}

func (c *Convoy) earliestMember() ConvoyMember {
	first := c.Members[0]
	for _, m := range c.Members[1:] {
		if m.Seq < first.Seq {
			first = m
		}
	}
	return first
}

// SortMembers orders Members by join sequence.
func (c *Convoy) SortMembers() {
	sort.SliceStable(c.Members, func(i, j int) bool { return c.Members[i].Seq < c.Members[j].Seq })
}

// Start makes the convoy live. Starting a live convoy changes nothing.
func (c *Convoy) Start(requesterID uint, at time.Time) error {
	if err := c.RequireOwner(requesterID); err != nil {
		return err
	}
	if c.IsLive {
		return nil
	}
	t := at
	c.IsLive = true
	c.StartedAt = &t
	c.EndedAt = nil
	return nil
}

// End stops a live convoy. Ending a convoy that is not live changes nothing.
func (c *Convoy) End(requesterID uint, at time.Time) error {
	if err := c.RequireOwner(requesterID); err != nil {
		return err
	}
	if !c.IsLive {
		return nil
	}
	t := at
	c.IsLive = false
	c.EndedAt = &t
	return nil
}

// SoftDelete ends the convoy, releases its join code and marks it deleted.
func (c *Convoy) SoftDelete(at time.Time) {
	if c.IsLive {
		t := at
		c.IsLive = false
		c.EndedAt = &t
	}
	c.JoinCode = nil
	c.DeletedAt = gorm.DeletedAt{Time: at, Valid: true}
}

// CheckInvariants verifies the rules every persisted convoy must satisfy.
func (c *Convoy) CheckInvariants() error {
	if len(c.Members) > 0 && !c.IsMember(c.OwnerID) {
		return fmt.Errorf("%w: owner %d is not a member", domain.ErrValidation, c.OwnerID)
	}
	if len(c.Members) > c.MaxMembers {
		return fmt.Errorf("%w: %d members exceed max %d", domain.ErrValidation, len(c.Members), c.MaxMembers)
	}
	if c.MaxMembers < domain.MinConvoyMembers || c.MaxMembers > domain.MaxConvoyMembers {
		return fmt.Errorf("%w: max members %d out of range", domain.ErrValidation, c.MaxMembers)
	}
	if !c.DeletedAt.Valid && (c.JoinCode != nil) != (c.Visibility == domain.VisibilityInvite) {
		return fmt.Errorf("%w: join code must be set exactly for invite-only convoys", domain.ErrValidation)
	}
	if c.IsLive && c.StartedAt == nil {
		return fmt.Errorf("%w: live convoy without start time", domain.ErrValidation)
	}
	if !c.IsLive && c.StartedAt != nil && c.EndedAt != nil && c.EndedAt.Before(*c.StartedAt) {
		return fmt.Errorf("%w: ended before it started", domain.ErrValidation)
	}
	return nil
}

// Clone returns a deep copy safe to mutate independently.
func (c *Convoy) Clone() *Convoy {
	cp := *c
	cp.Members = append([]ConvoyMember(nil), c.Members...)
	cp.Title = cloneString(c.Title)
	cp.Description = cloneString(c.Description)
	cp.JoinCode = cloneString(c.JoinCode)
	cp.StartedAt = cloneTime(c.StartedAt)
	cp.EndedAt = cloneTime(c.EndedAt)
	if c.Route != nil {
		r := *c.Route
		cp.Route = &r
	}
	cp.Center.Heading = cloneFloat(c.Center.Heading)
	cp.Center.Speed = cloneFloat(c.Center.Speed)
	cp.Center.Accuracy = cloneFloat(c.Center.Accuracy)
	return &cp
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

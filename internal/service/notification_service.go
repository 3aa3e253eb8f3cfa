package service

import (
	"context"
	"encoding/json"
	"fmt"

	"convoyhub/internal/domain"
	"convoyhub/internal/logger"
	"convoyhub/internal/models"
)

// NotificationStore persists notification rows.
type NotificationStore interface {
	CreateBatch(ctx context.Context, list []models.Notification) error
	ListByUserID(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID uint) error
}

// NotificationService records membership and lifecycle events for convoy
// members. Handlers call it after a successful convoy operation; failures are
// logged and never fail the request.
type NotificationService struct {
	repo NotificationStore
	log  *logger.Logger
}

func NewNotificationService(repo NotificationStore, log *logger.Logger) *NotificationService {
	return &NotificationService{repo: repo, log: log.With("service", "notification")}
}

// Notify stores one notification per recipient, skipping the actor.
func (s *NotificationService) Notify(ctx context.Context, c *models.Convoy, actorID uint, recipients []uint, notifType, title, body string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["convoy_id"] = c.ID.String()
	data["actor_id"] = actorID
	b, _ := json.Marshal(data)

	convoyID := c.ID
	list := make([]models.Notification, 0, len(recipients))
	for _, uid := range recipients {
		if uid == actorID || uid == 0 {
			continue
		}
		list = append(list, models.Notification{
			UserID:   uid,
			ConvoyID: &convoyID,
			Type:     notifType,
			Title:    title,
			Body:     body,
			Data:     string(b),
		})
	}
	if err := s.repo.CreateBatch(ctx, list); err != nil {
		s.log.Warn("notification insert failed", "convoy_id", c.ID, "type", notifType, "error", err)
	}
}

func convoyName(c *models.Convoy) string {
	if c.Title != nil {
		return *c.Title
	}
	return "your convoy"
}

// MembershipChanged notifies the remaining members of a join, leave or kick,
// and the new owner of a transfer.
func (s *NotificationService) MembershipChanged(ctx context.Context, m *MembershipChange, actorID uint, joined bool) {
	if m == nil || !m.Changed {
		return
	}
	c := m.Convoy
	switch {
	case joined && actorID == m.UserID:
		s.Notify(ctx, c, actorID, c.MemberIDs(), domain.NotifConvoyMemberJoined,
			"New convoy member", fmt.Sprintf("A new member joined %s", convoyName(c)), map[string]interface{}{"user_id": m.UserID})
	case joined:
		s.Notify(ctx, c, actorID, []uint{m.UserID}, domain.NotifConvoyAdded,
			"Added to convoy", fmt.Sprintf("You were added to %s", convoyName(c)), nil)
	case actorID == m.UserID:
		s.Notify(ctx, c, actorID, c.MemberIDs(), domain.NotifConvoyMemberLeft,
			"Member left", fmt.Sprintf("A member left %s", convoyName(c)), map[string]interface{}{"user_id": m.UserID})
	default:
		s.Notify(ctx, c, actorID, []uint{m.UserID}, domain.NotifConvoyMemberRemoved,
			"Removed from convoy", fmt.Sprintf("You were removed from %s", convoyName(c)), nil)
	}
	if m.OwnerChanged() {
		s.Notify(ctx, c, 0, []uint{c.OwnerID}, domain.NotifConvoyOwnerChanged,
			"You own this convoy", fmt.Sprintf("You are now the owner of %s", convoyName(c)), nil)
	}
}

// LifecycleChanged notifies members that the owner started or ended the convoy.
func (s *NotificationService) LifecycleChanged(ctx context.Context, c *models.Convoy, actorID uint) {
	if c.IsLive {
		s.Notify(ctx, c, actorID, c.MemberIDs(), domain.NotifConvoyStarted,
			"Convoy started", fmt.Sprintf("%s is live", convoyName(c)), nil)
		return
	}
	s.Notify(ctx, c, actorID, c.MemberIDs(), domain.NotifConvoyEnded,
		"Convoy ended", fmt.Sprintf("%s has ended", convoyName(c)), nil)
}

func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUserID(ctx, userID, limit, offset)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	return s.repo.MarkRead(ctx, id, userID)
}

package repository

import (
	"context"
	"fmt"
	"time"

	"convoyhub/internal/domain"
	"convoyhub/internal/models"
	"convoyhub/pkg/location"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConvoyRepository is the MySQL-backed ConvoyStore. Membership changes run
// under a row lock on the convoy so the capacity check and the insert happen
// as one unit; center updates are a single conditional UPDATE.
type ConvoyRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

var _ ConvoyStore = (*ConvoyRepository)(nil)

func NewConvoyRepository(db *gorm.DB, timeout time.Duration) *ConvoyRepository {
	return &ConvoyRepository{db: db, timeout: timeout}
}

func (r *ConvoyRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func membersByJoinOrder(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}

func (r *ConvoyRepository) Create(ctx context.Context, c *models.Convoy) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		members := c.Members
		if err := tx.Omit("Members").Create(c).Error; err != nil {
			return err
		}
		if len(members) > 0 {
			if err := tx.Create(&members).Error; err != nil {
				return err
			}
		}
		c.Members = members
		return nil
	})
	return translateConvoy(err, "convoy")
}

func (r *ConvoyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Convoy, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var c models.Convoy
	err := r.db.WithContext(ctx).
		Preload("Members", membersByJoinOrder).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, translateConvoy(err, "convoy "+id.String())
	}
	return &c, nil
}

func (r *ConvoyRepository) GetByJoinCode(ctx context.Context, code string) (*models.Convoy, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var c models.Convoy
	err := r.db.WithContext(ctx).
		Preload("Members", membersByJoinOrder).
		Where("join_code = ?", code).
		First(&c).Error
	if err != nil {
		return nil, translateConvoy(err, "join code")
	}
	return &c, nil
}

func (r *ConvoyRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(c *models.Convoy) error) (*models.Convoy, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var out *models.Convoy
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Convoy
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&c).Error; err != nil {
			return translateConvoy(err, "convoy "+id.String())
		}
		if err := tx.Where("convoy_id = ?", id).Order("seq ASC").Find(&c.Members).Error; err != nil {
			return err
		}
		before := memberSet(c.Members)

		if err := fn(&c); err != nil {
			return err
		}
		c.UpdatedAt = time.Now()
		if err := tx.Model(&models.Convoy{}).Where("id = ?", id).Updates(convoyColumns(&c)).Error; err != nil {
			return err
		}

		after := memberSet(c.Members)
		var removed []uint
		for uid := range before {
			if _, ok := after[uid]; !ok {
				removed = append(removed, uid)
			}
		}
		if len(removed) > 0 {
			if err := tx.Where("convoy_id = ? AND user_id IN ?", id, removed).Delete(&models.ConvoyMember{}).Error; err != nil {
				return err
			}
		}
		var added []models.ConvoyMember
		for _, m := range c.Members {
			if _, ok := before[m.UserID]; !ok {
				added = append(added, m)
			}
		}
		if len(added) > 0 {
			if err := tx.Create(&added).Error; err != nil {
				return err
			}
		}
		out = &c
		return nil
	})
	if err != nil {
		return nil, translateConvoy(err, "convoy "+id.String())
	}
	return out, nil
}

func memberSet(members []models.ConvoyMember) map[uint]struct{} {
	set := make(map[uint]struct{}, len(members))
	for _, m := range members {
		set[m.UserID] = struct{}{}
	}
	return set
}

// convoyColumns lists every column Mutate may change. The center is owned by
// UpdateCenter and never written here.
func convoyColumns(c *models.Convoy) map[string]interface{} {
	return map[string]interface{}{
		"owner_id":    c.OwnerID,
		"title":       c.Title,
		"description": c.Description,
		"is_live":     c.IsLive,
		"visibility":  c.Visibility,
		"max_members": c.MaxMembers,
		"join_code":   c.JoinCode,
		"member_seq":  c.MemberSeq,
		"route":       c.Route,
		"started_at":  c.StartedAt,
		"ended_at":    c.EndedAt,
		"deleted_at":  c.DeletedAt,
		"updated_at":  c.UpdatedAt,
	}
}

func (r *ConvoyRepository) UpdateCenter(ctx context.Context, id uuid.UUID, userID uint, center models.Center) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	res := r.db.WithContext(ctx).Model(&models.Convoy{}).
		Where("id = ?", id).
		Where("EXISTS (SELECT 1 FROM convoy_members cm WHERE cm.convoy_id = convoys.id AND cm.user_id = ?)", userID).
		Updates(map[string]interface{}{
			"center_lat":         center.Lat,
			"center_lng":         center.Lng,
			"center_heading":     center.Heading,
			"center_speed":       center.Speed,
			"center_accuracy":    center.Accuracy,
			"center_recorded_at": center.RecordedAt,
		})
	if res.Error != nil {
		return translateConvoy(res.Error, "convoy "+id.String())
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// Zero rows is also what MySQL reports for an identical fix when the
	// DSN lacks clientFoundRows, so look before blaming the caller.
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Convoy{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return translateConvoy(err, "convoy "+id.String())
	}
	if n == 0 {
		return fmt.Errorf("%w: convoy %s", domain.ErrNotFound, id)
	}
	if err := r.db.WithContext(ctx).Model(&models.ConvoyMember{}).
		Where("convoy_id = ? AND user_id = ?", id, userID).
		Count(&n).Error; err != nil {
		return translate(err, "convoy member")
	}
	if n > 0 {
		return nil
	}
	return fmt.Errorf("%w: user %d", domain.ErrNotMember, userID)
}

func (r *ConvoyRepository) FindNearby(ctx context.Context, box location.Box, requesterID uint, limit, offset int) ([]models.Convoy, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var list []models.Convoy
	err := r.db.WithContext(ctx).
		Preload("Members", membersByJoinOrder).
		Where("is_live = ?", true).
		Where("center_lat BETWEEN ? AND ?", box.MinLat, box.MaxLat).
		Where("center_lng BETWEEN ? AND ?", box.MinLng, box.MaxLng).
		Where("(visibility <> ? OR EXISTS (SELECT 1 FROM convoy_members cm WHERE cm.convoy_id = convoys.id AND cm.user_id = ?))",
			domain.VisibilityPrivate, requesterID).
		Order("center_recorded_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&list).Error
	if err != nil {
		return nil, translateConvoy(err, "convoys")
	}
	return list, nil
}

func (r *ConvoyRepository) ListByMember(ctx context.Context, userID uint, limit, offset int) ([]models.Convoy, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var list []models.Convoy
	err := r.db.WithContext(ctx).
		Preload("Members", membersByJoinOrder).
		Joins("JOIN convoy_members cm ON cm.convoy_id = convoys.id AND cm.user_id = ?", userID).
		Order("convoys.updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&list).Error
	if err != nil {
		return nil, translateConvoy(err, "convoys")
	}
	return list, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"convoyhub/internal/domain"
	"convoyhub/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository is the identity store: accounts, convoy counters and the
// last known position of each user.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	return translate(r.db.WithContext(ctx).Create(u).Error, "user")
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Preload("Location").First(&u, id).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("user %d", id))
	}
	return &u, nil
}

// FindUserByID is GetByID under the identity store's name.
func (r *UserRepository) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	return translate(r.db.WithContext(ctx).Omit("Location").Save(u).Error, "user")
}

var userStats = map[string]struct{}{
	domain.StatConvoysJoined:  {},
	domain.StatConvoysCreated: {},
}

// IncrementUserStat adds delta to one of the convoy counters in a single UPDATE.
func (r *UserRepository) IncrementUserStat(ctx context.Context, id uint, field string, delta int) error {
	if _, ok := userStats[field]; !ok {
		return fmt.Errorf("%w: unknown user stat %q", domain.ErrValidation, field)
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn(field, gorm.Expr(field+" + ?", delta))
	if res.Error != nil {
		return translate(res.Error, "user")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	return nil
}

// UpdateUserLocation upserts the user's last known position.
func (r *UserRepository) UpdateUserLocation(ctx context.Context, id uint, lat, lng float64, heading, speed *float64) error {
	loc := models.UserLocation{
		UserID:        id,
		Latitude:      lat,
		Longitude:     lng,
		Heading:       heading,
		Speed:         speed,
		LastUpdatedAt: time.Now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "heading", "speed", "last_updated_at", "updated_at"}),
	}).Create(&loc).Error
	return translate(err, "user location")
}

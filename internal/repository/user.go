package repository

import (
	"affiliate-commission/internal/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository lookups return (nil, nil) when no row matches.
type UserRepository interface {
	FindByEmail(ctx context.Context, tx *gorm.DB, email string) (*model.User, error)
	LockByEmail(ctx context.Context, tx *gorm.DB, email string) (*model.User, error)
	FindByID(ctx context.Context, userID string) (*model.User, error)
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, user *model.User) (bool, error)
	EmailTaken(ctx context.Context, email, exceptUserID string) (bool, error)
	Update(ctx context.Context, tx *gorm.DB, user *model.User) error
}

type userRepoImpl struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepoImpl{
		db: db,
	}
}

func (r *userRepoImpl) FindByEmail(ctx context.Context, tx *gorm.DB, email string) (*model.User, error) {
	return r.findByEmail(tx.WithContext(ctx), email)
}

// LockByEmail is a locking read, so it sees rows committed after the
// transaction's snapshot was taken.
func (r *userRepoImpl) LockByEmail(ctx context.Context, tx *gorm.DB, email string) (*model.User, error) {
	return r.findByEmail(
		tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}),
		email,
	)
}

func (r *userRepoImpl) findByEmail(query *gorm.DB, email string) (*model.User, error) {
	var user model.User
	err := query.
		Where("email = ?", email).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepoImpl) FindByID(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("id = ?", userID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// CreateIfAbsent inserts the user unless the email is already taken. It
// reports whether this call created the row.
func (r *userRepoImpl) CreateIfAbsent(ctx context.Context, tx *gorm.DB, user *model.User) (bool, error) {
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoNothing: true,
		}).
		Create(user)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *userRepoImpl) EmailTaken(ctx context.Context, email, exceptUserID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.User{}).
		Where("email = ?", email)
	if exceptUserID != "" {
		query = query.Where("id <> ?", exceptUserID)
	}
	err := query.Count(&count).Error

	return count > 0, err
}

func (r *userRepoImpl) Update(ctx context.Context, tx *gorm.DB, user *model.User) error {
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"email":      user.Email,
			"name":       user.Name,
			"password":   user.Password,
			"updated_at": time.Now(),
		}).Error
}

package account

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) CreateAccount(ctx context.Context, a *models.Account) error {
	if err := r.DB.WithContext(ctx).Create(a).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *GormRepo) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormRepo) FindByID(ctx context.Context, id uint) (*models.Account, error) {
	var a models.Account
	if err := r.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormRepo) SaveRefresh(ctx context.Context, t *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

// RotateRefresh revokes the presented token and stores its successor in one transaction.
// The conditional update makes a replayed token lose the race. Expiry is enforced by the
// JWT exp claim before this is called.
func (r *GormRepo) RotateRefresh(ctx context.Context, oldJTI, oldHash string, next *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("jti = ? AND token_hash = ? AND revoked = ?", oldJTI, oldHash, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidRefresh
		}
		return tx.Create(next).Error
	})
}

func (r *GormRepo) RevokeRefresh(ctx context.Context, tokenHash string) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

package cart

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/catalog"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/models"
)

const upsertAttempts = 3

// AccountStore keeps an authenticated cart as cart_items rows.
type AccountStore struct {
	db        *gorm.DB
	accountID uint
}

func NewAccountStore(gdb *gorm.DB, accountID uint) *AccountStore {
	return &AccountStore{db: gdb, accountID: accountID}
}

// AddItem increments the existing row or inserts a new one. A concurrent insert of the same
// product loses on the unique index and is retried as an increment.
func (s *AccountStore) AddItem(ctx context.Context, p catalog.Product, qty int) error {
	line := LineFromProduct(p, qty)

	var err error
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.upsert(tx, line)
		})
		if err == nil || !db.IsUniqueViolation(err) {
			break
		}
	}
	return classifyDB("add item", err)
}

func (s *AccountStore) upsert(tx *gorm.DB, line Line) error {
	res := tx.Model(&models.CartItem{}).
		Where("account_id = ? AND product_id = ?", s.accountID, line.ProductID).
		Update("quantity", gorm.Expr("quantity + ?", line.Quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	item := models.CartItem{
		AccountID: s.accountID,
		ProductID: line.ProductID,
		Title:     line.Title,
		Price:     line.Price,
		Thumbnail: line.Thumbnail,
		Quantity:  line.Quantity,
	}
	return tx.Create(&item).Error
}

func (s *AccountStore) SetQuantityDelta(ctx context.Context, productID, delta int) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if delta < 0 {
			res := tx.Where("account_id = ? AND product_id = ? AND quantity + ? <= 0", s.accountID, productID, delta).
				Delete(&models.CartItem{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				return nil
			}
		}

		res := tx.Model(&models.CartItem{}).
			Where("account_id = ? AND product_id = ?", s.accountID, productID).
			Update("quantity", gorm.Expr("quantity + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrLineNotFound
		}
		return nil
	})
	return classifyDB("set quantity", err)
}

func (s *AccountStore) RemoveItem(ctx context.Context, productID int) error {
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND product_id = ?", s.accountID, productID).
		Delete(&models.CartItem{}).Error
	return classifyDB("remove item", err)
}

func (s *AccountStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Where("account_id = ?", s.accountID).Delete(&models.CartItem{}).Error
	return classifyDB("clear", err)
}

func (s *AccountStore) ListItems(ctx context.Context) ([]Line, error) {
	var items []models.CartItem
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", s.accountID).
		Order("product_id").
		Find(&items).Error; err != nil {
		return nil, classifyDB("list items", err)
	}

	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{
			ProductID: it.ProductID,
			Title:     it.Title,
			Price:     it.Price,
			Thumbnail: it.Thumbnail,
			Quantity:  it.Quantity,
		})
	}
	return lines, nil
}

func (s *AccountStore) Total(ctx context.Context) (float64, error) {
	lines, err := s.ListItems(ctx)
	if err != nil {
		return 0, err
	}
	return Total(lines), nil
}

func (s *AccountStore) Count(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("account_id = ?", s.accountID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&n).Error
	if err != nil {
		return 0, classifyDB("count", err)
	}
	return int(n), nil
}

func (s *AccountStore) Replace(ctx context.Context, lines []Line) error {
	next := collapse(append([]Line(nil), lines...))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", s.accountID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if len(next) == 0 {
			return nil
		}
		items := make([]models.CartItem, 0, len(next))
		for _, l := range next {
			items = append(items, models.CartItem{
				AccountID: s.accountID,
				ProductID: l.ProductID,
				Title:     l.Title,
				Price:     l.Price,
				Thumbnail: l.Thumbnail,
				Quantity:  l.Quantity,
			})
		}
		return tx.Create(&items).Error
	})
	return classifyDB("replace", err)
}

// mergeLines adds lines into the account cart inside one transaction.
func (s *AccountStore) mergeLines(ctx context.Context, lines []Line) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range lines {
			if err := s.upsert(tx, l); err != nil {
				return err
			}
		}
		return nil
	})
	return classifyDB("merge", err)
}

func classifyDB(op string, err error) error {
	if err == nil || errors.Is(err, ErrLineNotFound) {
		return err
	}
	if db.IsTransient(err) || db.IsUniqueViolation(err) {
		return fmt.Errorf("account cart %s: %w: %w", op, ErrTransient, err)
	}
	return fmt.Errorf("account cart %s: %w", op, err)
}

package models

import (
	"time"
)

type Account struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"not null"                 json:"username"`
	Email        string    `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	CreatedAt    time.Time `                                json:"created_at"`
}

// CartItem is one line of an account cart. (account_id, product_id) is unique so
// concurrent adds of the same product collapse into a single row.
type CartItem struct {
	ID        uint    `gorm:"primaryKey"                                 json:"id"`
	AccountID uint    `gorm:"uniqueIndex:idx_account_product;not null"   json:"account_id"`
	ProductID int     `gorm:"uniqueIndex:idx_account_product;not null"   json:"product_id"`
	Title     string  `gorm:"not null"                                   json:"title"`
	Price     float64 `gorm:"not null"                                   json:"price"`
	Thumbnail string  `                                                  json:"thumbnail"`
	Quantity  int     `gorm:"not null;default:1;check:quantity > 0"      json:"quantity"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"           json:"id"`
	JTI       string    `gorm:"uniqueIndex;not null" json:"jti"`
	AccountID uint      `gorm:"index;not null"       json:"account_id"`
	TokenHash string    `gorm:"index;not null"       json:"-"`
	ExpiresAt time.Time `gorm:"not null"             json:"expires_at"`
	Revoked   bool      `gorm:"default:false"        json:"revoked"`
}

func All() []any {
	return []any{&Account{}, &CartItem{}, &RefreshToken{}}
}

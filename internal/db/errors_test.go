package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pq unique", err: &pq.Error{Code: "23505"}, want: true},
		{name: "pq other", err: &pq.Error{Code: "23503"}, want: false},
		{name: "sqlite message", err: errors.New("constraint failed: UNIQUE constraint failed: cart_items.account_id (2067)"), want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, want: true},
		{name: "deadlock", err: fmt.Errorf("tx: %w", &pq.Error{Code: "40P01"}), want: true},
		{name: "lock not available", err: &pq.Error{Code: "55P03"}, want: true},
		{name: "unique is not transient", err: &pq.Error{Code: "23505"}, want: false},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "record not found", err: gorm.ErrRecordNotFound, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

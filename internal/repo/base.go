package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Base is the connection a repository runs its queries on. Repositories embed
// it and rebind it to a transaction with Bind.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil ctx returns it unbound.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bind returns a Base running on tx, or b itself when tx is nil.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Transaction runs fn in a transaction on the bound connection. When the base
// is already bound to a transaction gorm nests it as a savepoint.
func (b Base) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.DB(ctx).Transaction(fn)
}

// IsNotFound reports whether err is gorm's missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

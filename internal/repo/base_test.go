package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type row struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&row{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}
	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBind(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if got := base.Bind(nil); got.db != db {
		t.Fatalf("nil tx should keep the original connection")
	}
	tx := db.Session(&gorm.Session{})
	if got := base.Bind(tx); got.db != tx {
		t.Fatalf("expected base bound to tx")
	}
}

func TestTransactionRollsBack(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)
	ctx := context.Background()

	err := base.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&row{Name: "lost"}).Error; err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var count int64
	if err := db.Model(&row{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, got %d rows", count)
	}
}

func TestIsNotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.First(&row{}, "name = ?", "missing").Error
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !IsNotFound(fmt.Errorf("wrapped: %w", err)) {
		t.Fatal("expected wrapped not found to match")
	}
	if IsNotFound(errors.New("other")) {
		t.Fatal("unrelated error matched")
	}
}

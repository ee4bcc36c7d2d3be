package cartengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const guestSlot = "guest"

type snapshotRow struct {
	Slot      string           `gorm:"column:slot;primaryKey"`
	GuestID   string           `gorm:"column:guest_id;not null"`
	Items     []types.CartItem `gorm:"column:items;serializer:json"`
	UpdatedAt time.Time        `gorm:"column:updated_at"`
}

func (snapshotRow) TableName() string { return "guest_cart_snapshots" }

// SQLiteStore keeps the snapshot in a single-row sqlite table. Useful when
// the device already ships a sqlite database for other state.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open cart database: %w", err)
	}
	if err := conn.AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrate cart database: %w", err)
	}
	return &SQLiteStore{db: conn}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).Where("slot = ?", guestSlot).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cart snapshot: %w", err)
	}
	return &Snapshot{GuestID: row.GuestID, Items: types.CloneItems(row.Items)}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, snapshot Snapshot) error {
	row := snapshotRow{
		Slot:      guestSlot,
		GuestID:   snapshot.GuestID,
		Items:     types.CloneItems(snapshot.Items),
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "slot"}}, UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("write cart snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("slot = ?", guestSlot).Delete(&snapshotRow{}).Error; err != nil {
		return fmt.Errorf("remove cart snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

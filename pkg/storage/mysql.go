package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVEntry is one persisted value.
type KVEntry struct {
	Key       string `gorm:"primaryKey;type:varchar(191)"`
	Value     string `gorm:"type:mediumtext;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string {
	return "kv_entries"
}

type mysqlKV struct {
	db *gorm.DB
}

// NewMySQL returns a KV stored in the kv_entries table. The table is
// migrated on construction.
func NewMySQL(db *gorm.DB) (KV, error) {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate kv_entries")
	}
	return &mysqlKV{db: db}, nil
}

func (r *mysqlKV) Get(ctx context.Context, key string) (string, error) {
	var entry KVEntry
	err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to get %s", key)
	}
	return entry.Value, nil
}

// Set upserts the value (INSERT ... ON DUPLICATE KEY UPDATE).
func (r *mysqlKV) Set(ctx context.Context, key, value string) error {
	entry := &KVEntry{Key: key, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return errors.Wrapf(err, "failed to set %s", key)
	}
	return nil
}

func (r *mysqlKV) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("`key` = ?", key).Delete(&KVEntry{}).Error; err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	return nil
}

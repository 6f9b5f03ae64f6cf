package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyValue is one persisted storefront key
type KeyValue struct {
	Namespace string    `gorm:"primaryKey;size:100"`
	Key       string    `gorm:"primaryKey;size:100"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName overrides the table name
func (KeyValue) TableName() string {
	return "storefront_kv"
}

// Store persists storefront keys in PostgreSQL, one row per key
type Store struct {
	db        *gorm.DB
	namespace string
}

// NewStore creates a store scoped to namespace
func NewStore(db *gorm.DB, namespace string) *Store {
	return &Store{db: db, namespace: namespace}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var kv KeyValue
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", s.namespace, key).
		First(&kv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return kv.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	kv := KeyValue{
		Namespace: s.namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND key IN ?", s.namespace, keys).
		Delete(&KeyValue{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Package gormstore keeps persistence documents in PostgreSQL through GORM.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/example/lab-reservations/internal/persistence"
)

// Document is the row layout of the lab_documents table.
type Document struct {
	Key       string `gorm:"primaryKey;size:64"`
	Revision  int64  `gorm:"not null"`
	Payload   string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName implements gorm's tabler interface.
func (Document) TableName() string {
	return "lab_documents"
}

// Storage implements persistence.KeyValueStore on a GORM connection.
type Storage struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to PostgreSQL and migrates the documents table.
func Open(ctx context.Context, databaseURL string) (*Storage, error) {
	if databaseURL == "" {
		return nil, errors.New("gormstore: database URL is empty")
	}
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: connect: %w", err)
	}
	storage, err := New(ctx, db)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return storage, nil
}

// New wraps an existing connection and migrates the documents table.
func New(ctx context.Context, db *gorm.DB) (*Storage, error) {
	if err := db.WithContext(ctx).AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("gormstore: auto-migrate: %w", err)
	}
	return &Storage{db: db, now: time.Now}, nil
}

// DB exposes the underlying connection.
func (s *Storage) DB() *gorm.DB {
	return s.db
}

// Close closes the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get implements persistence.KeyValueStore.
func (s *Storage) Get(ctx context.Context, key string) (persistence.Record, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return persistence.Record{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Record{}, fmt.Errorf("gormstore: get %s: %w", key, err)
	}
	return persistence.Record{
		Key:       doc.Key,
		Revision:  doc.Revision,
		Payload:   []byte(doc.Payload),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

// Put implements persistence.KeyValueStore.
func (s *Storage) Put(ctx context.Context, key string, expectedRevision int64, payload []byte) (int64, error) {
	next := expectedRevision + 1
	now := s.now().UTC()

	var result *gorm.DB
	if expectedRevision == 0 {
		result = s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Document{Key: key, Revision: next, Payload: string(payload), UpdatedAt: now})
	} else {
		result = s.db.WithContext(ctx).
			Model(&Document{}).
			Where("key = ? AND revision = ?", key, expectedRevision).
			Updates(map[string]any{"revision": next, "payload": string(payload), "updated_at": now})
	}
	if result.Error != nil {
		return 0, fmt.Errorf("gormstore: put %s: %w", key, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("gormstore: put %s: %w: not at revision %d", key, persistence.ErrRevisionConflict, expectedRevision)
	}
	return next, nil
}

// Package db archives session metadata in Postgres. The shared store
// stays authoritative for live games; rows here exist so created
// sessions survive a process restart and can be listed later.
package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Session struct {
	Code      string    `gorm:"primaryKey;size:8"`
	ImageURL  string    `gorm:"size:512"`
	Answer    string    `gorm:"size:128"`
	CreatedBy string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"not null"`
}

type Repo struct {
	db *gorm.DB
}

func Open(dsn string) (*Repo, error) {
	g, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := g.AutoMigrate(&Session{}); err != nil {
		return nil, fmt.Errorf("migrate sessions table: %w", err)
	}
	return &Repo{db: g}, nil
}

func (r *Repo) CreateSession(ctx context.Context, s Session) error {
	return r.db.WithContext(ctx).Create(&s).Error
}

func (r *Repo) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	var out []Session
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

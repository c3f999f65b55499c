// Package storage opens the relational store and runs migrations.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"lingochat/internal/chat"
	"lingochat/internal/config"
	"lingochat/internal/jobs"
	"lingochat/internal/models"
	"lingochat/internal/notes"
)

// Open connects per config (pure-Go sqlite by default, mysql optional) and
// auto-migrates the schema.
func Open(cfg config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.DBDSN), &gorm.Config{})
	case "", "sqlite":
		if dir := filepath.Dir(cfg.DBDSN); dir != "." && dir != "" {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, mkErr
			}
		}
		db, err = gorm.Open(sqlite.Open(cfg.DBDSN), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&chat.ChatRoom{},
		&chat.Message{},
		&notes.Note{},
		&jobs.PullJob{},
	); err != nil {
		return nil, err
	}
	return db, nil
}

package policystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config selects the sqlite database file backing a Store.
type Config struct {
	// Path is the sqlite database file path. Defaults to
	// "$XDG_CONFIG_HOME/agentfs/policy.db" when empty.
	Path string
}

// ApplyDefaults fills Path in when unset, mirroring the teacher's
// Config.ApplyDefaults.
func (c *Config) ApplyDefaults() {
	if c.Path != "" {
		return
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	c.Path = filepath.Join(configDir, "agentfs", "policy.db")
}

// Store persists policy/interpose settings in sqlite via gorm.
type Store struct {
	db *gorm.DB
}

// Open creates (or attaches to) the sqlite database described by cfg and
// runs AutoMigrate.
func Open(cfg Config) (*Store, error) {
	cfg.ApplyDefaults()

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create policy store directory: %w", err)
	}

	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open policy store: %w", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("migrate policy store: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the stored value for key, or "" if it has never been set.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var setting Setting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return setting.Value, nil
}

// Set upserts key's value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	setting := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Save(&setting).Error
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

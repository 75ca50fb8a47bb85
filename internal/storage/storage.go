// Package storage persists per-user preferences and the announcement links
// already delivered, in a SQLite database.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Preferences are the compression settings a user chose with /settings.
type Preferences struct {
	UserID    int64   `gorm:"primaryKey" json:"user_id"`
	MaxSizeKB int     `json:"max_size_kb"`
	Quality   int     `json:"quality"`
	Threshold float64 `json:"threshold"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SeenLink is an announcement link that has already been reported.
type SeenLink struct {
	URL       string `gorm:"primaryKey"`
	Page      string `gorm:"index"`
	Title     string
	FirstSeen time.Time
}

// Message is one logged incoming message. Content is the text, or the
// platform file id for media.
type Message struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    int64 `gorm:"index"`
	Type      string
	Content   string
	CreatedAt time.Time
}

// Link is the input of MarkSeen.
type Link struct {
	Page  string
	Title string
	URL   string
}

// Database handles database operations
type Database struct {
	db *gorm.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Database, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to ":memory:" sees its own database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Auto-migrate the schema
	if err := db.AutoMigrate(&Preferences{}, &SeenLink{}, &Message{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Database{db: db}, nil
}

// Preferences returns the stored preferences of user, or defaults when the
// user never changed them.
func (d *Database) Preferences(user int64, defaults Preferences) (Preferences, error) {
	var prefs Preferences
	err := d.db.First(&prefs, "user_id = ?", user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults.UserID = user
		return defaults, nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences inserts or updates prefs.
func (d *Database) SavePreferences(prefs Preferences) error {
	if err := d.db.Save(&prefs).Error; err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// DeletePreferences removes the preferences of user.
func (d *Database) DeletePreferences(user int64) error {
	if err := d.db.Delete(&Preferences{}, "user_id = ?", user).Error; err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return nil
}

// MarkSeen records links and returns those that were not seen before, in
// input order.
func (d *Database) MarkSeen(links []Link) ([]Link, error) {
	var fresh []Link
	err := d.db.Transaction(func(tx *gorm.DB) error {
		for _, l := range links {
			row := SeenLink{URL: l.URL, Page: l.Page, Title: l.Title, FirstSeen: time.Now()}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				fresh = append(fresh, l)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark links seen: %w", err)
	}
	return fresh, nil
}

// SeenCount returns the number of recorded links.
func (d *Database) SeenCount() (int64, error) {
	var n int64
	if err := d.db.Model(&SeenLink{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}

// RecordMessage appends an incoming message to the log.
func (d *Database) RecordMessage(user int64, kind, content string) error {
	msg := Message{UserID: user, Type: kind, Content: content}
	if err := d.db.Create(&msg).Error; err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// Messages returns the logged messages of user, oldest first. An empty kind
// matches every type.
func (d *Database) Messages(user int64, kind string) ([]Message, error) {
	q := d.db.Where("user_id = ?", user)
	if kind != "" {
		q = q.Where("type = ?", kind)
	}
	var msgs []Message
	if err := q.Order("id").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

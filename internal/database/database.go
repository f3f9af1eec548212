package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/claworc/log-viewer/internal/config"
)

var DB *gorm.DB

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

func Init() error {
	db, err := Open(config.Cfg.ResolvedDatabasePath())
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open opens (creating if needed) the SQLite database at dbPath in WAL mode
// and migrates the schema. ":memory:" is accepted for tests.
func Open(dbPath string) (*gorm.DB, error) {
	if dbPath != ":memory:" {
		if dbDir := filepath.Dir(dbPath); dbDir != "" {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		sqlDB.SetMaxOpenConns(1)
	} else if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&Setting{}, &SavedConnection{}, &TailRecord{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return db, nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

func DeleteSetting(key string) error {
	return DB.Where("key = ?", key).Delete(&Setting{}).Error
}

// Saved connection helpers

func ListConnections() ([]SavedConnection, error) {
	var conns []SavedConnection
	if err := DB.Order("name").Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}

func GetConnection(id uint) (*SavedConnection, error) {
	var c SavedConnection
	if err := DB.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("connection %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

func GetConnectionByName(name string) (*SavedConnection, error) {
	var c SavedConnection
	if err := DB.Where("name = ?", name).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("connection %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

func CreateConnection(c *SavedConnection) error {
	return DB.Create(c).Error
}

// SaveConnection writes every column of c, inserting if c.ID is zero.
func SaveConnection(c *SavedConnection) error {
	return DB.Save(c).Error
}

func DeleteConnection(id uint) error {
	res := DB.Delete(&SavedConnection{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("connection %d: %w", id, ErrNotFound)
	}
	return nil
}

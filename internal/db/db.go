package db

import (
	"fmt"
	"path/filepath"
	"strings"

	puresqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Handle struct {
	DB     *gorm.DB
	Path   string
	Driver string
}

// Options dla Open - odpowiada sekcji "database" w configu.
type Options struct {
	Driver string // sqlite (pure go, domyślny) | sqlite-cgo | mysql | postgres
	DSN    string
}

// OpenAt otwiera domyślną bazę sqlite w katalogu aplikacji.
func OpenAt(dir string) (*Handle, error) {
	return Open(Options{Driver: "sqlite"}, dir)
}

func Open(opts Options, dir string) (*Handle, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	dsn := opts.DSN
	var dial gorm.Dialector
	switch driver {
	case "sqlite", "sqlite-cgo":
		if dsn == "" {
			dsn = filepath.Join(dir, "barsync.db")
		}
		if driver == "sqlite" {
			dial = puresqlite.Open(dsn)
		} else {
			dial = sqlite.Open(dsn)
		}
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("db: driver %s wymaga dsn", driver)
		}
		dial = mysql.Open(dsn)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("db: driver %s wymaga dsn", driver)
		}
		dial = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("db: nieznany driver %q", opts.Driver)
	}

	gdb, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // logger.Info jeśli chcesz verbose SQL
	})
	if err != nil {
		return nil, err
	}
	return &Handle{DB: gdb, Path: dsn, Driver: driver}, nil
}

// OpenInMemory - sqlite w pamięci z jednym połączeniem (każde nowe połączenie = pusta baza).
func OpenInMemory() (*Handle, error) {
	h, err := Open(Options{Driver: "sqlite", DSN: ":memory:"}, "")
	if err != nil {
		return nil, err
	}
	sqlDB, err := h.DB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return h, nil
}

func (h *Handle) Close() error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

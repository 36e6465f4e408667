// Package db opens the shared SQLite store and applies per-service migrations.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // register sqlite3 driver
)

type MigrationError struct {
	Err         error
	Description string
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Description, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
}

// Connect opens the SQLite file at path, creating its directory when needed.
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serialises writes anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// Migrate applies the "migrations" directory of fsys to the SQLite file at path.
// Every service keeps its own version table so several services can share the file.
func Migrate(path string, fsys fs.FS, service string) error {
	source, err := iofs.New(fsys, "migrations")
	if err != nil {
		return &MigrationError{Err: err, Description: "failed to create migration source"}
	}

	// The migrate instance closes the connection it was given, so it gets its own.
	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return &MigrationError{Err: err, Description: "failed to open migration connection"}
	}

	driver, err := sqlite3.WithInstance(conn, &sqlite3.Config{
		MigrationsTable: "schema_migrations_" + strings.ReplaceAll(service, "-", "_"),
	})
	if err != nil {
		conn.Close()
		return &MigrationError{Err: err, Description: "failed to create migration driver"}
	}

	migration, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		conn.Close()
		return &MigrationError{Err: err, Description: "failed to create migration instance"}
	}
	defer migration.Close()

	if err := migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return &MigrationError{Err: err, Description: "failed to apply migration"}
	}

	return nil
}

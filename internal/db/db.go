// Package db opens the audit database kept under an app runtime directory.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".caseflow"
	fileName = "caseflow.db"
)

// StateDir returns the directory caseflow keeps its own files in.
func StateDir(runtimeDir string) string {
	if runtimeDir == "" {
		runtimeDir = "."
	}
	return filepath.Join(runtimeDir, stateDir)
}

// Path returns the database path for a runtime directory.
func Path(runtimeDir string) string {
	return filepath.Join(StateDir(runtimeDir), fileName)
}

// Open creates the state directory when missing and opens the database.
// A single connection serialises writers.
func Open(runtimeDir string) (*sql.DB, error) {
	if err := os.MkdirAll(StateDir(runtimeDir), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", Path(runtimeDir))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Package store provides persistent storage for the chain index using
// SQLite. A single-connection writer handle backs all mutating operations
// (SQLite allows only one writer); a separate pooled reader handle serves
// concurrent read queries.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the persistent index: transactions, addresses, the
// transactions-by-address join, and the forward block-hash chain.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	dbPath string
}

// Config holds storage configuration.
type Config struct {
	// DataDir is the directory the SQLite file lives in.
	DataDir string
	// ReaderPoolSize bounds how many concurrent read connections are kept
	// open. Zero selects a small default.
	ReaderPoolSize int
}

// New opens (creating if necessary) the index database and prepares its
// schema.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "index.db")
	dsn := dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

	writer, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open writer: %w", err)
	}
	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("store: ping writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(time.Hour)

	reader, err := sql.Open("sqlite3", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("store: open reader pool: %w", err)
	}
	if err := reader.Ping(); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("store: ping reader pool: %w", err)
	}
	poolSize := cfg.ReaderPoolSize
	if poolSize <= 0 {
		poolSize = 8
	}
	reader.SetMaxOpenConns(poolSize)
	reader.SetConnMaxLifetime(time.Hour)

	s := &Store{writer: writer, reader: reader, dbPath: dbPath}

	if err := s.prepareSchema(); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("store: prepare schema: %w", err)
	}

	return s, nil
}

// Close closes both database handles.
func (s *Store) Close() error {
	werr := s.writer.Close()
	rerr := s.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Path returns the SQLite file path backing this store.
func (s *Store) Path() string {
	return s.dbPath
}

const schema = `
CREATE TABLE IF NOT EXISTS tx (
	txid TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS address (
	address TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS output (
	txid TEXT NOT NULL,
	idx INTEGER NOT NULL,
	address TEXT NOT NULL,
	value INTEGER NOT NULL,
	PRIMARY KEY (txid, idx),
	FOREIGN KEY (txid) REFERENCES tx(txid)
);

CREATE TABLE IF NOT EXISTS input (
	txid TEXT NOT NULL,
	source_txid TEXT NOT NULL,
	source_idx INTEGER NOT NULL,
	FOREIGN KEY (txid) REFERENCES tx(txid),
	FOREIGN KEY (source_txid) REFERENCES tx(txid)
);

CREATE INDEX IF NOT EXISTS idx_input_source ON input(source_txid, source_idx);

CREATE TABLE IF NOT EXISTS txs_by_address (
	address TEXT NOT NULL,
	txid TEXT NOT NULL,
	PRIMARY KEY (address, txid),
	FOREIGN KEY (address) REFERENCES address(address),
	FOREIGN KEY (txid) REFERENCES tx(txid)
);

CREATE TABLE IF NOT EXISTS block (
	hash TEXT PRIMARY KEY,
	next TEXT
);

CREATE INDEX IF NOT EXISTS idx_block_next ON block(next);

CREATE TABLE IF NOT EXISTS last_block (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	hash TEXT NOT NULL
);
`

func (s *Store) prepareSchema() error {
	_, err := s.writer.Exec(schema)
	return err
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

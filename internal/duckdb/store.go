// Package duckdb provides a DuckDB-backed cache of Ensembl variation lookups
// and a ledger of harmonization runs.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection for cached lookups and run records.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database path, "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

var schema = []string{
	// One row per mapping of a looked-up variation.
	`CREATE TABLE IF NOT EXISTS ensembl_variants (
		assembly VARCHAR,
		query_id VARCHAR,
		name VARCHAR,
		seq_region_name VARCHAR,
		start_pos BIGINT,
		end_pos BIGINT,
		strand INTEGER,
		allele_string VARCHAR,
		assembly_name VARCHAR,
		fetched_at TIMESTAMP
	)`,
	// Identifiers Ensembl did not return.
	`CREATE TABLE IF NOT EXISTS ensembl_misses (
		assembly VARCHAR,
		query_id VARCHAR,
		fetched_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS harmonization_runs (
		run_id VARCHAR PRIMARY KEY,
		pgs_id VARCHAR,
		input_path VARCHAR,
		input_size BIGINT,
		input_mod_time TIMESTAMP,
		output_path VARCHAR,
		source_build VARCHAR,
		target_build VARCHAR,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		total INTEGER,
		by_lookup INTEGER,
		by_liftover INTEGER,
		author_reported INTEGER,
		not_mapped INTEGER,
		passed INTEGER,
		failed INTEGER,
		flips_fixed INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS harmonization_codes (
		run_id VARCHAR,
		hm_code INTEGER,
		n INTEGER
	)`,
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/inodb/pgs-harmonizer/internal/ensembl"
)

// queryBatch bounds the number of placeholders in one IN clause.
const queryBatch = 1000

// WriteVariations stores lookup results for assembly using the Appender API.
// Identifiers in missing, and variations without mappings, are recorded as
// known misses.
func (s *Store) WriteVariations(assembly string, t ensembl.Table, missing []string) error {
	if len(t) == 0 && len(missing) == 0 {
		return nil
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	now := time.Now().UTC()
	misses := append([]string(nil), missing...)

	if err := withAppender(conn, "ensembl_variants", func(a *goduckdb.Appender) error {
		for id, v := range t {
			if v == nil || len(v.Mappings) == 0 {
				misses = append(misses, id)
				continue
			}
			for _, m := range v.Mappings {
				if err := a.AppendRow(
					assembly, id, v.Name, m.SeqRegionName, m.Start, m.End,
					int32(m.Strand), m.AlleleString, m.AssemblyName, now,
				); err != nil {
					return fmt.Errorf("append variation: %w", err)
				}
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return withAppender(conn, "ensembl_misses", func(a *goduckdb.Appender) error {
		for _, id := range misses {
			if err := a.AppendRow(assembly, id, now); err != nil {
				return fmt.Errorf("append miss: %w", err)
			}
		}
		return nil
	})
}

// withAppender runs fn with an appender on table, then flushes and closes it.
func withAppender(conn *sql.Conn, table string, fn func(*goduckdb.Appender) error) error {
	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}

	if err := fn(appender); err != nil {
		appender.Close()
		return err
	}
	if err := appender.Flush(); err != nil {
		appender.Close()
		return fmt.Errorf("flush %s: %w", table, err)
	}
	return appender.Close()
}

// LookupVariations returns the cached variations for ids and the ids known
// to be absent from Ensembl. Identifiers in neither have not been fetched.
func (s *Store) LookupVariations(assembly string, ids []string) (ensembl.Table, map[string]bool, error) {
	table := make(ensembl.Table)
	misses := make(map[string]bool)

	for start := 0; start < len(ids); start += queryBatch {
		batch := ids[start:min(start+queryBatch, len(ids))]
		args := make([]any, 0, len(batch)+1)
		args = append(args, assembly)
		for _, id := range batch {
			args = append(args, id)
		}
		in := placeholders(len(batch))

		rows, err := s.db.Query(`SELECT
			query_id, name, seq_region_name, start_pos, end_pos, strand, allele_string, assembly_name
			FROM ensembl_variants
			WHERE assembly=? AND query_id IN (`+in+`)
			ORDER BY query_id, seq_region_name, start_pos`, args...)
		if err != nil {
			return nil, nil, fmt.Errorf("query variations: %w", err)
		}
		for rows.Next() {
			var id, name string
			var m ensembl.Mapping
			var strand int32
			if err := rows.Scan(&id, &name, &m.SeqRegionName, &m.Start, &m.End, &strand, &m.AlleleString, &m.AssemblyName); err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("scan variation: %w", err)
			}
			m.Strand = int(strand)
			v, ok := table[id]
			if !ok {
				v = &ensembl.Variation{Name: name}
				table[id] = v
			}
			v.Mappings = append(v.Mappings, m)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("iterate variations: %w", err)
		}
		rows.Close()

		rows, err = s.db.Query(`SELECT DISTINCT query_id FROM ensembl_misses
			WHERE assembly=? AND query_id IN (`+in+`)`, args...)
		if err != nil {
			return nil, nil, fmt.Errorf("query misses: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("scan miss: %w", err)
			}
			misses[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("iterate misses: %w", err)
		}
		rows.Close()
	}

	return table, misses, nil
}

// ClearVariations removes all cached lookups.
func (s *Store) ClearVariations() error {
	if _, err := s.db.Exec("DELETE FROM ensembl_variants"); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM ensembl_misses")
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Fetcher performs a remote identifier lookup.
type Fetcher interface {
	Lookup(ctx context.Context, ids []string) (ensembl.Table, error)
}

// CachedLookup serves lookups from the store and fetches only identifiers
// that have never been looked up, in a single remote call.
type CachedLookup struct {
	store    *Store
	fetcher  Fetcher
	assembly string
	logger   *zap.Logger
}

// NewCachedLookup wraps fetcher with the store's cache for assembly.
func NewCachedLookup(store *Store, fetcher Fetcher, assembly string) *CachedLookup {
	return &CachedLookup{store: store, fetcher: fetcher, assembly: assembly, logger: zap.NewNop()}
}

// SetLogger sets the logger for cache statistics.
func (c *CachedLookup) SetLogger(l *zap.Logger) {
	c.logger = l
}

// Lookup returns variations for ids, consulting the cache first.
func (c *CachedLookup) Lookup(ctx context.Context, ids []string) (ensembl.Table, error) {
	table, misses, err := c.store.LookupVariations(c.assembly, ids)
	if err != nil {
		return nil, err
	}

	var todo []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] || misses[id] {
			continue
		}
		seen[id] = true
		if _, ok := table[id]; !ok {
			todo = append(todo, id)
		}
	}

	c.logger.Info("ensembl cache",
		zap.String("assembly", c.assembly),
		zap.Int("cached", len(table)),
		zap.Int("known_missing", len(misses)),
		zap.Int("to_fetch", len(todo)))

	if len(todo) == 0 {
		return table, nil
	}

	fetched, err := c.fetcher.Lookup(ctx, todo)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range todo {
		if v, ok := fetched[id]; ok && v != nil {
			table[id] = v
		} else {
			missing = append(missing, id)
		}
	}

	if err := c.store.WriteVariations(c.assembly, fetched, missing); err != nil {
		return nil, fmt.Errorf("cache variations: %w", err)
	}
	return table, nil
}

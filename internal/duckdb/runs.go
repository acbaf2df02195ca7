package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/pgs-harmonizer/internal/harmonize"
)

// FileFingerprint identifies an input file by location, size and
// modification time.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile fingerprints an on-disk file. Paths are made absolute and times
// are kept at the microsecond precision DuckDB stores.
func StatFile(path string) (FileFingerprint, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    abs,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC().Truncate(time.Microsecond),
	}, nil
}

// Run is one harmonization of a scoring file.
type Run struct {
	ID          uuid.UUID
	PgsID       string
	Input       FileFingerprint
	OutputPath  string
	SourceBuild string
	TargetBuild string
	StartedAt   time.Time
	FinishedAt  time.Time
	Summary     harmonize.Summary
}

// NewRun starts a run record with a fresh identifier.
func NewRun(pgsID string, input FileFingerprint, sourceBuild, targetBuild string) *Run {
	return &Run{
		ID:          uuid.New(),
		PgsID:       pgsID,
		Input:       input,
		SourceBuild: sourceBuild,
		TargetBuild: targetBuild,
		StartedAt:   time.Now().UTC(),
	}
}

// RecordRun stores a finished run and its per-code counts.
func (s *Store) RecordRun(r *Run) error {
	sum := r.Summary
	if _, err := s.db.Exec(`INSERT INTO harmonization_runs VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.PgsID, r.Input.Path, r.Input.Size, r.Input.ModTime.UTC(),
		r.OutputPath, r.SourceBuild, r.TargetBuild, r.StartedAt, r.FinishedAt,
		sum.Total, sum.ByLookup, sum.ByLiftover, sum.AuthorReported, sum.ByNone,
		sum.Passed, sum.Failed, sum.FlipsFixed,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(sum.ByCode) == 0 {
		return nil
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	codes := make([]int, 0, len(sum.ByCode))
	for code := range sum.ByCode {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	return withAppender(conn, "harmonization_codes", func(a *goduckdb.Appender) error {
		for _, code := range codes {
			if err := a.AppendRow(r.ID.String(), int32(code), int32(sum.ByCode[code])); err != nil {
				return fmt.Errorf("append code count: %w", err)
			}
		}
		return nil
	})
}

// Runs returns the recorded runs for a PGS ID, newest first. An empty
// pgsID returns every run.
func (s *Store) Runs(pgsID string) ([]*Run, error) {
	query := `SELECT run_id, pgs_id, input_path, input_size, input_mod_time,
		output_path, source_build, target_build, started_at, finished_at,
		total, by_lookup, by_liftover, author_reported, not_mapped, passed, failed, flips_fixed
		FROM harmonization_runs`
	var args []any
	if pgsID != "" {
		query += " WHERE pgs_id=?"
		args = append(args, pgsID)
	}
	query += " ORDER BY started_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for _, r := range runs {
		if err := s.loadCodes(r); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// LatestRun returns the newest run that harmonized exactly this input file
// into targetBuild, or nil when there is none.
func (s *Store) LatestRun(input FileFingerprint, targetBuild string) (*Run, error) {
	row := s.db.QueryRow(`SELECT run_id, pgs_id, input_path, input_size, input_mod_time,
		output_path, source_build, target_build, started_at, finished_at,
		total, by_lookup, by_liftover, author_reported, not_mapped, passed, failed, flips_fixed
		FROM harmonization_runs
		WHERE input_path=? AND input_size=? AND input_mod_time=? AND target_build=?
		ORDER BY started_at DESC
		LIMIT 1`, input.Path, input.Size, input.ModTime.UTC(), targetBuild)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadCodes(r); err != nil {
		return nil, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var id string
	var total, byLookup, byLiftover, author, none, passed, failed, flips int32
	if err := sc.Scan(&id, &r.PgsID, &r.Input.Path, &r.Input.Size, &r.Input.ModTime,
		&r.OutputPath, &r.SourceBuild, &r.TargetBuild, &r.StartedAt, &r.FinishedAt,
		&total, &byLookup, &byLiftover, &author, &none, &passed, &failed, &flips,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", id, err)
	}
	r.ID = parsed
	r.Summary = harmonize.Summary{
		Total:          int(total),
		ByLookup:       int(byLookup),
		ByLiftover:     int(byLiftover),
		AuthorReported: int(author),
		ByNone:         int(none),
		Passed:         int(passed),
		Failed:         int(failed),
		FlipsFixed:     int(flips),
		ByCode:         make(map[int]int),
	}
	return &r, nil
}

func (s *Store) loadCodes(r *Run) error {
	rows, err := s.db.Query(`SELECT hm_code, n FROM harmonization_codes WHERE run_id=?`, r.ID.String())
	if err != nil {
		return fmt.Errorf("query code counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code, n int32
		if err := rows.Scan(&code, &n); err != nil {
			return fmt.Errorf("scan code count: %w", err)
		}
		r.Summary.ByCode[int(code)] = int(n)
	}
	return rows.Err()
}

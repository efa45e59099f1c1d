// Package storage archives finished analysis jobs in SQLite.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/loreguard/internal/model"
)

//go:embed migrations/001_jobs.sql
var migrationV1 string

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no job has the requested id
var ErrNotFound = errors.New("job not found")

// JobSummary is one row of the job listing
type JobSummary struct {
	ID                string          `json:"id"`
	StoryID           string          `json:"storyId"`
	Status            model.JobStatus `json:"status"`
	Track             model.Track     `json:"track"`
	StoryFileName     string          `json:"storyFileName"`
	BackstoryFileName string          `json:"backstoryFileName"`
	ConsistencyLabel  *int            `json:"consistencyLabel,omitempty"`
	OverallConfidence *float64        `json:"overallConfidence,omitempty"`
	Error             string          `json:"error,omitempty"`
	StartTime         time.Time       `json:"startTime"`
	EndTime           *time.Time      `json:"endTime,omitempty"`
}

// SQLiteStore implements the job archive on a single SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at path and applies the schema
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, stmt := range splitStatements(migrationV1) {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

// Save inserts or replaces the report of a job
func (s *SQLiteStore) Save(ctx context.Context, report *model.JobReport) error {
	if report == nil || report.Job.ID == "" {
		return fmt.Errorf("save: report has no job id")
	}
	job := report.Job

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	var label sql.NullInt64
	var confidence sql.NullFloat64
	if job.Result != nil {
		label = sql.NullInt64{Int64: int64(job.Result.ConsistencyLabel), Valid: true}
		confidence = sql.NullFloat64{Float64: job.Result.OverallConfidence, Valid: true}
	}
	var ended sql.NullString
	if job.EndTime != nil {
		ended = sql.NullString{String: job.EndTime.UTC().Format(timeLayout), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, story_id, status, track, story_file, backstory_file,
			consistency_label, overall_confidence, error, started_at, ended_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			consistency_label = excluded.consistency_label,
			overall_confidence = excluded.overall_confidence,
			error = excluded.error,
			ended_at = excluded.ended_at,
			report = excluded.report`,
		job.ID, job.StoryID, string(job.Status), string(job.Track), job.StoryFileName, job.BackstoryFileName,
		label, confidence, job.Error, job.StartTime.UTC().Format(timeLayout), ended, string(data))
	if err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the archived report of one job
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.JobReport, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT report FROM jobs WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}

	var report model.JobReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &report, nil
}

// List returns the most recent jobs first. A non-positive limit returns all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]JobSummary, error) {
	query := `SELECT id, story_id, status, track, story_file, backstory_file,
		consistency_label, overall_confidence, error, started_at, ended_at
		FROM jobs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []JobSummary{}
	for rows.Next() {
		var (
			js         JobSummary
			status     string
			track      string
			label      sql.NullInt64
			confidence sql.NullFloat64
			started    string
			ended      sql.NullString
		)
		if err := rows.Scan(&js.ID, &js.StoryID, &status, &track, &js.StoryFileName, &js.BackstoryFileName,
			&label, &confidence, &js.Error, &started, &ended); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		js.Status = model.JobStatus(status)
		js.Track = model.Track(track)
		if label.Valid {
			v := int(label.Int64)
			js.ConsistencyLabel = &v
		}
		if confidence.Valid {
			v := confidence.Float64
			js.OverallConfidence = &v
		}
		if js.StartTime, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parsing start time of %s: %w", js.ID, err)
		}
		if ended.Valid {
			end, err := time.Parse(timeLayout, ended.String)
			if err != nil {
				return nil, fmt.Errorf("parsing end time of %s: %w", js.ID, err)
			}
			js.EndTime = &end
		}
		summaries = append(summaries, js)
	}
	return summaries, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// splitStatements splits a migration file on semicolons, dropping comments
// and empty statements
func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

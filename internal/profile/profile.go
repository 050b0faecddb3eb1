// Package profile persists chosen installations between runs, so the next
// start can skip straight to verification instead of a full disk scan.
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quantmind-br/tialoc/internal/core"
)

// ErrNoProfile means the store holds no saved installation yet.
var ErrNoProfile = errors.New("no saved profile")

// Profile is one remembered installation choice. Files carries the full
// required-file mapping so multi-directory choices survive restarts.
type Profile struct {
	ID           int64
	Folder       string
	PrimaryPath  string
	Files        map[string]string
	Version      string
	Token        string // public key token, lowercase hex
	Quality      string
	MultiDir     bool
	Note         string
	SavedAt      time.Time
	LastVerified time.Time // zero when never verified
}

// Store is the SQLite-backed profile store with separate read/write pools.
type Store struct {
	write *sql.DB
	read  *sql.DB
	path  string
}

// Open opens (creating if needed) the store at dbPath.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)

	// Write pool: MUST be 1 connection only
	write, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	write.SetMaxOpenConns(1)
	write.SetMaxIdleConns(1)
	write.SetConnMaxIdleTime(time.Minute)
	write.SetConnMaxLifetime(time.Hour)

	read, err := sql.Open("sqlite", connStr)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}
	read.SetMaxOpenConns(10)
	read.SetMaxIdleConns(5)
	read.SetConnMaxIdleTime(time.Minute)
	read.SetConnMaxLifetime(time.Hour)

	s := &Store{write: write, read: read, path: dbPath}
	if err := s.initSchema(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	writeErr := s.write.Close()
	readErr := s.read.Close()
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS profiles (
    profile_id INTEGER PRIMARY KEY AUTOINCREMENT,
    folder TEXT NOT NULL,
    primary_path TEXT NOT NULL,
    files TEXT NOT NULL,
    version TEXT,
    token TEXT,
    quality TEXT NOT NULL,
    multi_dir INTEGER NOT NULL DEFAULT 0,
    note TEXT,
    saved_at DATETIME NOT NULL,
    last_verified DATETIME
);

CREATE INDEX IF NOT EXISTS idx_profiles_saved_at ON profiles(saved_at);

CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    description TEXT
);
	`

	if _, err := s.write.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// FromCandidate builds a profile out of a validated candidate.
func FromCandidate(c core.Candidate) *Profile {
	files := make(map[string]string, len(c.RequiredFiles))
	for name, path := range c.RequiredFiles {
		files[name] = path
	}
	return &Profile{
		Folder:      c.Folder,
		PrimaryPath: c.PrimaryPath,
		Files:       files,
		Version:     c.Version,
		Token:       c.Token,
		Quality:     string(c.Quality),
		MultiDir:    c.MultiDir,
		Note:        c.Note,
	}
}

// Candidate reconstructs the candidate this profile was saved from. Callers
// re-verify the files on disk before trusting it; the store remembers, it
// does not guarantee.
func (p *Profile) Candidate() core.Candidate {
	files := make(map[string]string, len(p.Files))
	for name, path := range p.Files {
		files[name] = path
	}
	return core.Candidate{
		Folder:        p.Folder,
		RequiredFiles: files,
		PrimaryPath:   p.PrimaryPath,
		Version:       p.Version,
		Token:         p.Token,
		Quality:       core.Quality(p.Quality),
		MultiDir:      p.MultiDir,
		Note:          p.Note,
	}
}

// Save appends a new profile record and fills in its ID and SavedAt.
// Earlier records are kept as history.
func (s *Store) Save(ctx context.Context, p *Profile) error {
	filesJSON, err := json.Marshal(p.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}

	p.SavedAt = time.Now().UTC()
	query := `
INSERT INTO profiles (folder, primary_path, files, version, token, quality, multi_dir, note, saved_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.write.ExecContext(ctx, query,
		p.Folder,
		p.PrimaryPath,
		string(filesJSON),
		p.Version,
		p.Token,
		p.Quality,
		p.MultiDir,
		p.Note,
		p.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return nil
}

const profileColumns = `profile_id, folder, primary_path, files, version, token, quality, multi_dir, note, saved_at, last_verified`

// Current returns the most recently saved profile.
func (s *Store) Current(ctx context.Context) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY profile_id DESC LIMIT 1`

	p, err := scanProfile(s.read.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}

// History returns saved profiles newest first, up to limit (0 = all).
func (s *Store) History(ctx context.Context, limit int) ([]Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY profile_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Touch records a successful re-verification of the given profile.
func (s *Store) Touch(ctx context.Context, id int64) error {
	res, err := s.write.ExecContext(ctx,
		`UPDATE profiles SET last_verified = ? WHERE profile_id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch profile: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoProfile
	}
	return nil
}

// Clear deletes every saved profile.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.write.ExecContext(ctx, `DELETE FROM profiles`); err != nil {
		return fmt.Errorf("clear profiles: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var filesJSON string
	var verified sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.Folder,
		&p.PrimaryPath,
		&filesJSON,
		&p.Version,
		&p.Token,
		&p.Quality,
		&p.MultiDir,
		&p.Note,
		&p.SavedAt,
		&verified,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(filesJSON), &p.Files); err != nil {
		return nil, fmt.Errorf("unmarshal files: %w", err)
	}
	if verified.Valid {
		p.LastVerified = verified.Time
	}
	return &p, nil
}

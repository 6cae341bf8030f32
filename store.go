package pubcover

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested post or asset does not exist.
var ErrNotFound = errors.New("not found")

// dbTimeLayout is fixed width so stored timestamps sort as text.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z"

// currentSchemaVersion is the latest schema version. Increment when adding migrations.
const currentSchemaVersion = 2

// Store wraps a SQLite database holding pubengine posts, stored covers and
// the publish run history.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the server read covers while a batch writes; writers wait on
	// busy_timeout instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
		PRAGMA mmap_size=268435456;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    slug TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    date TEXT NOT NULL,
    tags TEXT NOT NULL,
    summary TEXT NOT NULL,
    content TEXT NOT NULL,
    published INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS assets (
    id TEXT PRIMARY KEY,
    hash TEXT NOT NULL,
    content_type TEXT NOT NULL,
    meta TEXT NOT NULL,
    data BLOB NOT NULL,
    size INTEGER NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`)
	if err != nil {
		return err
	}
	// Databases written by older pubengine releases lack the published column.
	if _, err := s.db.Exec(`ALTER TABLE posts ADD COLUMN published INTEGER NOT NULL DEFAULT 1;`); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			return nil
		}
		return err
	}
	return nil
}

// migrate applies incremental migrations based on the version stored in the
// settings table.
func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow(`SELECT CAST(value AS INTEGER) FROM settings WHERE key = 'schema_version'`).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < 2 {
		if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    id TEXT NOT NULL,
    title TEXT NOT NULL,
    status TEXT NOT NULL,
    hash TEXT NOT NULL,
    size INTEGER NOT NULL,
    error TEXT NOT NULL,
    recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_recorded_at ON runs(recorded_at);
`); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(`INSERT INTO settings (key, value) VALUES ('schema_version', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprint(currentSchemaVersion))
	return err
}

// ListPosts returns all published posts ordered by date descending.
func (s *Store) ListPosts() ([]Post, error) {
	rows, err := s.db.Query(`SELECT slug, title, date, tags, summary, content, published FROM posts WHERE published = 1 ORDER BY date DESC, slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		var tags string
		var published int
		if err := rows.Scan(&p.Slug, &p.Title, &p.Date, &tags, &p.Summary, &p.Content, &published); err != nil {
			return nil, err
		}
		p.Tags = ParseTags(tags)
		p.Published = published == 1
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetPost returns a single published post by slug.
func (s *Store) GetPost(slug string) (Post, error) {
	p := Post{Slug: slug}
	var tags string
	var published int
	err := s.db.QueryRow(`SELECT title, date, tags, summary, content, published FROM posts WHERE slug = ? AND published = 1`, slug).
		Scan(&p.Title, &p.Date, &tags, &p.Summary, &p.Content, &published)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, fmt.Errorf("post %s: %w", slug, ErrNotFound)
	}
	if err != nil {
		return Post{}, err
	}
	p.Tags = ParseTags(tags)
	p.Published = published == 1
	return p, nil
}

// SavePost upserts a post. Tags are normalized to lowercase.
func (s *Store) SavePost(p Post) error {
	normalizedTags := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		normalizedTags[i] = strings.ToLower(strings.TrimSpace(t))
	}
	tagString := "," + strings.Join(normalizedTags, ",") + ","
	published := 0
	if p.Published {
		published = 1
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO posts (slug, title, date, tags, summary, content, published) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Slug, p.Title, p.Date, tagString, p.Summary, p.Content, published)
	return err
}

// ParseTags splits a comma-delimited tag string (e.g. ",go,web,") into a slice.
func ParseTags(tagString string) []string {
	tagString = strings.Trim(tagString, ",")
	if tagString == "" {
		return nil
	}
	parts := strings.Split(tagString, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

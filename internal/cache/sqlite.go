package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jo-hoe/ytscribe/internal/common"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY when concurrent requests write.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		video_url TEXT PRIMARY KEY,
		transcript TEXT NOT NULL,
		title TEXT,
		cached_date TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT transcript, title, cached_date FROM transcripts WHERE video_url = ?`, key)

	var e Entry
	var title sql.NullString
	var cached string
	if err := row.Scan(&e.Transcript, &title, &cached); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("scan transcript: %w", err)
	}
	if title.Valid {
		e.Title = title.String
	}
	if t, err := time.Parse(time.RFC3339Nano, cached); err == nil {
		e.CachedDate = t
	}
	return e, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, entry Entry) error {
	if key == "" {
		return errors.New("key is required")
	}
	cached := entry.CachedDate
	if cached.IsZero() {
		cached = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (video_url, transcript, title, cached_date)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(video_url) DO UPDATE SET
			transcript = excluded.transcript,
			title = excluded.title,
			cached_date = excluded.cached_date`,
		key, entry.Transcript, entry.Title, cached.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// TranscriptMeta is one row of the transcript index.
type TranscriptMeta struct {
	VideoID       string    `json:"video_id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	AudioDuration float64   `json:"audio_duration"`
	Confidence    float64   `json:"confidence"`
	SegmentCount  int       `json:"segment_count"`
	LocalPath     string    `json:"local_path"`
	DriveURL      string    `json:"drive_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// MetadataDB is a SQLite index over persisted transcripts, used by the
// listing endpoint. It is a convenience view; the JSON artifacts remain
// the durable source of truth.
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB opens (and if needed initializes) the index at dbPath.
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		video_id       TEXT PRIMARY KEY,
		title          TEXT NOT NULL DEFAULT '',
		author         TEXT NOT NULL DEFAULT '',
		audio_duration REAL NOT NULL DEFAULT 0,
		confidence     REAL NOT NULL DEFAULT 0,
		segment_count  INTEGER NOT NULL DEFAULT 0,
		local_path     TEXT NOT NULL,
		drive_url      TEXT NOT NULL DEFAULT '',
		created_at     DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// Save upserts the index row for a transcript, so reprocessing a video
// replaces its previous entry.
func (mdb *MetadataDB) Save(t *types.Transcript, meta *types.VideoMeta, localPath, driveURL string) error {
	title, author := "", ""
	if meta != nil {
		title, author = meta.Title, meta.Author
	}

	query := `
	INSERT INTO transcripts (video_id, title, author, audio_duration, confidence, segment_count, local_path, drive_url, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(video_id) DO UPDATE SET
		title = excluded.title,
		author = excluded.author,
		audio_duration = excluded.audio_duration,
		confidence = excluded.confidence,
		segment_count = excluded.segment_count,
		local_path = excluded.local_path,
		drive_url = excluded.drive_url,
		created_at = excluded.created_at
	`

	_, err := mdb.db.Exec(query, t.VideoID, title, author, t.AudioDuration,
		t.Confidence, len(t.Segments), localPath, driveURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save transcript metadata: %w", err)
	}
	return nil
}

// Get returns the index row for a video id.
func (mdb *MetadataDB) Get(videoID string) (*TranscriptMeta, error) {
	query := `
	SELECT video_id, title, author, audio_duration, confidence, segment_count, local_path, drive_url, created_at
	FROM transcripts WHERE video_id = ?
	`

	var m TranscriptMeta
	err := mdb.db.QueryRow(query, videoID).Scan(&m.VideoID, &m.Title, &m.Author,
		&m.AudioDuration, &m.Confidence, &m.SegmentCount, &m.LocalPath, &m.DriveURL, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript metadata: %w", err)
	}
	return &m, nil
}

// List returns up to limit index rows, newest first.
func (mdb *MetadataDB) List(limit int) ([]TranscriptMeta, error) {
	query := `
	SELECT video_id, title, author, audio_duration, confidence, segment_count, local_path, drive_url, created_at
	FROM transcripts ORDER BY created_at DESC LIMIT ?
	`

	rows, err := mdb.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	var out []TranscriptMeta
	for rows.Next() {
		var m TranscriptMeta
		if err := rows.Scan(&m.VideoID, &m.Title, &m.Author, &m.AudioDuration,
			&m.Confidence, &m.SegmentCount, &m.LocalPath, &m.DriveURL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}

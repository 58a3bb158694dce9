package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// New opens (and creates if needed) the sqlite database at path
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY under concurrent batches
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS options (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			object_key TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			mime_type TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			parent_id INTEGER NOT NULL DEFAULT 0,
			alt_text TEXT NOT NULL DEFAULT '',
			alt_status TEXT NOT NULL DEFAULT 'pending',
			processed_at DATETIME,
			last_run_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			processed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			options TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_images_alt ON images(alt_text, processed_at);
		CREATE INDEX IF NOT EXISTS idx_images_parent ON images(parent_id);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	return err
}

// GetOptions returns every stored option
func (db *DB) GetOptions(ctx context.Context) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, value FROM options`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	opts := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		opts[name] = value
	}
	return opts, rows.Err()
}

// SetOptions upserts several options in a single transaction
func (db *DB) SetOptions(ctx context.Context, values map[string]string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO options (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for name, value := range values {
		if _, err := stmt.ExecContext(ctx, name, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveImagesBatch registers images in a single transaction. Known object keys
// keep their alt text and processing state; only metadata is refreshed.
func (db *DB) SaveImagesBatch(ctx context.Context, images []models.MediaImage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO images (object_key, title, mime_type, size, parent_id, alt_text, alt_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_key) DO UPDATE SET
			title = excluded.title,
			mime_type = excluded.mime_type,
			size = excluded.size,
			parent_id = excluded.parent_id,
			alt_text = CASE WHEN excluded.alt_text != '' THEN excluded.alt_text ELSE images.alt_text END,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, img := range images {
		status := img.AltStatus
		if status == "" {
			status = models.AltStatusPending
		}
		_, err = stmt.ExecContext(ctx,
			img.ObjectKey,
			img.Title,
			img.MimeType,
			img.Size,
			img.ParentID,
			strings.TrimSpace(img.AltText),
			status,
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to save image %s: %v", img.ObjectKey, err)
		}
	}

	return tx.Commit()
}

// AddImage registers a single image and returns its id
func (db *DB) AddImage(ctx context.Context, img models.MediaImage) (int64, error) {
	if err := db.SaveImagesBatch(ctx, []models.MediaImage{img}); err != nil {
		return 0, err
	}
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM images WHERE object_key = ?`, img.ObjectKey).Scan(&id)
	return id, err
}

const imageColumns = `id, object_key, title, mime_type, size, parent_id, alt_text, alt_status, processed_at, last_run_id, created_at, updated_at`

func scanImage(row interface{ Scan(...any) error }) (models.MediaImage, error) {
	var img models.MediaImage
	var processedAt sql.NullTime
	err := row.Scan(
		&img.ID,
		&img.ObjectKey,
		&img.Title,
		&img.MimeType,
		&img.Size,
		&img.ParentID,
		&img.AltText,
		&img.AltStatus,
		&processedAt,
		&img.LastRunID,
		&img.CreatedAt,
		&img.UpdatedAt,
	)
	if processedAt.Valid {
		t := processedAt.Time
		img.ProcessedAt = &t
	}
	return img, err
}

// GetImage retrieves an image by id
func (db *DB) GetImage(ctx context.Context, id int64) (*models.MediaImage, error) {
	img, err := scanImage(db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindNotFound, "db.get_image", fmt.Sprintf("image %d not found", id))
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// ListImages returns every image ordered by id
func (db *DB) ListImages(ctx context.Context) ([]models.MediaImage, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+imageColumns+` FROM images ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.MediaImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

const missingAlt = `TRIM(alt_text) = ''`

// GetImageStats returns alt text coverage of the media library
func (db *DB) GetImageStats(ctx context.Context, filter models.StatsFilter) (models.ImageStatistics, error) {
	var where []string
	if filter.MissingAltOnly {
		where = append(where, missingAlt)
	}
	if filter.OnlyAttached {
		where = append(where, `parent_id != 0`)
	}
	query := `
		SELECT
			COUNT(*) as total_images,
			COALESCE(SUM(CASE WHEN ` + missingAlt + ` THEN 1 ELSE 0 END), 0) as missing_alt_text
		FROM images`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	var total, missing int64
	if err := db.QueryRowContext(ctx, query).Scan(&total, &missing); err != nil {
		return models.ImageStatistics{}, fmt.Errorf("failed to get stats: %v", err)
	}
	return models.NewImageStatistics(total, missing), nil
}

// Eligibility selects the images a run may still process
type Eligibility struct {
	Options models.ProcessingOptions
	RunID   string
}

func (e Eligibility) where() (string, []any) {
	conds := []string{`last_run_id != ?`}
	args := []any{e.RunID}
	if !e.Options.OverwriteExisting {
		conds = append(conds, missingAlt)
	}
	if e.Options.OnlyAttached {
		conds = append(conds, `parent_id != 0`)
	}
	if e.Options.SkipProcessed {
		conds = append(conds, `processed_at IS NULL`)
	}
	if e.Options.Selected() {
		marks := make([]string, len(e.Options.ImageIDs))
		for i, id := range e.Options.ImageIDs {
			marks[i] = "?"
			args = append(args, id)
		}
		conds = append(conds, `id IN (`+strings.Join(marks, ",")+`)`)
	}
	return strings.Join(conds, " AND "), args
}

// CountEligible returns how many images the run may still process
func (db *DB) CountEligible(ctx context.Context, e Eligibility) (int64, error) {
	where, args := e.where()
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE `+where, args...).Scan(&n)
	return n, err
}

// SelectEligible returns up to limit eligible images, oldest first
func (db *DB) SelectEligible(ctx context.Context, e Eligibility, limit int) ([]models.MediaImage, error) {
	where, args := e.where()
	args = append(args, limit)
	rows, err := db.QueryContext(ctx, `SELECT `+imageColumns+` FROM images WHERE `+where+` ORDER BY id LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.MediaImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// MarkGenerated stores generated alt text and flags the image as processed by runID
func (db *DB) MarkGenerated(ctx context.Context, id int64, altText, runID string) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		UPDATE images
		SET alt_text = ?, alt_status = ?, processed_at = ?, last_run_id = ?, updated_at = ?
		WHERE id = ?
	`, altText, models.AltStatusGenerated, now, runID, now, id)
	return err
}

// MarkFailed flags the image as failed for runID so the run does not pick it again
func (db *DB) MarkFailed(ctx context.Context, id int64, runID string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE images
		SET alt_status = ?, last_run_id = ?, updated_at = ?
		WHERE id = ?
	`, models.AltStatusFailed, runID, time.Now().UTC(), id)
	return err
}

// SaveRun inserts or updates the history record of a run
func (db *DB) SaveRun(ctx context.Context, run models.RunRecord) error {
	options, err := json.Marshal(run.Options)
	if err != nil {
		return err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, status, total, processed, failed, options, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			processed = excluded.processed,
			failed = excluded.failed,
			updated_at = excluded.updated_at
	`, run.ID, run.Status, run.Total, run.Processed, run.Failed, string(options), run.CreatedAt, time.Now().UTC())
	return err
}

// ListRuns returns the most recent runs first
func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, status, total, processed, failed, options, created_at, updated_at
		FROM runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var run models.RunRecord
		var options string
		if err := rows.Scan(&run.ID, &run.Status, &run.Total, &run.Processed, &run.Failed, &options, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &run.Options); err != nil {
			return nil, fmt.Errorf("run %s has malformed options: %v", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

package progress

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"audiocorpus/internal/services"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// sqliteSchemaVersion is bumped whenever schema_sqlite.sql changes.
const sqliteSchemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore persists records in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating when needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is empty", services.ErrConfiguration)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure progress directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force
	// and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", sqliteSchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != sqliteSchemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (move %s aside to start fresh)",
			ErrSchemaMismatch, version, sqliteSchemaVersion, s.path)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// CreateOrGet implements Store.
func (s *SQLiteStore) CreateOrGet(ctx context.Context, fileName string, meta map[string]any) (string, error) {
	key, err := validateKey(fileName)
	if err != nil {
		return "", err
	}
	metaJSON, err := encodeDocument(meta)
	if err != nil {
		return "", err
	}
	now := formatTime(time.Now())
	if _, err := s.exec(ctx,
		`INSERT INTO records (id, file_name, original_metadata, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(file_name) DO NOTHING`,
		uuid.NewString(), key, string(metaJSON), now, now,
	); err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	var id string
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM records WHERE file_name = ?", key).Scan(&id); err != nil {
		return "", fmt.Errorf("read record id: %w", err)
	}
	return id, nil
}

// UpdateStage implements Store. The stage row is upserted on its own; a nil
// details document keeps whatever details were stored before.
func (s *SQLiteStore) UpdateStage(ctx context.Context, id string, stage Stage, success bool, details map[string]any) error {
	var detailsJSON any
	if details != nil {
		encoded, err := encodeDocument(details)
		if err != nil {
			return err
		}
		detailsJSON = string(encoded)
	}
	now := formatTime(time.Now())
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		res, err := tx.ExecContext(ctx, "UPDATE records SET updated_at = ? WHERE id = ?", now, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrRecordNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_stages (record_id, stage, success, details, updated_at)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(record_id, stage) DO UPDATE SET
                 success = excluded.success,
                 details = COALESCE(excluded.details, record_stages.details),
                 updated_at = excluded.updated_at`,
			id, string(stage), boolInt(success), detailsJSON, now,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// AppendSegment implements Store.
func (s *SQLiteStore) AppendSegment(ctx context.Context, id string, seg Segment) error {
	seg = prepareSegment(seg)
	var metaJSON any
	if seg.Metadata != nil {
		encoded, err := encodeDocument(seg.Metadata)
		if err != nil {
			return err
		}
		metaJSON = string(encoded)
	}
	return s.appendChild(ctx, id,
		`INSERT INTO record_segments (record_id, segment_file, speaker_id, start_time, end_time, duration, metadata, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, seg.File, seg.SpeakerID, seg.StartTime, seg.EndTime, seg.Duration, metaJSON, formatTime(seg.CreatedAt),
	)
}

// AppendAugmentation implements Store.
func (s *SQLiteStore) AppendAugmentation(ctx context.Context, id string, aug Augmentation) error {
	aug = prepareAugmentation(aug)
	var paramsJSON any
	if aug.Parameters != nil {
		encoded, err := encodeDocument(aug.Parameters)
		if err != nil {
			return err
		}
		paramsJSON = string(encoded)
	}
	return s.appendChild(ctx, id,
		`INSERT INTO record_augmentations (record_id, original_file, augmented_file, augmentation_type, parameters, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id, aug.OriginalFile, aug.AugmentedFile, aug.Type, paramsJSON, formatTime(aug.CreatedAt),
	)
}

func (s *SQLiteStore) appendChild(ctx context.Context, id, insert string, args ...any) error {
	now := formatTime(time.Now())
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		res, err := tx.ExecContext(ctx, "UPDATE records SET updated_at = ? WHERE id = ?", now, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrRecordNotFound
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// FindByFileName implements Store.
func (s *SQLiteStore) FindByFileName(ctx context.Context, fileName string) (*Record, error) {
	return s.findOne(ctx, "r.file_name = ?", Key(fileName))
}

// FindBySegmentFile implements Store.
func (s *SQLiteStore) FindBySegmentFile(ctx context.Context, fileName string) (*Record, error) {
	return s.findOne(ctx,
		"r.id = (SELECT record_id FROM record_segments WHERE segment_file = ? ORDER BY seq LIMIT 1)",
		Key(fileName))
}

// FindByStage implements Store.
func (s *SQLiteStore) FindByStage(ctx context.Context, stage Stage, status bool) ([]Record, error) {
	return s.load(ctx,
		"COALESCE((SELECT success FROM record_stages st WHERE st.record_id = r.id AND st.stage = ?), 0) = ?",
		string(stage), boolInt(status))
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	return s.load(ctx, "1 = 1")
}

func (s *SQLiteStore) findOne(ctx context.Context, where string, args ...any) (*Record, error) {
	records, err := s.load(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// load reads the records matching where (a predicate over alias r) and their
// stages, segments and augmentations.
func (s *SQLiteStore) load(ctx context.Context, where string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.file_name, r.original_metadata, r.created_at, r.updated_at
         FROM records r WHERE `+where+` ORDER BY r.created_at, r.file_name`, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	var (
		records []Record
		index   = map[string]int{}
	)
	for rows.Next() {
		var (
			rec                    Record
			metaRaw                string
			createdRaw, updatedRaw string
		)
		if err := rows.Scan(&rec.ID, &rec.File, &metaRaw, &createdRaw, &updatedRaw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		meta, err := decodeDocument([]byte(metaRaw))
		if err != nil {
			rows.Close()
			return nil, err
		}
		if meta == nil {
			meta = map[string]any{}
		}
		rec.OriginalMetadata = meta
		rec.Stages = initialStages()
		rec.Details = map[Stage]map[string]any{}
		rec.CreatedAt = parseTime(createdRaw)
		rec.UpdatedAt = parseTime(updatedRaw)
		index[rec.ID] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	rows.Close()
	if len(records) == 0 {
		return nil, nil
	}

	subquery := "SELECT r.id FROM records r WHERE " + where
	if err := s.loadStages(ctx, records, index, subquery, args); err != nil {
		return nil, err
	}
	if err := s.loadSegments(ctx, records, index, subquery, args); err != nil {
		return nil, err
	}
	if err := s.loadAugmentations(ctx, records, index, subquery, args); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SQLiteStore) loadStages(ctx context.Context, records []Record, index map[string]int, subquery string, args []any) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT record_id, stage, success, details FROM record_stages WHERE record_id IN ("+subquery+")", args...)
	if err != nil {
		return fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			recordID, stage string
			success         int
			details         sql.NullString
		)
		if err := rows.Scan(&recordID, &stage, &success, &details); err != nil {
			return fmt.Errorf("scan stage: %w", err)
		}
		rec := &records[index[recordID]]
		rec.Stages[Stage(stage)] = success != 0
		if details.Valid {
			doc, err := decodeDocument([]byte(details.String))
			if err != nil {
				return err
			}
			rec.Details[Stage(stage)] = doc
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadSegments(ctx context.Context, records []Record, index map[string]int, subquery string, args []any) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, segment_file, speaker_id, start_time, end_time, duration, metadata, created_at
         FROM record_segments WHERE record_id IN (`+subquery+`) ORDER BY seq`, args...)
	if err != nil {
		return fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			recordID, createdRaw string
			seg                  Segment
			meta                 sql.NullString
		)
		if err := rows.Scan(&recordID, &seg.File, &seg.SpeakerID, &seg.StartTime, &seg.EndTime, &seg.Duration, &meta, &createdRaw); err != nil {
			return fmt.Errorf("scan segment: %w", err)
		}
		if meta.Valid {
			doc, err := decodeDocument([]byte(meta.String))
			if err != nil {
				return err
			}
			seg.Metadata = doc
		}
		seg.CreatedAt = parseTime(createdRaw)
		rec := &records[index[recordID]]
		rec.Segments = append(rec.Segments, seg)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadAugmentations(ctx context.Context, records []Record, index map[string]int, subquery string, args []any) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, original_file, augmented_file, augmentation_type, parameters, created_at
         FROM record_augmentations WHERE record_id IN (`+subquery+`) ORDER BY seq`, args...)
	if err != nil {
		return fmt.Errorf("query augmentations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			recordID, createdRaw string
			aug                  Augmentation
			params               sql.NullString
		)
		if err := rows.Scan(&recordID, &aug.OriginalFile, &aug.AugmentedFile, &aug.Type, &params, &createdRaw); err != nil {
			return fmt.Errorf("scan augmentation: %w", err)
		}
		if params.Valid {
			doc, err := decodeDocument([]byte(params.String))
			if err != nil {
				return err
			}
			aug.Parameters = doc
		}
		aug.CreatedAt = parseTime(createdRaw)
		rec := &records[index[recordID]]
		rec.Augmentations = append(rec.Augmentations, aug)
	}
	return rows.Err()
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

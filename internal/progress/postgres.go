package progress

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"audiocorpus/internal/services"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore persists records in PostgreSQL. Stage flags, segments and
// augmentations live in child tables for field-level updates; every mutation
// also patches the record's JSONB document so nested-field queries can run
// against a single column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, pings the server, and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, timeout time.Duration) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: postgres dsn is empty", services.ErrConfiguration)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres dsn: %v", services.ErrConfiguration, err)
	}
	if timeout > 0 {
		cfg.ConnConfig.ConnectTimeout = timeout
	}

	connectCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create postgres pool: %v", services.ErrTransient, err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", services.ErrTransient, err)
	}
	if _, err := pool.Exec(connectCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// CreateOrGet implements Store.
func (s *PostgresStore) CreateOrGet(ctx context.Context, fileName string, meta map[string]any) (string, error) {
	key, err := validateKey(fileName)
	if err != nil {
		return "", err
	}
	metaJSON, err := encodeDocument(meta)
	if err != nil {
		return "", err
	}
	docJSON, err := json.Marshal(map[string]any{
		"processing_stages":  initialStages(),
		"processing_details": map[string]any{},
		"segments":           []any{},
		"augmentations":      []any{},
	})
	if err != nil {
		return "", fmt.Errorf("encode record document: %w", err)
	}

	const query = `
		INSERT INTO progress_records (id, file_name, original_metadata, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file_name) DO UPDATE SET file_name = EXCLUDED.file_name
		RETURNING id`
	var id string
	if err := s.pool.QueryRow(ctx, query, uuid.NewString(), key, metaJSON, docJSON).Scan(&id); err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	return id, nil
}

// UpdateStage implements Store.
func (s *PostgresStore) UpdateStage(ctx context.Context, id string, stage Stage, success bool, details map[string]any) error {
	var detailsJSON []byte
	if details != nil {
		encoded, err := encodeDocument(details)
		if err != nil {
			return err
		}
		detailsJSON = encoded
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE progress_records
			SET document = CASE WHEN $4::jsonb IS NULL
			        THEN jsonb_set(document, ARRAY['processing_stages', $2::text], to_jsonb($3::boolean), true)
			        ELSE jsonb_set(
			            jsonb_set(document, ARRAY['processing_stages', $2::text], to_jsonb($3::boolean), true),
			            ARRAY['processing_details', $2::text], $4::jsonb, true)
			    END,
			    updated_at = now()
			WHERE id = $1`, id, string(stage), success, detailsJSON)
		if err != nil {
			return fmt.Errorf("update record document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRecordNotFound
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO progress_record_stages (record_id, stage, success, details, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (record_id, stage) DO UPDATE SET
			    success = EXCLUDED.success,
			    details = COALESCE(EXCLUDED.details, progress_record_stages.details),
			    updated_at = EXCLUDED.updated_at`, id, string(stage), success, detailsJSON); err != nil {
			return fmt.Errorf("upsert stage: %w", err)
		}
		return nil
	})
}

// AppendSegment implements Store.
func (s *PostgresStore) AppendSegment(ctx context.Context, id string, seg Segment) error {
	seg = prepareSegment(seg)
	var metaJSON []byte
	if seg.Metadata != nil {
		encoded, err := encodeDocument(seg.Metadata)
		if err != nil {
			return err
		}
		metaJSON = encoded
	}
	element, err := json.Marshal(seg)
	if err != nil {
		return fmt.Errorf("%w: encode segment: %v", services.ErrValidation, err)
	}
	return s.appendChild(ctx, id, "segments", element, `
		INSERT INTO progress_record_segments
		    (record_id, segment_file, speaker_id, start_time, end_time, duration, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, seg.File, seg.SpeakerID, seg.StartTime, seg.EndTime, seg.Duration, metaJSON, seg.CreatedAt)
}

// AppendAugmentation implements Store.
func (s *PostgresStore) AppendAugmentation(ctx context.Context, id string, aug Augmentation) error {
	aug = prepareAugmentation(aug)
	var paramsJSON []byte
	if aug.Parameters != nil {
		encoded, err := encodeDocument(aug.Parameters)
		if err != nil {
			return err
		}
		paramsJSON = encoded
	}
	element, err := json.Marshal(aug)
	if err != nil {
		return fmt.Errorf("%w: encode augmentation: %v", services.ErrValidation, err)
	}
	return s.appendChild(ctx, id, "augmentations", element, `
		INSERT INTO progress_record_augmentations
		    (record_id, original_file, augmented_file, augmentation_type, parameters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, aug.OriginalFile, aug.AugmentedFile, aug.Type, paramsJSON, aug.CreatedAt)
}

func (s *PostgresStore) appendChild(ctx context.Context, id, field string, element []byte, insert string, args ...any) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE progress_records
			SET document = jsonb_set(document, ARRAY[$2::text],
			        COALESCE(document -> $2::text, '[]'::jsonb) || jsonb_build_array($3::jsonb), true),
			    updated_at = now()
			WHERE id = $1`, id, field, element)
		if err != nil {
			return fmt.Errorf("append to record document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRecordNotFound
		}
		if _, err := tx.Exec(ctx, insert, args...); err != nil {
			return fmt.Errorf("insert %s row: %w", field, err)
		}
		return nil
	})
}

// FindByFileName implements Store.
func (s *PostgresStore) FindByFileName(ctx context.Context, fileName string) (*Record, error) {
	return s.findOne(ctx, "r.file_name = $1", Key(fileName))
}

// FindBySegmentFile implements Store. It uses JSONB containment on the
// record document.
func (s *PostgresStore) FindBySegmentFile(ctx context.Context, fileName string) (*Record, error) {
	return s.findOne(ctx,
		"r.document -> 'segments' @> jsonb_build_array(jsonb_build_object('segment_file', $1::text))",
		Key(fileName))
}

// FindByStage implements Store.
func (s *PostgresStore) FindByStage(ctx context.Context, stage Stage, status bool) ([]Record, error) {
	return s.load(ctx,
		"COALESCE((r.document -> 'processing_stages' ->> $1::text)::boolean, false) = $2",
		string(stage), status)
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	return s.load(ctx, "TRUE")
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (*Record, error) {
	records, err := s.load(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *PostgresStore) load(ctx context.Context, where string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.file_name, r.original_metadata, r.created_at, r.updated_at
		FROM progress_records r WHERE `+where+` ORDER BY r.created_at, r.file_name`, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	var (
		records []Record
		index   = map[string]int{}
	)
	for rows.Next() {
		var (
			rec     Record
			metaRaw []byte
		)
		if err := rows.Scan(&rec.ID, &rec.File, &metaRaw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		meta, err := decodeDocument(metaRaw)
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
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		index[rec.ID] = len(records)
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if err := s.loadStages(ctx, records, index, ids); err != nil {
		return nil, err
	}
	if err := s.loadSegments(ctx, records, index, ids); err != nil {
		return nil, err
	}
	if err := s.loadAugmentations(ctx, records, index, ids); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *PostgresStore) loadStages(ctx context.Context, records []Record, index map[string]int, ids []string) error {
	rows, err := s.pool.Query(ctx,
		"SELECT record_id, stage, success, details FROM progress_record_stages WHERE record_id = ANY($1)", ids)
	if err != nil {
		return fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			recordID, stage string
			success         bool
			details         []byte
		)
		if err := rows.Scan(&recordID, &stage, &success, &details); err != nil {
			return fmt.Errorf("scan stage: %w", err)
		}
		rec := &records[index[recordID]]
		rec.Stages[Stage(stage)] = success
		if details != nil {
			doc, err := decodeDocument(details)
			if err != nil {
				return err
			}
			rec.Details[Stage(stage)] = doc
		}
	}
	return rows.Err()
}

func (s *PostgresStore) loadSegments(ctx context.Context, records []Record, index map[string]int, ids []string) error {
	rows, err := s.pool.Query(ctx, `
		SELECT record_id, segment_file, speaker_id, start_time, end_time, duration, metadata, created_at
		FROM progress_record_segments WHERE record_id = ANY($1) ORDER BY seq`, ids)
	if err != nil {
		return fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			recordID string
			seg      Segment
			meta     []byte
		)
		if err := rows.Scan(&recordID, &seg.File, &seg.SpeakerID, &seg.StartTime, &seg.EndTime, &seg.Duration, &meta, &seg.CreatedAt); err != nil {
			return fmt.Errorf("scan segment: %w", err)
		}
		if meta != nil {
			doc, err := decodeDocument(meta)
			if err != nil {
				return err
			}
			seg.Metadata = doc
		}
		seg.CreatedAt = seg.CreatedAt.UTC()
		rec := &records[index[recordID]]
		rec.Segments = append(rec.Segments, seg)
	}
	return rows.Err()
}

func (s *PostgresStore) loadAugmentations(ctx context.Context, records []Record, index map[string]int, ids []string) error {
	rows, err := s.pool.Query(ctx, `
		SELECT record_id, original_file, augmented_file, augmentation_type, parameters, created_at
		FROM progress_record_augmentations WHERE record_id = ANY($1) ORDER BY seq`, ids)
	if err != nil {
		return fmt.Errorf("query augmentations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			recordID string
			aug      Augmentation
			params   []byte
		)
		if err := rows.Scan(&recordID, &aug.OriginalFile, &aug.AugmentedFile, &aug.Type, &params, &aug.CreatedAt); err != nil {
			return fmt.Errorf("scan augmentation: %w", err)
		}
		if params != nil {
			doc, err := decodeDocument(params)
			if err != nil {
				return err
			}
			aug.Parameters = doc
		}
		aug.CreatedAt = aug.CreatedAt.UTC()
		rec := &records[index[recordID]]
		rec.Augmentations = append(rec.Augmentations, aug)
	}
	return rows.Err()
}


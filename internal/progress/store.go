package progress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audiocorpus/internal/config"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/services"
)

// Store is the progress document store contract shared by every backend.
type Store interface {
	// CreateOrGet returns the id of the record keyed by the basename of
	// fileName, creating it with every stage false when absent.
	CreateOrGet(ctx context.Context, fileName string, meta map[string]any) (string, error)
	// UpdateStage sets one stage flag and, when details is non-nil, that
	// stage's details document. updated_at is always refreshed.
	UpdateStage(ctx context.Context, id string, stage Stage, success bool, details map[string]any) error
	AppendSegment(ctx context.Context, id string, seg Segment) error
	AppendAugmentation(ctx context.Context, id string, aug Augmentation) error
	// FindByFileName returns nil, nil when no record matches.
	FindByFileName(ctx context.Context, fileName string) (*Record, error)
	// FindBySegmentFile returns the record holding a segment with this
	// basename, or nil, nil.
	FindBySegmentFile(ctx context.Context, fileName string) (*Record, error)
	FindByStage(ctx context.Context, stage Stage, status bool) ([]Record, error)
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// FallbackMarker is the file written to the state directory when Open
// substitutes the memory store for an unreachable backend.
const FallbackMarker = "PROGRESS_STORE_FALLBACK"

// Open constructs the backend selected by cfg.Progress.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: progress store requires configuration", services.ErrConfiguration)
	}
	logger = logging.NewComponentLogger(logger, "progress")
	backend := cfg.Progress.Backend

	var (
		store Store
		err   error
	)
	switch backend {
	case "memory":
		logger.Warn("using in-memory progress store",
			logging.String(logging.FieldEventType, "store_memory"),
			logging.String(logging.FieldImpact, "progress is lost when the process exits"),
		)
		return NewMemoryStore(), nil
	case "sqlite":
		store, err = OpenSQLite(ctx, cfg.Progress.SQLitePath)
	case "postgres":
		timeout := time.Duration(cfg.Progress.ConnectTimeoutSeconds) * time.Second
		store, err = OpenPostgres(ctx, cfg.Progress.PostgresDSN, timeout)
	default:
		return nil, fmt.Errorf("%w: unknown progress backend %q", services.ErrConfiguration, backend)
	}
	if err == nil {
		logger.Debug("progress store opened", logging.String("backend", backend))
		return store, nil
	}
	if !cfg.Progress.AllowMemoryFallback {
		return nil, fmt.Errorf("open %s progress store: %w", backend, err)
	}

	logging.ErrorWithContext(logger, "progress store unreachable; continuing with in-memory store", "store_fallback",
		logging.String("backend", backend),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "fix the progress store connection; this run's progress will not survive a restart"),
		logging.String(logging.FieldImpact, "progress is not durable"),
	)
	if markErr := writeFallbackMarker(cfg.Paths.StateDir, backend, err); markErr != nil {
		logger.Warn("failed to write progress fallback marker", logging.Error(markErr))
	}
	return NewMemoryStore(), nil
}

func writeFallbackMarker(stateDir, backend string, cause error) error {
	if strings.TrimSpace(stateDir) == "" {
		return nil
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}
	body := fmt.Sprintf("time: %s\nbackend: %s\ncause: %v\nprogress for this run was kept in memory only\n",
		time.Now().UTC().Format(time.RFC3339), backend, cause)
	return os.WriteFile(filepath.Join(stateDir, FallbackMarker), []byte(body), 0o644)
}

// Key normalizes a file name or path to the record key (its basename).
func Key(fileName string) string {
	trimmed := strings.TrimSpace(fileName)
	if trimmed == "" {
		return ""
	}
	return filepath.Base(trimmed)
}

func validateKey(fileName string) (string, error) {
	key := Key(fileName)
	if key == "" || key == "." || key == string(filepath.Separator) {
		return "", fmt.Errorf("%w: file name is required", services.ErrValidation)
	}
	return key, nil
}

func prepareSegment(seg Segment) Segment {
	seg.File = Key(seg.File)
	seg.Duration = seg.EndTime - seg.StartTime
	if seg.CreatedAt.IsZero() {
		seg.CreatedAt = time.Now().UTC()
	}
	return seg
}

func prepareAugmentation(aug Augmentation) Augmentation {
	aug.OriginalFile = Key(aug.OriginalFile)
	aug.AugmentedFile = Key(aug.AugmentedFile)
	if aug.CreatedAt.IsZero() {
		aug.CreatedAt = time.Now().UTC()
	}
	return aug
}

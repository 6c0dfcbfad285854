package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"audiocorpus/internal/logging"
	"audiocorpus/internal/observe"
	"audiocorpus/internal/resilience"
	"audiocorpus/internal/services"
)

// SkipPolicy decides when an upload is unnecessary.
type SkipPolicy int

const (
	// SkipExisting skips keys that already exist.
	SkipExisting SkipPolicy = iota
	// SkipSameSize skips keys whose stored size equals the local size.
	SkipSameSize
)

// Uploader pushes local files into a Store.
type Uploader struct {
	Store   Store
	Retry   resilience.RetryPolicy
	Breaker *resilience.Breaker
	Metrics *observe.Metrics
	Logger  *slog.Logger
	// CredentialsFile, when set, must exist before any upload starts.
	CredentialsFile string
	// Cooldown is waited before aborting on a missing credentials file.
	Cooldown time.Duration
	Sleep    func(context.Context, time.Duration) error
}

// Summary totals one UploadTree call.
type Summary struct {
	Uploaded int
	Skipped  int
	Failed   int
	Bytes    int64
	// Failures maps relative paths to error messages.
	Failures map[string]string
}

func (u *Uploader) logger() *slog.Logger {
	return logging.NewComponentLogger(u.Logger, "blobstore")
}

func (u *Uploader) sleep(ctx context.Context, d time.Duration) error {
	if u.Sleep != nil {
		return u.Sleep(ctx, d)
	}
	return resilience.Sleep(ctx, d)
}

// CheckCredentials verifies the credentials file. When it is missing the
// uploader waits out the cooldown once and then aborts; it does not poll.
func (u *Uploader) CheckCredentials(ctx context.Context) error {
	file := strings.TrimSpace(u.CredentialsFile)
	if file == "" {
		return nil
	}
	if _, err := os.Stat(file); err == nil {
		return nil
	}
	logging.ErrorWithContext(u.logger(), "blob store credentials file missing; aborting after cooldown", "credential_cooldown",
		logging.String("credentials_file", file),
		logging.Duration("cooldown", u.Cooldown),
		logging.String(logging.FieldErrorHint, "create the credentials file with access_key and secret_key"),
		logging.String(logging.FieldImpact, "uploads stop for this run"),
	)
	if err := u.sleep(ctx, u.Cooldown); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrCredentialsMissing, file)
}

// UploadFile uploads one local file unless policy says it is already
// stored. It reports whether an upload happened.
func (u *Uploader) UploadFile(ctx context.Context, container, key, localPath string, policy SkipPolicy) (bool, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return false, services.Wrap(services.ErrNotFound, "blobstore", "stat local file", localPath, err)
	}

	var existing Object
	var found bool
	err = resilience.Retry(ctx, u.Retry, "stat "+key, func(ctx context.Context) error {
		var statErr error
		existing, found, statErr = u.Store.Stat(ctx, container, key)
		return statErr
	})
	if err != nil {
		u.Metrics.CountBlob(ctx, "stat", "failure")
		return false, err
	}
	if found && (policy == SkipExisting || existing.Size == info.Size()) {
		u.Metrics.CountBlob(ctx, "put", "skipped")
		return false, nil
	}

	err = resilience.Retry(ctx, u.Retry, "put "+key, func(ctx context.Context) error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return u.Store.Put(ctx, container, key, f, info.Size())
	})
	if err != nil {
		u.Metrics.CountBlob(ctx, "put", "failure")
		return false, err
	}
	u.Metrics.CountBlob(ctx, "put", "success")
	return true, nil
}

// UploadTree uploads every file under root whose extension is listed (all
// files when exts is empty) to container under prefix, preserving relative
// paths. Per-file failures are counted and the walk continues; a tripped
// breaker or missing credentials abort it.
func (u *Uploader) UploadTree(ctx context.Context, container, prefix, root string, exts []string, policy SkipPolicy) (Summary, error) {
	summary := Summary{Failures: map[string]string{}}
	if err := u.CheckCredentials(ctx); err != nil {
		return summary, err
	}
	logger := u.logger()

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(exts) > 0 && !slices.Contains(exts, strings.ToLower(filepath.Ext(p))) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("walk %s: %w", root, err)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if u.Breaker != nil {
			if err := u.Breaker.Allow(); err != nil {
				return summary, err
			}
		}
		rel, err := filepath.Rel(root, file)
		if err != nil {
			return summary, err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		uploaded, err := u.UploadFile(ctx, container, key, file, policy)
		if u.Breaker != nil {
			u.Breaker.Record(err)
		}
		switch {
		case err != nil:
			summary.Failed++
			summary.Failures[rel] = err.Error()
			logging.WarnWithContext(logger, "upload failed", "upload_failure",
				append(logging.FailureAttrs(err),
					logging.String("key", key),
					logging.String("container", container),
				)...,
			)
		case uploaded:
			summary.Uploaded++
			if info, statErr := os.Stat(file); statErr == nil {
				summary.Bytes += info.Size()
			}
			logger.Debug("uploaded", logging.String("key", key), logging.String("container", container))
		default:
			summary.Skipped++
		}
	}
	logger.Info("upload finished",
		logging.String("container", container),
		logging.Int("uploaded", summary.Uploaded),
		logging.Int("skipped", summary.Skipped),
		logging.Int("n_failed", summary.Failed),
		logging.Int64("uploaded_bytes", summary.Bytes),
	)
	return summary, nil
}

// IsCredentialFailure reports whether err should stop uploads for the run.
func IsCredentialFailure(err error) bool {
	return errors.Is(err, services.ErrCredential)
}

package blobstore

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"audiocorpus/internal/config"
	"audiocorpus/internal/services"
)

// Object describes a stored blob.
type Object struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Store is the blob store contract.
type Store interface {
	Exists(ctx context.Context, container, key string) (bool, error)
	// Stat returns the object and true, or false when it does not exist.
	Stat(ctx context.Context, container, key string) (Object, bool, error)
	Put(ctx context.Context, container, key string, body io.Reader, size int64) error
	// List yields objects whose key starts with prefix, in key order for
	// the local backend and service order for S3.
	List(ctx context.Context, container, prefix string) iter.Seq2[Object, error]
	Delete(ctx context.Context, container, key string) error
}

// Credentials are the S3 access keys.
type Credentials struct {
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// ErrCredentialsMissing reports an absent credentials file.
var ErrCredentialsMissing = fmt.Errorf("%w: blob store credentials file missing", services.ErrCredential)

// LoadCredentials reads a TOML credentials file with access_key and
// secret_key entries.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, fmt.Errorf("%w: %s", ErrCredentialsMissing, path)
		}
		return Credentials{}, services.Wrap(services.ErrCredential, "blobstore", "read credentials", path, err)
	}
	var creds Credentials
	if err := toml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, services.Wrap(services.ErrCredential, "blobstore", "parse credentials", path, err)
	}
	if strings.TrimSpace(creds.AccessKey) == "" || strings.TrimSpace(creds.SecretKey) == "" {
		return Credentials{}, services.Wrap(services.ErrCredential, "blobstore", "parse credentials",
			"access_key and secret_key are required", nil)
	}
	return creds, nil
}

// Open constructs the backend selected by cfg.Blobstore.Backend.
func Open(cfg *config.Config) (Store, error) {
	b := cfg.Blobstore
	switch b.Backend {
	case "local":
		root := b.LocalRoot
		if strings.TrimSpace(root) == "" {
			root = filepath.Join(cfg.Paths.BaseDir, "blobs")
		}
		return NewLocalStore(root)
	case "s3":
		creds := Credentials{AccessKey: b.AccessKey, SecretKey: b.SecretKey}
		if strings.TrimSpace(b.CredentialsFile) != "" {
			loaded, err := LoadCredentials(b.CredentialsFile)
			if err != nil {
				return nil, err
			}
			creds = loaded
		}
		return NewS3Store(S3Options{
			Endpoint:    b.Endpoint,
			UseSSL:      b.UseSSL,
			Region:      b.Region,
			Credentials: creds,
		})
	default:
		return nil, fmt.Errorf("%w: unknown blob store backend %q", services.ErrConfiguration, b.Backend)
	}
}

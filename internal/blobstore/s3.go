package blobstore

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"audiocorpus/internal/services"
)

// S3Options configures an S3-compatible backend.
type S3Options struct {
	Endpoint    string
	UseSSL      bool
	Region      string
	Credentials Credentials
}

// S3Store stores blobs in buckets named after containers.
type S3Store struct {
	client *minio.Client
	region string
}

// NewS3Store creates a client for the configured endpoint. No request is
// made until the first operation.
func NewS3Store(opts S3Options) (*S3Store, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if endpoint == "" {
		return nil, fmt.Errorf("%w: s3 endpoint is required", services.ErrConfiguration)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.Credentials.AccessKey, opts.Credentials.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "blobstore", "create s3 client", endpoint, err)
	}
	return &S3Store{client: client, region: opts.Region}, nil
}

// classify maps S3 error responses onto service markers.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden,
		resp.Code == "AccessDenied", resp.Code == "InvalidAccessKeyId", resp.Code == "SignatureDoesNotMatch":
		return services.Wrap(services.ErrCredential, "blobstore", op, resp.Code, err)
	case resp.Code == "NoSuchBucket":
		return services.Wrap(services.ErrNotFound, "blobstore", op, "bucket missing", err)
	default:
		return services.Wrap(services.ErrTransient, "blobstore", op, "", err)
	}
}

func isMissing(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket")
}

// EnsureContainer creates the bucket if it does not exist.
func (s *S3Store) EnsureContainer(ctx context.Context, container string) error {
	ok, err := s.client.BucketExists(ctx, container)
	if err != nil {
		return classify("bucket exists", err)
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, container, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return classify("make bucket", err)
	}
	return nil
}

// Exists implements Store.
func (s *S3Store) Exists(ctx context.Context, container, key string) (bool, error) {
	_, ok, err := s.Stat(ctx, container, key)
	return ok, err
}

// Stat implements Store.
func (s *S3Store) Stat(ctx context.Context, container, key string) (Object, bool, error) {
	info, err := s.client.StatObject(ctx, container, key, minio.StatObjectOptions{})
	if err != nil {
		if isMissing(err) {
			return Object{}, false, nil
		}
		return Object{}, false, classify("stat", err)
	}
	return Object{Key: info.Key, Size: info.Size, Modified: info.LastModified.UTC()}, true, nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, container, key string, body io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, container, key, body, size, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	return classify("put", err)
}

// List implements Store.
func (s *S3Store) List(ctx context.Context, container, prefix string) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		listCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		for info := range s.client.ListObjects(listCtx, container, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if info.Err != nil {
				yield(Object{}, classify("list", info.Err))
				return
			}
			if !yield(Object{Key: info.Key, Size: info.Size, Modified: info.LastModified.UTC()}, nil) {
				return
			}
		}
	}
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, container, key string) error {
	err := s.client.RemoveObject(ctx, container, key, minio.RemoveObjectOptions{})
	if err != nil && isMissing(err) {
		return nil
	}
	return classify("delete", err)
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(key, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(key, ".flac"):
		return "audio/flac"
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

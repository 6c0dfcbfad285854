package blobstore_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audiocorpus/internal/blobstore"
	"audiocorpus/internal/resilience"
	"audiocorpus/internal/services"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLocalStoreOperations(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if ok, err := store.Exists(ctx, "audios", "a/one.wav"); err != nil || ok {
		t.Fatalf("expected missing key, got %v %v", ok, err)
	}
	for _, key := range []string{"a/one.wav", "a/two.wav", "b/three.wav"} {
		if err := store.Put(ctx, "audios", key, strings.NewReader(key), int64(len(key))); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	obj, ok, err := store.Stat(ctx, "audios", "a/two.wav")
	if err != nil || !ok || obj.Size != int64(len("a/two.wav")) {
		t.Fatalf("unexpected stat: %+v %v %v", obj, ok, err)
	}

	var keys []string
	for obj, err := range store.List(ctx, "audios", "a/") {
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		keys = append(keys, obj.Key)
	}
	if strings.Join(keys, ",") != "a/one.wav,a/two.wav" {
		t.Fatalf("unexpected listing: %v", keys)
	}

	if err := store.Delete(ctx, "audios", "a/one.wav"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "audios", "a/one.wav"); err != nil {
		t.Fatalf("Delete of missing key should succeed: %v", err)
	}
	if ok, _ := store.Exists(ctx, "audios", "a/one.wav"); ok {
		t.Fatal("expected key to be deleted")
	}
	for _, err := range store.List(ctx, "empty", "") {
		t.Fatalf("listing a missing container should yield nothing, got %v", err)
	}
	if err := store.Put(ctx, "../x", "k", strings.NewReader(""), 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad container, got %v", err)
	}
}

func TestUploadTreeSkipPolicies(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "one.wav"), "aaaa")
	writeFile(t, filepath.Join(src, "nested", "two.wav"), "bb")
	writeFile(t, filepath.Join(src, "notes.txt"), "skip me")

	store, _ := blobstore.NewLocalStore(t.TempDir())
	up := &blobstore.Uploader{Store: store, Retry: resilience.RetryPolicy{Attempts: 1}}

	summary, err := up.UploadTree(ctx, "audios", "raw", src, []string{".wav"}, blobstore.SkipExisting)
	if err != nil {
		t.Fatalf("UploadTree: %v", err)
	}
	if summary.Uploaded != 2 || summary.Skipped != 0 || summary.Bytes != 6 {
		t.Fatalf("unexpected first summary: %+v", summary)
	}
	if ok, _ := store.Exists(ctx, "audios", "raw/nested/two.wav"); !ok {
		t.Fatal("expected nested key to be uploaded")
	}

	summary, _ = up.UploadTree(ctx, "audios", "raw", src, []string{".wav"}, blobstore.SkipExisting)
	if summary.Uploaded != 0 || summary.Skipped != 2 {
		t.Fatalf("expected everything skipped, got %+v", summary)
	}

	writeFile(t, filepath.Join(src, "one.wav"), "aaaaaaaa")
	summary, _ = up.UploadTree(ctx, "audios", "raw", src, []string{".wav"}, blobstore.SkipSameSize)
	if summary.Uploaded != 1 || summary.Skipped != 1 {
		t.Fatalf("expected changed file re-uploaded, got %+v", summary)
	}
}

func TestCredentialsCooldownThenAbort(t *testing.T) {
	var slept []time.Duration
	store, _ := blobstore.NewLocalStore(t.TempDir())
	up := &blobstore.Uploader{
		Store:           store,
		CredentialsFile: filepath.Join(t.TempDir(), "missing.toml"),
		Cooldown:        5 * time.Minute,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	_, err := up.UploadTree(context.Background(), "audios", "", t.TempDir(), nil, blobstore.SkipExisting)
	if !errors.Is(err, blobstore.ErrCredentialsMissing) || !errors.Is(err, services.ErrCredential) {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
	if len(slept) != 1 || slept[0] != 5*time.Minute {
		t.Fatalf("expected one cooldown sleep, got %v", slept)
	}
}

func TestLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.toml")
	writeFile(t, path, "access_key = \"AK\"\nsecret_key = \"SK\"\n")
	creds, err := blobstore.LoadCredentials(path)
	if err != nil || creds.AccessKey != "AK" || creds.SecretKey != "SK" {
		t.Fatalf("unexpected credentials: %+v %v", creds, err)
	}
	writeFile(t, path, "access_key = \"AK\"\n")
	if _, err := blobstore.LoadCredentials(path); !errors.Is(err, services.ErrCredential) {
		t.Fatalf("expected credential error for incomplete file, got %v", err)
	}
}

type deniedStore struct {
	puts int
}

func (s *deniedStore) Exists(context.Context, string, string) (bool, error) { return false, nil }

func (s *deniedStore) Stat(context.Context, string, string) (blobstore.Object, bool, error) {
	return blobstore.Object{}, false, nil
}

func (s *deniedStore) Put(_ context.Context, _, _ string, body io.Reader, _ int64) error {
	s.puts++
	_, _ = io.Copy(io.Discard, body)
	return services.Wrap(services.ErrCredential, "blobstore", "put", "AccessDenied", nil)
}

func (s *deniedStore) List(context.Context, string, string) iter.Seq2[blobstore.Object, error] {
	return func(func(blobstore.Object, error) bool) {}
}

func (s *deniedStore) Delete(context.Context, string, string) error { return nil }

func TestBreakerStopsUploadsAfterCredentialFailures(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"a.wav", "b.wav", "c.wav", "d.wav"} {
		writeFile(t, filepath.Join(src, name), "x")
	}
	store := &deniedStore{}
	up := &blobstore.Uploader{
		Store:   store,
		Retry:   resilience.RetryPolicy{Attempts: 3},
		Breaker: resilience.NewBreaker(resilience.BreakerConfig{MaxFailures: 2}),
	}
	summary, err := up.UploadTree(context.Background(), "audios", "", src, nil, blobstore.SkipExisting)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected circuit open, got %v", err)
	}
	if summary.Failed != 2 || store.puts != 2 {
		t.Fatalf("expected two failed single-attempt puts, got %+v puts=%d", summary, store.puts)
	}
	if blobstore.IsCredentialFailure(errors.New("x")) {
		t.Fatal("plain errors are not credential failures")
	}
}

package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"audiocorpus/internal/config"
	"audiocorpus/internal/services"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func hubServer(t *testing.T, want string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/whoami-v2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyHubToken(t *testing.T) {
	srv := hubServer(t, "hf_good")
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name   string
		url    string
		token  string
		cause  error
		marker error
	}{
		{"accepted", srv.URL, "hf_good", nil, nil},
		{"missing", srv.URL, "  ", ErrTokenMissing, services.ErrCredential},
		{"rejected", srv.URL, "hf_bad", ErrTokenRejected, services.ErrCredential},
		{"unreachable", closedURL, "hf_good", ErrHubUnreachable, services.ErrConfiguration},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifyHubToken(context.Background(), srv.Client(), tc.url, tc.token)
			if tc.cause == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.cause) || !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v/%v, got %v", tc.cause, tc.marker, err)
			}
			if !services.IsSystemic(err) {
				t.Fatalf("hub failures must be systemic: %v", err)
			}
		})
	}
}

func TestRunAllMemoryBackend(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.BaseDir = base
	cfg.Paths.ProcessedDir = filepath.Join(base, "processed")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Progress.Backend = "memory"
	cfg.Blobstore.LocalRoot = filepath.Join(base, "blobs")
	cfg.Diarization.Enabled = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), &cfg)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, got %+v", failed)
	}
	if len(results) < 4 {
		t.Fatalf("expected directory, progress and blob checks, got %+v", results)
	}
}

func TestRequirementsIncludeDiarizer(t *testing.T) {
	cfg := config.Default()
	cfg.Diarization.Enabled = true
	cfg.Diarization.Command = []string{"diarize-helper", "--json"}
	reqs := Requirements(&cfg)
	last := reqs[len(reqs)-1]
	if last.Command != "diarize-helper" || last.Optional {
		t.Fatalf("unexpected diarizer requirement: %+v", last)
	}

	cfg.Diarization.Enabled = false
	for _, req := range Requirements(&cfg) {
		if req.Name == "Diarizer" {
			t.Fatal("diarizer requirement should be omitted when disabled")
		}
	}
}

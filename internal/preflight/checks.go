package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"audiocorpus/internal/blobstore"
	"audiocorpus/internal/config"
	"audiocorpus/internal/deps"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/services"
)

// Reasons a model hub token check can fail.
var (
	ErrTokenMissing   = errors.New("hub token not configured")
	ErrTokenRejected  = errors.New("hub token rejected")
	ErrHubUnreachable = errors.New("model hub unreachable")
)

const hubCheckTimeout = 10 * time.Second

// VerifyHubToken confirms the diarization model hub accepts token. Missing
// and rejected tokens are credential failures; an unreachable hub is a
// configuration failure. All three stop the run.
func VerifyHubToken(ctx context.Context, client *http.Client, hubURL, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return services.Wrap(services.ErrCredential, "diarization", "verify token",
			"set diarization.hf_token or HF_TOKEN", ErrTokenMissing)
	}
	base := strings.TrimRight(strings.TrimSpace(hubURL), "/")
	if base == "" {
		return services.Wrap(services.ErrConfiguration, "diarization", "verify token",
			"diarization.hub_url is empty", ErrHubUnreachable)
	}
	if client == nil {
		client = &http.Client{Timeout: hubCheckTimeout}
	}

	checkCtx, cancel := context.WithTimeout(ctx, hubCheckTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/api/whoami-v2", nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "diarization", "verify token", base, errors.Join(ErrHubUnreachable, err))
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "diarization", "verify token", summarizeNetError(err), errors.Join(ErrHubUnreachable, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrCredential, "diarization", "verify token",
			fmt.Sprintf("hub answered %d", resp.StatusCode), ErrTokenRejected)
	default:
		return services.Wrap(services.ErrConfiguration, "diarization", "verify token",
			fmt.Sprintf("hub answered %d", resp.StatusCode), ErrHubUnreachable)
	}
}

// CheckHub reports model hub token status.
func CheckHub(ctx context.Context, hubURL, token string) Result {
	const name = "Model hub"
	err := VerifyHubToken(ctx, nil, hubURL, token)
	switch {
	case err == nil:
		return Result{Name: name, Passed: true, Detail: "token accepted"}
	case errors.Is(err, ErrTokenMissing):
		return Result{Name: name, Detail: "missing token"}
	case errors.Is(err, ErrTokenRejected):
		return Result{Name: name, Detail: "token rejected"}
	default:
		return Result{Name: name, Detail: err.Error()}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckProgressStore opens the configured progress backend without falling
// back to memory and closes it again.
func CheckProgressStore(ctx context.Context, cfg *config.Config) Result {
	name := "Progress store (" + cfg.Progress.Backend + ")"
	strict := *cfg
	strict.Progress.AllowMemoryFallback = false
	store, err := progress.Open(ctx, &strict, nil)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	_ = store.Close()
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckBlobstore verifies that the blob store answers a listing of the raw
// container.
func CheckBlobstore(ctx context.Context, cfg *config.Config) Result {
	name := "Blob store (" + cfg.Blobstore.Backend + ")"
	store, err := blobstore.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, err := range store.List(checkCtx, cfg.Blobstore.RawContainer, "") {
		if err != nil {
			return Result{Name: name, Detail: summarizeNetError(err)}
		}
		break
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// Requirements lists the external programs the configured pipeline runs.
func Requirements(cfg *config.Config) []deps.Requirement {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Loader.FFmpegBinary,
			Description: "Decodes inputs the native WAV reader rejects",
			Optional:    true,
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Loader.FFprobeBinary,
			Description: "Records source format details",
			Optional:    true,
			VersionArgs: []string{"-version"},
		},
	}
	if cfg.Diarization.Enabled && len(cfg.Diarization.Command) > 0 {
		requirements = append(requirements, deps.Requirement{
			Name:        "Diarizer",
			Command:     cfg.Diarization.Command[0],
			Description: "Runs speaker diarization",
		})
	}
	return requirements
}

// CheckSystemDeps evaluates all system-level dependencies for the given config.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(ctx, Requirements(cfg))
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}

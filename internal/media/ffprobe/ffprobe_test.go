package ffprobe

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "mjpeg"},
    {"index": 1, "codec_type": "audio", "codec_name": "mp3", "sample_rate": "44100", "channels": 2,
     "channel_layout": "stereo", "sample_fmt": "fltp"}
  ],
  "format": {"format_name": "mp3", "duration": "123.45", "size": "1000", "bit_rate": "32000", "nb_streams": 2}
}`

func TestParseAndSummary(t *testing.T) {
	result, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	stream, ok := result.PrimaryAudio()
	if !ok || stream.Index != 1 {
		t.Fatalf("unexpected primary audio stream: %+v", stream)
	}
	summary := result.Summary()
	if summary["sample_rate"] != 44100 || summary["channels"] != 2 || summary["codec"] != "mp3" {
		t.Fatalf("unexpected summary: %v", summary)
	}
	if summary["duration"] != 123.45 || summary["size_bytes"] != int64(1000) {
		t.Fatalf("unexpected container fields: %v", summary)
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", SampleRate: "fast"}},
		Format: Format{
			Duration: "bad",
			Size:     "-1",
			BitRate:  "nope",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
	if result.Streams[0].SampleRateHz() != 0 {
		t.Fatalf("expected sample rate 0, got %d", result.Streams[0].SampleRateHz())
	}
	if _, ok := result.Summary()["duration"]; ok {
		t.Fatal("invalid duration must be omitted from summary")
	}
}

func TestInspectUsesBinaryOutput(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat <<'JSON'\n" + sampleJSON + "\nJSON\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	result, err := Inspect(context.Background(), stub, "/tmp/input.mp3")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.Format.FormatName != "mp3" {
		t.Fatalf("unexpected format: %+v", result.Format)
	}
}

func TestInspectReportsFailure(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\necho 'Invalid data found' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	if _, err := Inspect(context.Background(), stub, "/tmp/input.mp3"); err == nil {
		t.Fatal("expected error from failing ffprobe")
	}
	if _, err := Inspect(context.Background(), stub, " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

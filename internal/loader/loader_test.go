package loader_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"audiocorpus/internal/loader"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
	"audiocorpus/internal/testsupport"
)

func writeStereo(t *testing.T, path string, rate int, seconds float64) {
	t.Helper()
	frames := int(seconds * float64(rate))
	data := make([]int, 0, frames*2)
	for i := range frames {
		v := int(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		data = append(data, v, v/2)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, rate, 16, 2, 1)
	buf := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 2, SampleRate: rate}, Data: data, SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestProcessDownmixesAndResamples(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Loader.FFprobeBinary = filepath.Join(t.TempDir(), "missing-ffprobe")
	src := filepath.Join(t.TempDir(), "interview.wav")
	writeStereo(t, src, 44100, 3)

	l := loader.New(cfg, nil)
	res, err := l.Process(context.Background(), stage.Job{RecordID: "r", Path: src})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Outputs) != 1 {
		t.Fatalf("expected one output, got %+v", res.Outputs)
	}
	clip := testsupport.ReadWAV(t, res.Outputs[0].Path)
	if clip.SampleRate != 16000 {
		t.Fatalf("expected 16 kHz output, got %d", clip.SampleRate)
	}
	if math.Abs(clip.Duration()-3) > 0.001 {
		t.Fatalf("resampling must preserve duration, got %.4f", clip.Duration())
	}
	if res.Details["decoder"] != loader.DecoderNative || res.Details["channels"] != 2 || res.Details["original_sample_rate"] != 44100 {
		t.Fatalf("unexpected details: %v", res.Details)
	}
	if filepath.Base(res.Outputs[0].Path) != "interview.wav" {
		t.Fatalf("unexpected output name %s", res.Outputs[0].Path)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestProcessFallsBackToFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Loader.FFprobeBinary = filepath.Join(t.TempDir(), "missing-ffprobe")
	prepared := testsupport.WriteTone(t, filepath.Join(t.TempDir(), "decoded.wav"), 220, 0.5, 2, 22050)
	cfg.Loader.FFmpegBinary = writeScript(t, "for last; do :; done\ncp '"+prepared+"' \"$last\"\n")

	src := filepath.Join(t.TempDir(), "song.mp3")
	testsupport.WriteFile(t, src, 512)

	res, err := loader.New(cfg, nil).Process(context.Background(), stage.Job{RecordID: "r", Path: src})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Details["decoder"] != loader.DecoderFFmpeg {
		t.Fatalf("expected ffmpeg decoder, got %v", res.Details["decoder"])
	}
	clip := testsupport.ReadWAV(t, res.Outputs[0].Path)
	if math.Abs(clip.Duration()-2) > 0.001 || clip.SampleRate != 16000 {
		t.Fatalf("unexpected output: %.3fs @ %d", clip.Duration(), clip.SampleRate)
	}
	if filepath.Ext(res.Outputs[0].Path) != ".wav" || filepath.Base(res.Outputs[0].Path) != "song_mp3.wav" {
		t.Fatalf("unexpected output path %s", res.Outputs[0].Path)
	}
}

func TestProcessFailsWhenBothDecodersFail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Loader.FFmpegBinary = writeScript(t, "echo 'invalid data' >&2\nexit 1\n")
	src := filepath.Join(t.TempDir(), "broken.ogg")
	testsupport.WriteFile(t, src, 64)

	_, err := loader.New(cfg, nil).Process(context.Background(), stage.Job{RecordID: "r", Path: src})
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if services.IsSystemic(err) {
		t.Fatal("decode failures are per-item")
	}
}

func TestDescribeFallsBackToWAVHeader(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Loader.FFprobeBinary = filepath.Join(t.TempDir(), "missing-ffprobe")
	src := testsupport.WriteSilence(t, filepath.Join(t.TempDir(), "quiet.wav"), 1, 16000)

	meta := loader.New(cfg, nil).Describe(context.Background(), src)
	if meta["path"] != src || meta["sample_rate"] != 16000 || meta["channels"] != 1 {
		t.Fatalf("unexpected metadata: %v", meta)
	}
	if size, ok := meta["file_size"].(int64); !ok || size <= 44 {
		t.Fatalf("unexpected file size: %v", meta["file_size"])
	}
}

package quality_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"audiocorpus/internal/config"
	"audiocorpus/internal/quality"
	"audiocorpus/internal/stage"
	"audiocorpus/internal/testsupport"
)

const rate = 16000

func defaultGate() quality.Gate {
	return quality.Gate{MinSNR: 15, MinDuration: 1, MaxDuration: 20}
}

func TestShortCleanClipIsOnlyTooShort(t *testing.T) {
	dir := t.TempDir()
	samples := append(testsupport.Tone(440, 0.5, 0.4, rate), testsupport.Silence(0.1, rate)...)
	path := testsupport.WriteWAV(t, filepath.Join(dir, "short.wav"), samples, rate)

	v := defaultGate().Check(path, false)
	if !slices.Equal(v.Reasons, []string{quality.ReasonTooShort}) {
		t.Fatalf("reasons = %v, want [too_short] (snr %.1f)", v.Reasons, v.SNR)
	}
	if v.Accepted() {
		t.Fatal("short clip must be rejected")
	}
}

func TestGateReportsEveryFailingPredicate(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteTone(t, filepath.Join(dir, "hum.wav"), 440, 0.5, 0.5, rate)

	v := defaultGate().Check(path, true)
	want := []string{quality.ReasonTooShort, quality.ReasonLowSNR, quality.ReasonMarkedProblematic}
	if !slices.Equal(v.Reasons, want) {
		t.Fatalf("reasons = %v, want %v", v.Reasons, want)
	}
}

func TestEvaluateBounds(t *testing.T) {
	g := defaultGate()
	tests := []struct {
		name     string
		duration float64
		snr      float64
		want     []string
	}{
		{"accepted", 5, 30, []string{}},
		{"lower bound inclusive", 1, 15, []string{}},
		{"upper bound inclusive", 20, 15, []string{}},
		{"too long", 20.5, 40, []string{quality.ReasonTooLong}},
		{"too long and noisy", 25, 3, []string{quality.ReasonTooLong, quality.ReasonLowSNR}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := g.Evaluate("x.wav", tc.duration, tc.snr, false)
			if !slices.Equal(v.Reasons, tc.want) {
				t.Fatalf("reasons = %v, want %v", v.Reasons, tc.want)
			}
		})
	}
}

func TestUndecodableClipIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	if err := os.WriteFile(path, []byte("not a wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	v := defaultGate().Check(path, false)
	if !slices.Equal(v.Reasons, []string{quality.ReasonCheckError}) || v.Error == "" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	r := quality.Report{}.Observe(v)
	if r.Invalid != 1 || r.Measured != 0 || r.MeanSNR != 0 {
		t.Fatalf("undecodable clip must not affect snr aggregates: %+v", r)
	}
}

func TestReportObserveIsImmutable(t *testing.T) {
	g := defaultGate()
	var r quality.Report
	r1 := r.Observe(g.Evaluate("a.wav", 2, 20, false))
	r2 := r1.Observe(g.Evaluate("b.wav", 4, 10, false))
	if r1.Total != 1 || len(r1.Reasons) != 0 {
		t.Fatalf("observe mutated its receiver: %+v", r1)
	}
	if r2.Total != 2 || r2.Valid != 1 || r2.Invalid != 1 || r2.Reasons[quality.ReasonLowSNR] != 1 {
		t.Fatalf("unexpected counts: %+v", r2)
	}
	if r2.MeanSNR != 15 || r2.MinSNR != 10 || r2.MaxSNR != 20 || r2.MeanDuration != 3 {
		t.Fatalf("unexpected aggregates: %+v", r2)
	}
}

func TestMergeWeightsByCount(t *testing.T) {
	g := defaultGate()
	var a, b quality.Report
	for _, snr := range []float64{10, 20, 30} {
		a = a.Observe(g.Evaluate("a.wav", 2, snr, false))
	}
	b = b.Observe(g.Evaluate("b.wav", 8, 60, false))

	merged := quality.Merge(a, b)
	var sequential quality.Report
	for _, snr := range []float64{10, 20, 30} {
		sequential = sequential.Observe(g.Evaluate("a.wav", 2, snr, false))
	}
	sequential = sequential.Observe(g.Evaluate("b.wav", 8, 60, false))

	if merged.Total != 4 || merged.Invalid != 1 || merged.Reasons[quality.ReasonLowSNR] != 1 {
		t.Fatalf("unexpected counts: %+v", merged)
	}
	if math.Abs(merged.MeanSNR-sequential.MeanSNR) > 1e-9 || merged.MeanSNR != 30 {
		t.Fatalf("merged mean %.3f, sequential %.3f", merged.MeanSNR, sequential.MeanSNR)
	}
	if math.Abs(merged.MeanDuration-3.5) > 1e-9 || merged.MinSNR != 10 || merged.MaxSNR != 60 {
		t.Fatalf("unexpected merged aggregates: %+v", merged)
	}
	if got := quality.Merge(quality.Report{}, b); got.MeanSNR != 60 || got.MinSNR != 60 {
		t.Fatalf("merge with empty report: %+v", got)
	}
}

func TestWriteReport(t *testing.T) {
	g := defaultGate()
	r := quality.Report{}.
		Observe(g.Evaluate("a.wav", 0.5, 5, false)).
		Observe(g.Evaluate("b.wav", 0.5, 40, false)).
		Observe(g.Evaluate("c.wav", 4, 40, false))
	path := filepath.Join(t.TempDir(), "quality_report.txt")
	if err := quality.WriteReport(path, r); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		"Segments checked: 3",
		"Valid segments: 1 (33.33%)",
		"too_short: 2 segments (100.00% of rejects)",
		"low_snr: 1 segments (50.00% of rejects)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("report missing %q:\n%s", want, text)
		}
	}
	if strings.Index(text, "too_short") > strings.Index(text, "low_snr") {
		t.Fatal("reasons must be sorted by count")
	}
}

func TestSampleIsSeeded(t *testing.T) {
	files := []string{"e.wav", "a.wav", "c.wav", "b.wav", "d.wav"}
	first := quality.Sample(files, 3, 42)
	second := quality.Sample(slices.Clone(files), 3, 42)
	if len(first) != 3 || !slices.Equal(first, second) {
		t.Fatalf("sample not reproducible: %v vs %v", first, second)
	}
	if got := quality.Sample(files, 10, 42); len(got) != len(files) {
		t.Fatalf("oversized sample returned %d files", len(got))
	}
}

func TestErrorRates(t *testing.T) {
	tests := []struct {
		ref, hyp string
		wer, cer float64
	}{
		{"the cat sat", "the cat sat", 0, 0},
		{"the cat sat", "the bat sat", 1.0 / 3, 1.0 / 9},
		{"the cat sat", "the cat", 1.0 / 3, 3.0 / 9},
		{"", "", 0, 0},
		{"", "noise", 1, 1},
	}
	for _, tc := range tests {
		got := quality.ErrorRates(tc.ref, tc.hyp)
		if math.Abs(got.WER-tc.wer) > 1e-9 || math.Abs(got.CER-tc.cer) > 1e-9 {
			t.Fatalf("ErrorRates(%q, %q) = %+v, want wer %.3f cer %.3f", tc.ref, tc.hyp, got, tc.wer, tc.cer)
		}
	}
}

func TestLoadFlagsCSVAndParquet(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "flags.csv")
	doc := "segment_file,speaker_id,is_problematic\nx_seg001.wav,A,True\nx_seg002.wav,A,False\n"
	if err := os.WriteFile(csvPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	flags, err := quality.LoadFlags(csvPath)
	if err != nil {
		t.Fatalf("LoadFlags csv: %v", err)
	}
	if !flags.Problematic("/any/dir/x_seg001.wav") || flags.Problematic("x_seg002.wav") {
		t.Fatalf("unexpected csv flags: %v", flags)
	}

	type row struct {
		SegmentFile   string `parquet:"segment_file"`
		IsProblematic bool   `parquet:"is_problematic"`
	}
	pqPath := filepath.Join(dir, "flags.parquet")
	if err := parquet.WriteFile(pqPath, []row{{"y_seg001.wav", false}, {"y_seg002.wav", true}}); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	flags, err = quality.LoadFlags(pqPath)
	if err != nil {
		t.Fatalf("LoadFlags parquet: %v", err)
	}
	if flags.Problematic("y_seg001.wav") || !flags.Problematic("y_seg002.wav") {
		t.Fatalf("unexpected parquet flags: %v", flags)
	}

	flags, err = quality.LoadFlags(filepath.Join(dir, "absent.csv"))
	if err != nil || len(flags) != 0 {
		t.Fatalf("missing file should yield no flags: %v %v", flags, err)
	}
}

func TestCheckerExportsAcceptedClips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	good := append(testsupport.Tone(300, 0.5, 2.9, rate), testsupport.Silence(0.1, rate)...)
	goodPath := testsupport.WriteWAV(t, filepath.Join(dir, "talk_seg001.wav"), good, rate)
	badPath := testsupport.WriteTone(t, filepath.Join(dir, "talk_seg002.wav"), 300, 0.5, 0.5, rate)

	checker := quality.New(cfg, nil, quality.WithFlags(quality.Flags{}))
	if h := checker.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("checker not ready: %+v", h)
	}

	res, err := checker.Process(context.Background(), stage.Job{RecordID: "r", Path: goodPath, SpeakerID: "A"})
	if err != nil {
		t.Fatalf("Process good: %v", err)
	}
	want := filepath.Join(cfg.OutputDir(config.DirFinal), "talk_seg001.wav")
	if len(res.Exported) != 1 || res.Details["output_path"] != want {
		t.Fatalf("expected export to %s, got %+v", want, res)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
	if v, ok := quality.VerdictOf(res); !ok || !v.Accepted() {
		t.Fatalf("unexpected verdict: %+v", v)
	}

	res, err = checker.Process(context.Background(), stage.Job{RecordID: "r", Path: badPath, SpeakerID: "A"})
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if len(res.Exported) != 0 || len(res.Outputs) != 0 || res.Details["is_valid"] != false {
		t.Fatalf("rejected clip exported: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir(config.DirFinal), "talk_seg002.wav")); !os.IsNotExist(err) {
		t.Fatalf("rejected clip present in final dir: %v", err)
	}
}

package augment

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/config"
	"audiocorpus/internal/dsp"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
)

const (
	stageName  = "augmentation"
	peakTarget = 0.99
)

// Augmenter implements stage.Handler for data augmentation.
type Augmenter struct {
	cfg    config.Augmentation
	bits   int
	outDir string
	pool   *NoisePool
	logger *slog.Logger
}

// New constructs an Augmenter.
func New(cfg *config.Config, logger *slog.Logger) *Augmenter {
	return &Augmenter{
		cfg:    cfg.Augmentation,
		bits:   cfg.Loader.TargetBits,
		outDir: cfg.OutputDir(config.DirAugmented),
		pool:   NewNoisePool(cfg.Augmentation.NoiseDir),
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Name implements stage.Handler.
func (a *Augmenter) Name() string { return stageName }

// Flag implements stage.Handler.
func (a *Augmenter) Flag() progress.Stage { return progress.StageAugmented }

// HealthCheck reports an unreadable noise directory.
func (a *Augmenter) HealthCheck(context.Context) stage.Health {
	if _, err := a.pool.Len(); err != nil {
		return stage.Unhealthy(stageName, err.Error())
	}
	return stage.Healthy(stageName)
}

// Rand returns the generator for augmentation index of the named clip.
func (a *Augmenter) Rand(name string, index int) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(filepath.Base(name)))
	return rand.New(rand.NewPCG(uint64(a.cfg.Seed), h.Sum64()^uint64(index)))
}

// Select draws the transforms for one augmentation. Noise picks use the
// background pool with probability prob_background when the pool is not
// empty. At least one transform is always selected.
func (a *Augmenter) Select(rng *rand.Rand, poolSize int) []string {
	var selected []string
	if rng.Float64() < a.cfg.ProbTempo {
		selected = append(selected, TransformTempo)
	}
	if rng.Float64() < a.cfg.ProbPitch {
		selected = append(selected, TransformPitch)
	}
	if rng.Float64() < a.cfg.ProbNoise {
		if poolSize > 0 && rng.Float64() < a.cfg.ProbBackground {
			selected = append(selected, TransformBackground)
		} else {
			selected = append(selected, TransformNoise)
		}
	}
	if rng.Float64() < a.cfg.ProbMasking {
		selected = append(selected, TransformMasking)
	}
	if len(selected) == 0 {
		available := []string{TransformTempo, TransformPitch, TransformNoise}
		if poolSize > 0 {
			available = append(available, TransformBackground)
		}
		selected = append(selected, available[rng.IntN(len(available))])
	}
	return selected
}

// Augment applies the selected transforms to a copy of clip and returns the
// peak-normalized result with the sampled parameters.
func (a *Augmenter) Augment(clip *audio.Clip, selected []string, rng *rand.Rand) (*audio.Clip, map[string]any) {
	samples := clip.Clone().Samples
	params := map[string]any{"applied_augmentations": selected}
	for _, name := range selected {
		switch name {
		case TransformTempo:
			factor := uniform(rng, a.cfg.TempoRange[0], a.cfg.TempoRange[1])
			samples = dsp.TimeStretch(samples, factor)
			params["tempo_factor"] = stage.Round(factor, 4)
		case TransformPitch:
			steps := uniformInt(rng, a.cfg.PitchRange[0], a.cfg.PitchRange[1])
			samples = dsp.PitchShift(samples, float64(steps))
			params["pitch_steps"] = steps
		case TransformNoise:
			level := uniform(rng, a.cfg.NoiseLevelRange[0], a.cfg.NoiseLevelRange[1])
			AddGaussian(samples, level, rng)
			params["noise_level"] = stage.Round(level, 5)
		case TransformBackground:
			n, _ := a.pool.Len()
			noise, file := a.pool.Pick(rng.IntN(n), clip.SampleRate)
			snr := uniform(rng, a.cfg.BackgroundSNRRange[0], a.cfg.BackgroundSNRRange[1])
			MixAtSNR(samples, noise, snr)
			params["background_snr"] = stage.Round(snr, 2)
			params["background_file"] = file
		case TransformMasking:
			var freq, times []Mask
			samples, freq, times = MaskSpectrum(samples, rng)
			params["freq_masks"] = freq
			params["time_masks"] = times
		}
	}
	audio.PeakNormalize(samples, peakTarget)
	return audio.NewClip(samples, clip.SampleRate), params
}

// Process implements stage.Handler.
func (a *Augmenter) Process(ctx context.Context, job stage.Job) (stage.Result, error) {
	clip, err := stage.LoadClip(stageName, job.Path)
	if err != nil {
		return stage.Result{}, err
	}
	poolSize, err := a.pool.Len()
	if err != nil {
		return stage.Result{}, services.Wrap(services.ErrConfiguration, stageName, "load noise pool", a.cfg.NoiseDir, err)
	}

	stem := stage.Stem(job.Path)
	var result stage.Result
	types := make([]string, 0, a.cfg.NAugmentationsPerSample)
	for i := range a.cfg.NAugmentationsPerSample {
		rng := a.Rand(job.Path, i+1)
		selected := a.Select(rng, poolSize)
		out, params := a.Augment(clip, selected, rng)
		path := filepath.Join(a.outDir, fmt.Sprintf("%s_aug%d.wav", stem, i+1))
		if err := stage.WriteClip(stageName, path, out, a.bits); err != nil {
			return stage.Result{}, err
		}
		kind := strings.Join(selected, "_")
		types = append(types, kind)
		params["original_file"] = filepath.Base(job.Path)
		result.Outputs = append(result.Outputs, stage.Artifact{Path: path, SpeakerID: job.SpeakerID})
		result.Augmentations = append(result.Augmentations, progress.Augmentation{
			OriginalFile:  job.Path,
			AugmentedFile: path,
			Type:          kind,
			Parameters:    params,
		})
	}
	logging.WithContext(ctx, a.logger).Debug("clip augmented",
		logging.Int("n_augmentations", len(types)),
		logging.String("types", strings.Join(types, ",")),
	)
	result.Details = map[string]any{
		"n_augmentations": len(types),
		"types":           types,
		"background_pool": poolSize,
	}
	return result, nil
}

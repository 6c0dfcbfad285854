package augment

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"audiocorpus/internal/audio"
)

// NoisePool holds background noise recordings, loaded on first use and
// resampled per requested rate.
type NoisePool struct {
	dir string

	once   sync.Once
	err    error
	names  []string
	clips  []*audio.Clip
	mu     sync.Mutex
	byRate map[int][][]float64
}

// NewNoisePool returns a pool over the WAV files in dir. An empty dir yields
// an empty pool.
func NewNoisePool(dir string) *NoisePool {
	return &NoisePool{dir: dir, byRate: map[int][][]float64{}}
}

func (p *NoisePool) load() {
	if p.dir == "" {
		return
	}
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		p.err = fmt.Errorf("read noise dir: %w", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".wav") {
			continue
		}
		clip, _, err := audio.ReadWAV(filepath.Join(p.dir, entry.Name()))
		if err != nil || clip.Len() == 0 {
			continue
		}
		p.names = append(p.names, entry.Name())
		p.clips = append(p.clips, clip)
	}
}

// Len returns the number of usable recordings.
func (p *NoisePool) Len() (int, error) {
	if p == nil {
		return 0, nil
	}
	p.once.Do(p.load)
	return len(p.clips), p.err
}

// Pick returns recording i at rate and its file name.
func (p *NoisePool) Pick(i, rate int) ([]float64, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cached, ok := p.byRate[rate]
	if !ok {
		cached = make([][]float64, len(p.clips))
		p.byRate[rate] = cached
	}
	if cached[i] == nil {
		cached[i] = slices.Clone(audio.ResampleClip(p.clips[i], rate).Samples)
	}
	return cached[i], p.names[i]
}

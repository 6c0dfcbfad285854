package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"audiocorpus/internal/fileutil"
)

// ErrUnsupportedWAV is returned for RIFF files the native decoder cannot
// read (compressed or float encodings, 8-bit PCM). Callers fall back to an
// external decoder.
var ErrUnsupportedWAV = errors.New("unsupported wav encoding")

const wavFormatPCM = 1

// Info describes a decoded source before downmixing.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
}

// Duration returns the source length in seconds.
func (i Info) Duration() float64 {
	if i.SampleRate <= 0 {
		return 0
	}
	return float64(i.Frames) / float64(i.SampleRate)
}

// ReadWAV decodes an integer PCM WAV file and downmixes it to mono.
func ReadWAV(path string) (*Clip, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, err
	}
	defer f.Close()
	return DecodeWAV(f)
}

// DecodeWAV decodes an integer PCM WAV stream and downmixes it to mono.
func DecodeWAV(r io.ReadSeeker) (*Clip, Info, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, Info{}, fmt.Errorf("%w: not a valid wav file", ErrUnsupportedWAV)
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, Info{}, fmt.Errorf("%w: audio format %d", ErrUnsupportedWAV, decoder.WavAudioFormat)
	}
	bitDepth := int(decoder.BitDepth)
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, Info{}, fmt.Errorf("%w: %d-bit pcm", ErrUnsupportedWAV, bitDepth)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, Info{}, fmt.Errorf("read pcm: %w", err)
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, Info{}, fmt.Errorf("%w: no channels", ErrUnsupportedWAV)
	}
	rate := buf.Format.SampleRate
	if rate <= 0 {
		return nil, Info{}, fmt.Errorf("%w: sample rate %d", ErrUnsupportedWAV, rate)
	}

	scale := float64(int64(1) << (bitDepth - 1))
	interleaved := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = float64(v) / scale
	}
	info := Info{
		SampleRate: rate,
		Channels:   channels,
		BitDepth:   bitDepth,
		Frames:     len(buf.Data) / channels,
	}
	return NewClip(Downmix(interleaved, channels), rate), info, nil
}

// WriteWAV encodes c as mono integer PCM at bitDepth (16, 24 or 32).
func WriteWAV(path string, c *Clip, bitDepth int) error {
	if c == nil || c.SampleRate <= 0 {
		return errors.New("write wav: empty clip")
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("write wav: unsupported bit depth %d", bitDepth)
	}
	maxValue := float64(int64(1)<<(bitDepth-1) - 1)
	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		data[i] = int(clamp(s) * maxValue)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	return fileutil.WriteAtomic(path, func(f *os.File) error {
		encoder := wav.NewEncoder(f, c.SampleRate, bitDepth, 1, wavFormatPCM)
		if err := encoder.Write(buf); err != nil {
			return fmt.Errorf("encode wav: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("finalize wav: %w", err)
		}
		return nil
	})
}

// ProbeWAV reads only the header of a WAV file.
func ProbeWAV(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return Info{}, fmt.Errorf("%w: not a valid wav file", ErrUnsupportedWAV)
	}
	duration, err := decoder.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("read wav duration: %w", err)
	}
	info := Info{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
	}
	info.Frames = int(duration.Seconds()*float64(info.SampleRate) + 0.5)
	return info, nil
}

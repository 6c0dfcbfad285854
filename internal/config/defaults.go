package config

const (
	defaultBaseDir       = "~/.local/share/audiocorpus"
	defaultProcessedDir  = "processed"
	defaultStateDir      = "state"
	defaultLogDir        = "logs"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultLogMaxSizeMB  = 50
	defaultLogMaxBackups = 5
	defaultLogMaxAgeDays = 30

	defaultProgressBackend        = "sqlite"
	defaultProgressConnectTimeout = 10

	defaultBlobBackend          = "local"
	defaultBlobRawContainer     = "audios"
	defaultBlobDatasetContainer = "dataset"
	defaultBlobRetryAttempts    = 3
	defaultBlobRetryBackoff     = 2

	defaultPipelineWorkers            = 4
	defaultPipelineFanoutWorkers      = 4
	defaultPipelineMaxSystemic        = 100
	defaultPipelineCredentialCooldown = 300

	defaultTargetSampleRate = 16000
	defaultTargetBits       = 16

	defaultNormalizeMethod    = "ebu"
	defaultTargetLoudness     = -23.0
	defaultLoudnessBlockSize  = 0.4
	defaultPeakCeiling        = 0.99
	defaultLoudnessSilenceFlr = -70.0

	defaultSilenceMethod       = "webrtcvad"
	defaultVADAggressiveness   = 3
	defaultVADFrameMS          = 30
	defaultSilenceMinSilenceMS = 500
	defaultSilenceThresholdDB  = -32.0
	defaultSilenceKeepMS       = 100
	defaultSilenceMinSegment   = 0.5
	defaultSileroThreshold     = 0.5

	defaultDiarizationModel   = "pyannote/speaker-diarization-3.1"
	defaultDiarizationCommand = "pyannote-diarize"
	defaultDiarizationHubURL  = "https://huggingface.co"
	defaultMinSpeakers        = 1
	defaultMaxSpeakers        = 5
	defaultDiarizationTimeout = 1800

	defaultSegmentationMethod = "adaptive"
	defaultTargetLength       = 8.0
	defaultMinSegmentLength   = 2.0
	defaultMaxSegmentLength   = 15.0
	defaultSegmentKeepMS      = 200

	defaultHighpassCutoff         = 80.0
	defaultLowpassCutoff          = 8000.0
	defaultFilterOrder            = 4
	defaultNoiseReductionStrength = 0.8
	defaultQualityThresholdSNR    = 20.0
	defaultCompressionThresholdDB = -20.0
	defaultCompressionRatio       = 4.0

	defaultAugmentationsPerSample = 2
	defaultProbTempo              = 0.5
	defaultProbPitch              = 0.5
	defaultProbNoise              = 0.3
	defaultProbBackground         = 0.5
	defaultProbMasking            = 0.3
	defaultSeed                   = 42

	defaultMinSNR           = 15.0
	defaultMinDuration      = 1.0
	defaultMaxDuration      = 20.0
	defaultRandomSampleSize = 10

	defaultTestRatio    = 0.1
	defaultDevRatio     = 0.1
	defaultExportFormat = "csv"
	defaultSpeakerScope = "file"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BaseDir:      defaultBaseDir,
			ProcessedDir: defaultProcessedDir,
			StateDir:     defaultStateDir,
			LogDir:       defaultLogDir,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			File:       true,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
			Compress:   true,
		},
		Progress: Progress{
			Backend:               defaultProgressBackend,
			ConnectTimeoutSeconds: defaultProgressConnectTimeout,
		},
		Blobstore: Blobstore{
			Backend:             defaultBlobBackend,
			UseSSL:              true,
			RawContainer:        defaultBlobRawContainer,
			DatasetContainer:    defaultBlobDatasetContainer,
			RetryAttempts:       defaultBlobRetryAttempts,
			RetryBackoffSeconds: defaultBlobRetryBackoff,
		},
		Pipeline: Pipeline{
			Workers:                   defaultPipelineWorkers,
			FanoutWorkers:             defaultPipelineFanoutWorkers,
			Extensions:                []string{".wav", ".mp3", ".flac", ".ogg", ".m4a", ".aac"},
			Recursive:                 true,
			MaxSystemicFailures:       defaultPipelineMaxSystemic,
			CredentialCooldownSeconds: defaultPipelineCredentialCooldown,
		},
		Loader: Loader{
			TargetSampleRate: defaultTargetSampleRate,
			TargetBits:       defaultTargetBits,
			FFmpegBinary:     "ffmpeg",
			FFprobeBinary:    "ffprobe",
		},
		Normalizer: Normalizer{
			Method:         defaultNormalizeMethod,
			TargetLoudness: defaultTargetLoudness,
			BlockSize:      defaultLoudnessBlockSize,
			PeakCeiling:    defaultPeakCeiling,
			SilenceFloor:   defaultLoudnessSilenceFlr,
		},
		Silence: Silence{
			Method:             defaultSilenceMethod,
			VADAggressiveness:  defaultVADAggressiveness,
			FrameMS:            defaultVADFrameMS,
			MinSilenceMS:       defaultSilenceMinSilenceMS,
			SilenceThresholdDB: defaultSilenceThresholdDB,
			KeepSilenceMS:      defaultSilenceKeepMS,
			MinSegmentSeconds:  defaultSilenceMinSegment,
			SileroThreshold:    defaultSileroThreshold,
		},
		Diarization: Diarization{
			Enabled:        true,
			Model:          defaultDiarizationModel,
			Command:        []string{defaultDiarizationCommand},
			MinSpeakers:    defaultMinSpeakers,
			MaxSpeakers:    defaultMaxSpeakers,
			Device:         "auto",
			HubURL:         defaultDiarizationHubURL,
			VerifyToken:    true,
			TimeoutSeconds: defaultDiarizationTimeout,
		},
		Segmentation: Segmentation{
			Method:             defaultSegmentationMethod,
			TargetLength:       defaultTargetLength,
			MinSegmentLength:   defaultMinSegmentLength,
			MaxSegmentLength:   defaultMaxSegmentLength,
			SilenceThresholdDB: defaultSilenceThresholdDB,
			MinSilenceMS:       defaultSilenceMinSilenceMS,
			KeepSilenceMS:      defaultSegmentKeepMS,
		},
		Cleaner: Cleaner{
			HighpassCutoff:         defaultHighpassCutoff,
			LowpassCutoff:          defaultLowpassCutoff,
			FilterOrder:            defaultFilterOrder,
			NoiseReduction:         true,
			NoiseStationary:        true,
			NoiseReductionStrength: defaultNoiseReductionStrength,
			QualityThresholdSNR:    defaultQualityThresholdSNR,
			CompressionThresholdDB: defaultCompressionThresholdDB,
			CompressionRatio:       defaultCompressionRatio,
		},
		Augmentation: Augmentation{
			Enabled:                 true,
			NAugmentationsPerSample: defaultAugmentationsPerSample,
			ProbTempo:               defaultProbTempo,
			ProbPitch:               defaultProbPitch,
			ProbNoise:               defaultProbNoise,
			ProbBackground:          defaultProbBackground,
			ProbMasking:             defaultProbMasking,
			TempoRange:              []float64{0.9, 1.1},
			PitchRange:              []int{-2, 2},
			NoiseLevelRange:         []float64{0.001, 0.01},
			BackgroundSNRRange:      []float64{10, 20},
			Seed:                    defaultSeed,
		},
		Quality: Quality{
			MinSNR:           defaultMinSNR,
			MinDuration:      defaultMinDuration,
			MaxDuration:      defaultMaxDuration,
			RandomSampleSize: defaultRandomSampleSize,
			Seed:             defaultSeed,
		},
		Metadata: Metadata{
			TestRatio:    defaultTestRatio,
			DevRatio:     defaultDevRatio,
			Seed:         defaultSeed,
			Format:       defaultExportFormat,
			SpeakerScope: defaultSpeakerScope,
		},
	}
}

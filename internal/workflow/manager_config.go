package workflow

import (
	"slices"

	"audiocorpus/internal/config"
	"audiocorpus/internal/stage"
)

// StageSet bundles the concrete handlers the manager orchestrates. Nil
// handlers are not run.
type StageSet struct {
	Loader         stage.Handler
	Normalizer     stage.Handler
	SilenceRemover stage.Handler
	Diarizer       stage.Handler
	Segmenter      stage.Handler
	Cleaner        stage.Handler
	Augmenter      stage.Handler
	QualityChecker stage.Handler
}

type pipelineStage struct {
	name    string
	handler stage.Handler
	// branch stages record their outputs without replacing the working set.
	branch bool
}

// Stage names used by skip and only lists.
const (
	StageLoading        = "loading"
	StageNormalization  = "normalization"
	StageSilenceRemoval = "silence_removal"
	StageDiarization    = "diarization"
	StageSegmentation   = "segmentation"
	StageCleaning       = "cleaning"
	StageMetadata       = "metadata"
	StageAugmentation   = "augmentation"
	StageQualityCheck   = "quality_check"
)

// ConfigureStages registers handlers in pipeline order, dropping any stage
// excluded by pipeline.skip_stages or pipeline.only_stages.
func (m *Manager) ConfigureStages(set StageSet) {
	ordered := []pipelineStage{
		{name: StageLoading, handler: set.Loader},
		{name: StageNormalization, handler: set.Normalizer},
		{name: StageSilenceRemoval, handler: set.SilenceRemover},
		{name: StageDiarization, handler: set.Diarizer},
		{name: StageSegmentation, handler: set.Segmenter},
		{name: StageCleaning, handler: set.Cleaner},
		{name: StageAugmentation, handler: set.Augmenter, branch: true},
		{name: StageQualityCheck, handler: set.QualityChecker},
	}
	stages := make([]pipelineStage, 0, len(ordered))
	for _, stg := range ordered {
		if stg.handler == nil || !m.Enabled(stg.name) {
			continue
		}
		stages = append(stages, stg)
	}
	m.stages = stages
}

// Enabled reports whether the named stage runs under the configured skip
// and only lists.
func (m *Manager) Enabled(name string) bool {
	return stageEnabled(m.cfg.Pipeline, name)
}

// PlannedStages lists, in run order, the stages p leaves enabled. Metadata
// export comes last since it runs once per batch.
func PlannedStages(p config.Pipeline) []string {
	order := []string{
		StageLoading, StageNormalization, StageSilenceRemoval, StageDiarization,
		StageSegmentation, StageCleaning, StageAugmentation, StageQualityCheck, StageMetadata,
	}
	return slices.DeleteFunc(order, func(name string) bool { return !stageEnabled(p, name) })
}

func stageEnabled(p config.Pipeline, name string) bool {
	if len(p.OnlyStages) > 0 {
		return slices.Contains(p.OnlyStages, name)
	}
	return !slices.Contains(p.SkipStages, name)
}

// StageNames returns the names of the registered stages in run order.
func (m *Manager) StageNames() []string {
	names := make([]string, 0, len(m.stages))
	for _, stg := range m.stages {
		names = append(names, stg.name)
	}
	return names
}

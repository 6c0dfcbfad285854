package metadata

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"audiocorpus/internal/config"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/services"
)

const stageName = "metadata"

// Manager exports the corpus tables.
type Manager struct {
	cfg         config.Metadata
	outDir      string
	searchDir   []string
	fallbackDir string
	logger      *slog.Logger
	now         func() time.Time
}

// New constructs a Manager writing into the metadata directory of cfg.
func New(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg.Metadata,
		outDir: cfg.OutputDir(config.DirMetadata),
		searchDir: []string{
			cfg.OutputDir(config.DirFinal),
			cfg.OutputDir(config.DirCleaned),
			cfg.OutputDir(config.DirSegmented),
			cfg.OutputDir(config.DirDiarized),
		},
		fallbackDir: cfg.OutputDir(config.DirSegmented),
		logger:      logging.NewComponentLogger(logger, stageName),
		now:         time.Now,
	}
}

// Name returns the stage name used by skip and only lists.
func (m *Manager) Name() string { return stageName }

// Result describes one export.
type Result struct {
	Paths   map[string]string
	Rows    []Row
	Splits  map[string][]Row
	Summary []SplitSummary
}

// TablePath returns the path of the named table ("all" or a split).
func (m *Manager) TablePath(name string) string {
	return filepath.Join(m.outDir, "metadata_"+name+"."+m.cfg.Format)
}

// Build collects, enriches and splits every segment in the store without
// writing anything.
func (m *Manager) Build(ctx context.Context, store progress.Store) (Result, error) {
	records, err := store.List(ctx)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, stageName, "list records", "", err)
	}
	rows := collect(records, collectOptions{
		scope:        m.cfg.SpeakerScope,
		exportedOnly: m.cfg.ExportedOnly,
		date:         m.now().Format("2006-01-02"),
		locate:       m.locate,
	})
	speakers := make([]string, 0, len(rows))
	for _, row := range rows {
		speakers = append(speakers, row.SpeakerID)
	}
	assignment := Assign(speakers, m.cfg.TestRatio, m.cfg.DevRatio, m.cfg.Seed)
	splits := Partition(rows, assignment)
	all := make([]Row, 0, len(rows))
	for _, name := range SplitNames {
		sortRows(splits[name])
		all = append(all, splits[name]...)
	}
	return Result{Rows: all, Splits: splits, Summary: Summarize(splits)}, nil
}

// Export builds the tables, writes metadata_all and one file per split, and
// marks every contributing record metadata_tagged. An empty corpus writes
// nothing.
func (m *Manager) Export(ctx context.Context, store progress.Store) (Result, error) {
	res, err := m.Build(ctx, store)
	if err != nil {
		return Result{}, err
	}
	if len(res.Rows) == 0 {
		m.logger.Warn("no segments to export",
			logging.String(logging.FieldEventType, "metadata_empty"),
			logging.String(logging.FieldImpact, "metadata tables not written"),
		)
		return res, nil
	}
	if err := os.MkdirAll(m.outDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, stageName, "create output dir", m.outDir, err)
	}

	res.Paths = map[string]string{"all": m.TablePath("all")}
	if err := WriteTable(res.Paths["all"], res.Rows, m.cfg.Format); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, stageName, "write table", "all", err)
	}
	for _, name := range SplitNames {
		path := m.TablePath(name)
		if err := WriteTable(path, res.Splits[name], m.cfg.Format); err != nil {
			return Result{}, services.Wrap(services.ErrTransient, stageName, "write table", name, err)
		}
		res.Paths[name] = path
	}

	m.tagRecords(ctx, store, res)
	for _, s := range res.Summary {
		m.logger.Info("split exported",
			logging.String("split", s.Name),
			logging.Int("n_segments", s.Segments),
			logging.Int("n_speakers", s.Speakers),
			logging.Float64("total_duration", s.TotalDuration),
		)
	}
	return res, nil
}

func (m *Manager) tagRecords(ctx context.Context, store progress.Store, res Result) {
	type counts struct {
		total  int
		splits map[string]int
	}
	var order []string
	perRecord := map[string]*counts{}
	for _, row := range res.Rows {
		c, ok := perRecord[row.RecordID]
		if !ok {
			c = &counts{splits: map[string]int{SplitTrain: 0, SplitDev: 0, SplitTest: 0}}
			perRecord[row.RecordID] = c
			order = append(order, row.RecordID)
		}
		c.total++
		c.splits[row.Split]++
	}
	paths := make(map[string]any, len(res.Paths))
	for k, v := range res.Paths {
		paths[k] = v
	}
	for _, id := range order {
		c := perRecord[id]
		err := store.UpdateStage(ctx, id, progress.StageMetadataTagged, true, map[string]any{
			"export_paths": paths,
			"n_segments":   c.total,
			"splits": map[string]any{
				SplitTrain: c.splits[SplitTrain],
				SplitDev:   c.splits[SplitDev],
				SplitTest:  c.splits[SplitTest],
			},
		})
		if err != nil {
			logging.ErrorWithContext(logging.WithContext(services.WithRecordID(ctx, id), m.logger),
				"failed to tag record", "store_failure", logging.FailureAttrs(err)...)
		}
	}
}

func (m *Manager) locate(file string) string {
	for _, dir := range m.searchDir {
		path := filepath.Join(dir, file)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(m.fallbackDir, file)
}

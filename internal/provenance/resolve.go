package provenance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"audiocorpus/internal/logging"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/stage"
)

// Resolve finds the owner of path. The lookup order is the index, the
// record keyed by the basename, the record holding a segment with this
// basename, and finally the stem heuristic. A miss returns
// progress.ErrOwningRecordNotFound.
func Resolve(ctx context.Context, store progress.Store, index *Index, path string, logger *slog.Logger) (Owner, error) {
	name := basename(path)
	if name == "" {
		return Owner{}, fmt.Errorf("%w: empty file name", progress.ErrOwningRecordNotFound)
	}
	if owner, ok := index.Lookup(name); ok {
		return owner, nil
	}
	if store == nil {
		return Owner{}, fmt.Errorf("%w: %s", progress.ErrOwningRecordNotFound, name)
	}

	rec, err := store.FindByFileName(ctx, name)
	if err != nil {
		return Owner{}, fmt.Errorf("lookup record %s: %w", name, err)
	}
	if rec != nil {
		owner := Owner{RecordID: rec.ID, SourceFile: rec.File}
		index.Register(name, owner)
		return owner, nil
	}

	rec, err = store.FindBySegmentFile(ctx, name)
	if err != nil {
		return Owner{}, fmt.Errorf("lookup segment %s: %w", name, err)
	}
	if rec != nil {
		owner := Owner{RecordID: rec.ID, SourceFile: rec.File}
		for _, seg := range rec.Segments {
			if seg.File == name {
				owner.SpeakerID = seg.SpeakerID
				break
			}
		}
		index.Register(name, owner)
		return owner, nil
	}

	owner, ok, err := resolveByStem(ctx, store, name)
	if err != nil {
		return Owner{}, err
	}
	if !ok {
		return Owner{}, fmt.Errorf("%w: %s", progress.ErrOwningRecordNotFound, name)
	}
	logging.NewComponentLogger(logger, "provenance").Warn("owner resolved from file name",
		logging.String(logging.FieldEventType, "provenance_heuristic"),
		logging.String(logging.FieldFile, name),
		logging.String(logging.FieldRecordID, owner.RecordID),
		logging.String("source_file", owner.SourceFile),
		logging.String(logging.FieldImpact, "attribution may be wrong for ambiguous file names"),
	)
	index.Register(name, owner)
	return owner, nil
}

// resolveByStem tries every "_"-separated prefix of the file stem, longest
// first, against the stems of existing records.
func resolveByStem(ctx context.Context, store progress.Store, name string) (Owner, bool, error) {
	candidates := StemCandidates(name)
	if len(candidates) == 0 {
		return Owner{}, false, nil
	}
	records, err := store.List(ctx)
	if err != nil {
		return Owner{}, false, fmt.Errorf("list records: %w", err)
	}
	byStem := make(map[string]progress.Record, len(records))
	for _, rec := range records {
		stem := Stem(rec.File)
		if _, taken := byStem[stem]; !taken {
			byStem[stem] = rec
		}
	}
	for _, candidate := range candidates {
		if rec, ok := byStem[candidate]; ok {
			return Owner{RecordID: rec.ID, SourceFile: rec.File, SpeakerID: speakerFromName(Stem(name), candidate)}, true, nil
		}
	}
	return Owner{}, false, nil
}

// Stem returns the derived-artifact stem of file, matching stage.Stem.
func Stem(file string) string {
	name := basename(file)
	if name == "" {
		return ""
	}
	return stage.Stem(name)
}

// StemCandidates lists the stem of name followed by each shorter prefix that
// ends before an underscore, for example "talk_speaker_2_seg004" yields
// talk_speaker_2_seg004, talk_speaker_2, talk_speaker, talk.
func StemCandidates(name string) []string {
	stem := Stem(name)
	if stem == "" {
		return nil
	}
	candidates := []string{stem}
	for idx := strings.LastIndex(stem, "_"); idx > 0; idx = strings.LastIndex(stem, "_") {
		stem = stem[:idx]
		candidates = append(candidates, stem)
	}
	return candidates
}

// speakerFromName extracts the label following "_speaker_" after the
// matched record stem, stopping at a segment or augmentation marker.
func speakerFromName(stem, recordStem string) string {
	rest := strings.TrimPrefix(stem, recordStem)
	_, label, ok := strings.Cut(rest, "_speaker_")
	if !ok {
		return ""
	}
	for _, marker := range []string{"_seg", "_aug"} {
		if idx := strings.Index(label, marker); idx >= 0 {
			label = label[:idx]
		}
	}
	return label
}

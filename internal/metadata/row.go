package metadata

import (
	"cmp"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"audiocorpus/internal/progress"
	"audiocorpus/internal/stage"
)

// Speaker scopes.
const (
	ScopeFile   = "file"
	ScopeGlobal = "global"
)

// Row is one exported segment.
type Row struct {
	SegmentFile      string   `parquet:"segment_file"`
	SegmentPath      string   `parquet:"segment_path"`
	OriginalFile     string   `parquet:"original_file"`
	RecordID         string   `parquet:"record_id"`
	SpeakerID        string   `parquet:"speaker_id"`
	SpeakerLabel     string   `parquet:"speaker_label"`
	StartTime        float64  `parquet:"start_time"`
	EndTime          float64  `parquet:"end_time"`
	Duration         float64  `parquet:"duration"`
	SegmentType      string   `parquet:"segment_type"`
	SegmentMethod    string   `parquet:"segment_method"`
	SNR              *float64 `parquet:"snr,optional"`
	RMSDB            *float64 `parquet:"rms_db,optional"`
	LoudnessLUFS     *float64 `parquet:"loudness_lufs,optional"`
	IsValid          *bool    `parquet:"is_valid,optional"`
	RejectionReasons string   `parquet:"rejection_reasons"`
	Exported         bool     `parquet:"exported"`
	ContentType      string   `parquet:"content_type"`
	MetadataDate     string   `parquet:"metadata_date"`
	Split            string   `parquet:"split"`
}

// Columns is the CSV header, in the order of Row.Record.
var Columns = []string{
	"segment_file", "segment_path", "original_file", "record_id",
	"speaker_id", "speaker_label", "start_time", "end_time", "duration",
	"segment_type", "segment_method", "snr", "rms_db", "loudness_lufs",
	"is_valid", "rejection_reasons", "exported", "content_type",
	"metadata_date", "split",
}

// Record renders the row as CSV fields.
func (r Row) Record() []string {
	return []string{
		r.SegmentFile, r.SegmentPath, r.OriginalFile, r.RecordID,
		r.SpeakerID, r.SpeakerLabel, formatFloat(r.StartTime), formatFloat(r.EndTime), formatFloat(r.Duration),
		r.SegmentType, r.SegmentMethod, formatOptional(r.SNR), formatOptional(r.RMSDB), formatOptional(r.LoudnessLUFS),
		formatOptionalBool(r.IsValid), r.RejectionReasons, strconv.FormatBool(r.Exported), r.ContentType,
		r.MetadataDate, r.Split,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatOptionalBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

// ContentType guesses the kind of recording from its file name.
func ContentType(file string) string {
	name := strings.ToLower(filepath.Base(file))
	switch {
	case strings.Contains(name, "music"):
		return "music"
	case strings.Contains(name, "speech"):
		return "speech"
	case strings.Contains(name, "interview"):
		return "interview"
	default:
		return "unknown"
	}
}

// SpeakerKey returns the speaker identity used for splitting. With file
// scope, diarization labels are local to their source file.
func SpeakerKey(scope, sourceFile, label string) string {
	if label == "" {
		label = "unknown"
	}
	if scope == ScopeGlobal {
		return label
	}
	return stage.Stem(sourceFile) + "#" + label
}

// collectOptions controls row collection.
type collectOptions struct {
	scope        string
	exportedOnly bool
	date         string
	locate       func(file string) string
}

// collect builds one row per leaf segment of every record. A segment whose
// file was split further by a later stage is omitted in favour of its
// children. Reruns append the same files again; only the latest entry for a
// file is kept.
func collect(records []progress.Record, opts collectOptions) []Row {
	var rows []Row
	for _, rec := range records {
		parents := map[string]bool{}
		for _, seg := range rec.Segments {
			if parent, ok := seg.Metadata["original_file"].(string); ok {
				parents[filepath.Base(parent)] = true
			}
		}
		cleaned := indexItems(rec.Detail(progress.StageCleaned), cleanedKey)
		checked := indexItems(rec.Detail(progress.StageQualityChecked), checkedKey)
		exported := exportedFiles(rec.Detail(progress.StageExported))
		latest := make(map[string]int, len(rec.Segments))
		for i, seg := range rec.Segments {
			latest[seg.File] = i
		}

		for i, seg := range rec.Segments {
			if parents[seg.File] || latest[seg.File] != i {
				continue
			}
			isExported := exported[seg.File]
			if opts.exportedOnly && !isExported {
				continue
			}
			row := Row{
				SegmentFile:  seg.File,
				OriginalFile: rec.File,
				RecordID:     rec.ID,
				SpeakerID:    SpeakerKey(opts.scope, rec.File, seg.SpeakerID),
				SpeakerLabel: cmp.Or(seg.SpeakerID, "unknown"),
				StartTime:    seg.StartTime,
				EndTime:      seg.EndTime,
				Duration:     seg.Duration,
				Exported:     isExported,
				ContentType:  ContentType(rec.File),
				MetadataDate: opts.date,
			}
			row.SegmentType, _ = seg.Metadata["type"].(string)
			row.SegmentMethod, _ = seg.Metadata["method"].(string)
			if opts.locate != nil {
				row.SegmentPath = opts.locate(seg.File)
			}
			if item, ok := cleaned[seg.File]; ok {
				if after, ok := item["after"].(map[string]any); ok {
					row.SNR = floatField(after, "snr")
					row.RMSDB = floatField(after, "rms_db")
					row.LoudnessLUFS = floatField(after, "loudness_lufs")
				}
			}
			if item, ok := checked[seg.File]; ok {
				if valid, ok := item["is_valid"].(bool); ok {
					row.IsValid = &valid
				}
				if metrics, ok := item["metrics"].(map[string]any); ok {
					row.RejectionReasons = strings.Join(stringsField(metrics["rejection_reasons"]), ";")
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// sortRows orders rows by speaker, then by descending duration.
func sortRows(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		if c := strings.Compare(a.SpeakerID, b.SpeakerID); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Duration, a.Duration); c != 0 {
			return c
		}
		return strings.Compare(a.SegmentFile, b.SegmentFile)
	})
}

// indexItems maps each job's file to its details. Multi-job stage details
// carry an items list; a single job's details are the document itself.
func indexItems(details map[string]any, key func(map[string]any) string) map[string]map[string]any {
	out := map[string]map[string]any{}
	if details == nil {
		return out
	}
	items, ok := details["items"].([]any)
	if !ok {
		if k := key(details); k != "" {
			out[k] = details
		}
		return out
	}
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if k := key(item); k != "" {
			out[k] = item
		}
	}
	return out
}

func cleanedKey(item map[string]any) string {
	if path, ok := item["output_path"].(string); ok && path != "" {
		return filepath.Base(path)
	}
	input, _ := item["input"].(string)
	return input
}

func checkedKey(item map[string]any) string {
	if verdict, ok := item["verdict"].(map[string]any); ok {
		if file, ok := verdict["file"].(string); ok && file != "" {
			return file
		}
	}
	input, _ := item["input"].(string)
	return input
}

func exportedFiles(details map[string]any) map[string]bool {
	out := map[string]bool{}
	for _, file := range stringsField(details["files"]) {
		out[filepath.Base(file)] = true
	}
	return out
}

func floatField(doc map[string]any, key string) *float64 {
	switch v := doc[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	default:
		return nil
	}
}

func stringsField(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

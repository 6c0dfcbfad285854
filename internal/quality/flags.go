package quality

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Flags maps segment basenames to an external is_problematic marker.
type Flags map[string]bool

// Problematic reports whether file is flagged.
func (f Flags) Problematic(file string) bool {
	return f[filepath.Base(file)]
}

type flagRow struct {
	SegmentFile   string `parquet:"segment_file"`
	IsProblematic bool   `parquet:"is_problematic"`
}

// LoadFlags reads segment_file and is_problematic columns from a CSV or
// Parquet table. A missing file or a table without both columns yields no
// flags.
func LoadFlags(path string) (Flags, error) {
	if strings.TrimSpace(path) == "" {
		return Flags{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Flags{}, nil
		}
		return nil, fmt.Errorf("stat flags file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return loadParquetFlags(path)
	}
	return loadCSVFlags(path)
}

func loadParquetFlags(path string) (Flags, error) {
	rows, err := parquet.ReadFile[flagRow](path)
	if err != nil {
		return nil, fmt.Errorf("read flags %s: %w", filepath.Base(path), err)
	}
	flags := Flags{}
	for _, row := range rows {
		if row.IsProblematic && row.SegmentFile != "" {
			flags[filepath.Base(row.SegmentFile)] = true
		}
	}
	return flags, nil
}

func loadCSVFlags(path string) (Flags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open flags file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Flags{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read flags header: %w", err)
	}
	fileCol := slices.Index(header, "segment_file")
	flagCol := slices.Index(header, "is_problematic")
	if fileCol < 0 || flagCol < 0 {
		return Flags{}, nil
	}

	flags := Flags{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read flags row: %w", err)
		}
		if fileCol >= len(row) || flagCol >= len(row) {
			continue
		}
		if truthy(row[flagCol]) {
			flags[filepath.Base(row[fileCol])] = true
		}
	}
	return flags, nil
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "t":
		return true
	default:
		return false
	}
}

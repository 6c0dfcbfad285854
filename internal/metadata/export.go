package metadata

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"audiocorpus/internal/fileutil"
)

// Export formats.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// WriteTable writes rows to path in format, replacing any previous file
// atomically.
func WriteTable(path string, rows []Row, format string) error {
	switch format {
	case FormatCSV:
		return fileutil.WriteAtomic(path, func(f *os.File) error {
			w := csv.NewWriter(f)
			if err := w.Write(Columns); err != nil {
				return err
			}
			for _, row := range rows {
				if err := w.Write(row.Record()); err != nil {
					return err
				}
			}
			w.Flush()
			return w.Error()
		})
	case FormatParquet:
		return fileutil.WriteAtomic(path, func(f *os.File) error {
			return parquet.Write(f, rows)
		})
	default:
		return fmt.Errorf("unsupported metadata format %q", format)
	}
}

// ReadParquet loads a table written by WriteTable in Parquet format.
func ReadParquet(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

package workflow

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
)

// Discover lists audio files under root whose extension is in exts, sorted
// by path. Subdirectories are walked only when recursive is set. A positive
// limit caps the result. Files that would share a record key or derived
// artifact names are a configuration error.
func Discover(root string, exts []string, recursive bool, limit int) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "open input", root, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "open input", root+" is not a directory", nil)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	slices.Sort(files)
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	if err := checkCollisions(files); err != nil {
		return nil, err
	}
	return files, nil
}

// checkCollisions rejects files with the same basename, since records are
// keyed by it, and files whose derived stems differ only in case.
func checkCollisions(files []string) error {
	names := make(map[string]string, len(files))
	stems := make(map[string]string, len(files))
	var clashes []string
	for _, path := range files {
		name := filepath.Base(path)
		if prev, ok := names[name]; ok {
			clashes = append(clashes, prev+" and "+path+" share the name "+name)
			continue
		}
		names[name] = path
		stem := strings.ToLower(stage.Stem(path))
		if prev, ok := stems[stem]; ok {
			clashes = append(clashes, prev+" and "+path+" derive the same artifact names")
			continue
		}
		stems[stem] = path
	}
	if len(clashes) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "workflow", "discover inputs", strings.Join(clashes, "; "), nil)
}

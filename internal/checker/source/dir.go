package source

import (
	"io/fs"
	"os"
	"path/filepath"

	"solcheck/internal/checker/model"
	appErr "solcheck/pkg/errors"
)

// LoadDir reads every regular file under dir. Hidden directories such as
// .git are skipped.
func LoadDir(dir string, maxBytes int64) (model.SourceFileSet, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxArchiveBytes
	}
	files := make(model.SourceFileSet)
	var total int64
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && len(d.Name()) > 1 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		total += int64(len(data))
		if total > maxBytes {
			return appErr.New(appErr.SourceTooLarge).WithMessagef("source directory holds more than %d bytes", maxBytes)
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

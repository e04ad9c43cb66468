// Package fsutil holds the file tree helpers shared by the workflow loader and
// the runners that move project trees around.
package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// FindFiles walks root and returns the sorted paths of all regular files whose
// name ends with one of exts. Hidden directories such as .git are not entered.
func FindFiles(root string, exts ...string) ([]string, error) {
	if len(exts) == 0 {
		return nil, errors.New("at least one file extension is required")
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		for _, ext := range exts {
			if strings.HasSuffix(d.Name(), ext) {
				files = append(files, p)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

package backup

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DirSize counts the regular files below root and their total size. A
// missing root is empty.
func DirSize(root string) (files int64, size int64, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root && errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size, err
}

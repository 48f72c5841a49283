package delivery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/mholt/archiver"
)

// IsArchive returns true if the file is a zip archive
func IsArchive(file string) bool {
	return strings.EqualFold(filepath.Ext(file), "."+string(service.ExtensionZIP))
}

// Unarchive extracts the archive into dstDir, removes it and returns the extracted files.
// The archive is extracted in a temporary directory and its content moved in dstDir.
// All errors are temporary.
func Unarchive(archive, dstDir string) ([]string, error) {
	tmpdir, err := os.MkdirTemp(dstDir, "."+filepath.Base(archive))
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("Unarchive.MkdirTemp: %w", err))
	}
	defer os.RemoveAll(tmpdir)
	if err := archiver.Unarchive(archive, tmpdir); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("Unarchive[%s]: %w", archive, err))
	}
	var files []string
	err = filepath.Walk(tmpdir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(tmpdir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := os.Rename(path, dst); err != nil {
			return err
		}
		files = append(files, dst)
		return nil
	})
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("Unarchive.Walk: %w", err))
	}
	if len(files) == 0 {
		return nil, service.MakeTemporary(fmt.Errorf("Unarchive[%s]: empty archive", archive))
	}
	os.Remove(archive)
	return files, nil
}

// UnarchiveAll extracts the archives found in files and returns the resulting list of files
func UnarchiveAll(files []string, dstDir string) ([]string, error) {
	var res []string
	for _, f := range files {
		if !IsArchive(f) {
			res = append(res, f)
			continue
		}
		extracted, err := Unarchive(f, dstDir)
		if err != nil {
			return nil, err
		}
		res = append(res, extracted...)
	}
	return res, nil
}

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/menta2k/document-verifier/pkg/processing"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// ReportFilename returns the path of the report written for an input image.
// Inputs under inputRoot keep their relative path, including the source
// extension, so id.png, id.jpg and a/id.png get distinct reports. An empty
// inputRoot uses the base name only.
func ReportFilename(inputFile, inputRoot, outputDir, format string) string {
	name := filepath.Base(inputFile)
	if inputRoot != "" {
		if rel, err := filepath.Rel(inputRoot, inputFile); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			name = rel
		}
	}

	ext := "txt"
	if format == "json" {
		ext = "json"
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s.report.%s", name, ext))
}

// ListImageFiles recursively lists all supported document images in a directory, sorted by path
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && processing.IsSupportedFile(path) {
			files = append(files, path)
		}

		return nil
	})

	sort.Strings(files)
	return files, err
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// Package loader reads knowledge-base documents from disk.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/document"
)

// supportedExtensions maps lowercase file extensions to acceptance.
var supportedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// File is one loaded document: its path and UTF-8 content.
type File struct {
	Path    string
	Content string
}

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Load reads a single file. Unsupported extensions yield ErrUnsupportedFormat.
func Load(path string) (File, error) {
	if !Supported(path) {
		return File{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > document.MaxContentSize {
		return File{}, fmt.Errorf("%s exceeds max document size of %d bytes", path, document.MaxContentSize)
	}
	return File{Path: path, Content: string(data)}, nil
}

// Gather walks root and returns the paths of all loadable files in
// lexicographic order. Hidden directories are skipped.
func Gather(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

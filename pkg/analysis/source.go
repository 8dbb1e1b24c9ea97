package analysis

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source supplies file contents to the parser. Committed files on disk and
// speculative working-copy buffers are both served through this interface,
// so a package parsed from either is indistinguishable to later phases.
type Source interface {
	// ReadFile returns the content of the file at the absolute path.
	ReadFile(path string) ([]byte, error)
	// GoFiles lists the absolute paths of the .go files directly inside dir.
	GoFiles(dir string) ([]string, error)
}

// DiskSource reads committed files from the filesystem.
type DiskSource struct{}

func (DiskSource) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (DiskSource) GoFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".go") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

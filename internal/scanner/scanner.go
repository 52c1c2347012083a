package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/parser"
)

// Scanner walks a statements tree and finds statement files
type Scanner struct {
	rootDir string
}

// New creates a new scanner for the given root directory
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// ScanResult represents a found file with metadata
type ScanResult struct {
	Path     string
	Metadata *parser.Metadata
}

// Scan walks the directory tree and returns statement files sorted by path.
// A root that is itself a file yields that single file.
func (s *Scanner) Scan() ([]ScanResult, error) {
	rootDir := expandHome(s.rootDir)

	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if !info.IsDir() {
		meta, err := parser.NewMetadata(rootDir, time.Now())
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		return []ScanResult{{Path: rootDir, Metadata: meta}}, nil
	}

	var results []ScanResult
	err = filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isStatementFile(path) {
			return nil
		}

		meta, err := extractMetadata(path, rootDir)
		if err != nil {
			return err
		}
		results = append(results, ScanResult{Path: path, Metadata: meta})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// isStatementFile checks if file is a known statement format
func isStatementFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx", ".csv":
		return true
	}
	return false
}

// extractMetadata parses the directory layout
// {root}/{client}/{account}/[{period}/]file.ext
func extractMetadata(filePath, rootDir string) (*parser.Metadata, error) {
	meta, err := parser.NewMetadata(filePath, time.Now())
	if err != nil {
		return nil, err
	}

	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		return meta, nil
	}
	parts := strings.Split(filepath.ToSlash(relPath), "/")

	if len(parts) >= 2 {
		meta.SetClient(parts[0])
	}
	if len(parts) >= 3 {
		meta.SetAccount(parts[1])
	}
	if len(parts) >= 4 && looksLikePeriod(parts[2]) {
		meta.SetPeriod(parts[2])
	}
	return meta, nil
}

// looksLikePeriod checks for a YYYY-MM directory name
func looksLikePeriod(str string) bool {
	_, err := time.Parse("2006-01", str)
	return err == nil
}

// expandHome expands ~ to home directory
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

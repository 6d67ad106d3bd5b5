package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// QueryFile is one SQL file with its frontmatter split off.
type QueryFile struct {
	// Name is the query name: frontmatter name, else the path relative to
	// the scan root with separators replaced by dots ("staging.orders").
	Name string
	// FilePath is the path the file was read from
	FilePath string
	// SQL is the query text without frontmatter
	SQL string
	// Frontmatter is never nil; it is empty when the file has none
	Frontmatter *Frontmatter
	// Hash is a short content hash used to detect changes
	Hash string
}

// Scanner loads SQL files below a base directory.
type Scanner struct {
	BaseDir string
}

// NewScanner creates a scanner rooted at baseDir.
func NewScanner(baseDir string) *Scanner {
	return &Scanner{BaseDir: baseDir}
}

// LoadFile reads and splits a single SQL file.
func (s *Scanner) LoadFile(path string) (*QueryFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return s.ParseContent(path, string(content))
}

// ParseContent splits already-read content.
func (s *Scanner) ParseContent(path, content string) (*QueryFile, error) {
	fm, err := ExtractFrontmatter(content)
	if err != nil {
		var pe *FrontmatterParseError
		var ue *UnknownFieldError
		switch {
		case errors.As(err, &pe):
			pe.File = path
		case errors.As(err, &ue):
			ue.File = path
		}
		return nil, err
	}

	fm.Config.ApplyDefaults(s.queryName(path))

	return &QueryFile{
		Name:        fm.Config.Name,
		FilePath:    path,
		SQL:         fm.SQL,
		Frontmatter: fm.Config,
		Hash:        ContentHash(content),
	}, nil
}

// ScanDir recursively loads every .sql file under dir, skipping hidden
// files and directories. Files are returned sorted by path.
func (s *Scanner) ScanDir(dir string) ([]*QueryFile, error) {
	var paths []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".sql") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	sort.Strings(paths)

	files := make([]*QueryFile, 0, len(paths))
	for _, path := range paths {
		f, err := s.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// queryName converts a file path to a dotted query name relative to the
// base directory.
func (s *Scanner) queryName(path string) string {
	rel := path
	if s.BaseDir != "" {
		if r, err := filepath.Rel(s.BaseDir, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), ".sql")
	if s.BaseDir == "" {
		rel = filepath.Base(rel)
	}
	return strings.ReplaceAll(rel, "/", ".")
}

// ContentHash returns a short hash of content.
func ContentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:8])
}

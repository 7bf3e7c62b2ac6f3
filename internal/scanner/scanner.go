package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrOversize is returned by HashFile for files above the size ceiling.
var ErrOversize = errors.New("file exceeds size limit")

// Rules decides which repository paths are eligible for indexing.
// Paths are repository-relative with forward slashes.
type Rules struct {
	// Extensions is the set of indexable file extensions, lowercase with
	// leading dot.
	Extensions map[string]struct{}

	// ExcludeDirs are directory names skipped anywhere in the tree.
	ExcludeDirs map[string]struct{}

	// DataDirRel is the repository-relative path of the service's own data
	// directory, excluded to avoid feedback loops. Empty if outside the root.
	DataDirRel string

	// MaxFileBytes is the per-file size ceiling. Zero means no limit.
	MaxFileBytes int64
}

// NewRules builds Rules from configured extension and exclusion lists.
func NewRules(extensions, excludeDirs []string, dataDirRel string, maxFileBytes int64) Rules {
	r := Rules{
		Extensions:   make(map[string]struct{}, len(extensions)),
		ExcludeDirs:  make(map[string]struct{}, len(excludeDirs)),
		DataDirRel:   filepath.ToSlash(dataDirRel),
		MaxFileBytes: maxFileBytes,
	}
	for _, ext := range extensions {
		r.Extensions[strings.ToLower(ext)] = struct{}{}
	}
	for _, dir := range excludeDirs {
		r.ExcludeDirs[dir] = struct{}{}
	}
	return r
}

// Match reports whether a repository-relative path should be indexed
// (isDir false) or descended into (isDir true).
func (r Rules) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return isDir
	}
	if r.DataDirRel != "" && (rel == r.DataDirRel || strings.HasPrefix(rel, r.DataDirRel+"/")) {
		return false
	}

	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return false
		}
		if _, excluded := r.ExcludeDirs[seg]; excluded {
			return false
		}
	}

	if isDir {
		return true
	}
	_, ok := r.Extensions[strings.ToLower(filepath.Ext(rel))]
	return ok
}

// Result holds the outcome of a full tree scan.
type Result struct {
	// Hashes maps repository-relative path to hex content hash.
	Hashes map[string]string

	// Oversize lists eligible files skipped for exceeding the size ceiling.
	Oversize []string

	// Failed lists files that could not be read.
	Failed []string
}

// Scanner walks a repository root and hashes every indexable file.
type Scanner struct {
	root   string
	rules  Rules
	logger *zap.Logger
}

// New creates a Scanner for the given root.
func New(root string, rules Rules, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{root: root, rules: rules, logger: logger}
}

// Rules returns the scanner's path rules.
func (s *Scanner) Rules() Rules {
	return s.rules
}

// Root returns the repository root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the tree and returns content hashes for all indexable files.
// Unreadable files are recorded in Result.Failed and logged; they never
// abort the walk.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	result := &Result{Hashes: make(map[string]string)}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable directory entry: skip, keep walking.
			s.logger.Warn("scan: cannot access path", zap.String("path", path), zap.Error(err))
			return nil
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if !s.rules.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.rules.Match(rel, false) {
			return nil
		}

		hash, hashErr := s.HashFile(path)
		switch {
		case errors.Is(hashErr, ErrOversize):
			result.Oversize = append(result.Oversize, rel)
		case hashErr != nil:
			s.logger.Warn("scan: failed to hash file", zap.String("path", rel), zap.Error(hashErr))
			result.Failed = append(result.Failed, rel)
		default:
			result.Hashes[rel] = hash
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.root, err)
	}

	sort.Strings(result.Oversize)
	sort.Strings(result.Failed)
	return result, nil
}

// HashPath hashes a single repository-relative path. The second return is
// false when the file does not exist.
func (s *Scanner) HashPath(rel string) (string, bool, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	hash, err := s.HashFile(abs)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", true, err
	}
	return hash, true, nil
}

// HashFile computes the hex SHA-256 of a file's content, enforcing the size
// ceiling before reading.
func (s *Scanner) HashFile(abs string) (string, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if s.rules.MaxFileBytes > 0 && info.Size() > s.rules.MaxFileBytes {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrOversize, abs, info.Size())
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", abs, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the hex SHA-256 of content already in memory.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

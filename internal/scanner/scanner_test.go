package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() Rules {
	return NewRules([]string{".go", ".py"}, []string{"node_modules"}, ".semsync", 0)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
}

func TestRulesMatch(t *testing.T) {
	rules := testRules()

	assert.True(t, rules.Match("main.go", false))
	assert.True(t, rules.Match("pkg/util.py", false))
	assert.False(t, rules.Match("README.md", false))
	assert.False(t, rules.Match(".git/config", false))
	assert.False(t, rules.Match("pkg/.hidden/a.go", false))
	assert.False(t, rules.Match("node_modules/x/y.go", false))
	assert.False(t, rules.Match(".semsync/index.db", false))
	assert.False(t, rules.Match(".semsync", true))
	assert.True(t, rules.Match("pkg", true))
	assert.False(t, rules.Match("node_modules", true))
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":              "package main\n",
		"pkg/util.py":          "def f():\n    pass\n",
		"README.md":            "docs\n",
		"node_modules/dep.go":  "ignored\n",
		".git/HEAD":            "ref\n",
		".semsync/index.db":    "binary\n",
		"pkg/.cache/hidden.go": "ignored\n",
	})

	s := New(root, testRules(), nil)
	result, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Hashes, 2)
	assert.Contains(t, result.Hashes, "main.go")
	assert.Contains(t, result.Hashes, "pkg/util.py")
	assert.Empty(t, result.Failed)
	assert.Empty(t, result.Oversize)
}

func TestScanHashIsContentBased(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "package a\n"})

	s := New(root, testRules(), nil)
	first, err := s.Scan(context.Background())
	require.NoError(t, err)

	// Touch without changing content: hash must be identical.
	now := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.go"), now, now))
	second, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Hashes["a.go"], second.Hashes["a.go"])

	// Changing content changes the hash.
	writeTree(t, root, map[string]string{"a.go": "package a // v2\n"})
	third, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Hashes["a.go"], third.Hashes["a.go"])
}

func TestScanOversize(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.go": "package small\n",
		"big.go":   "package big\n// padding padding padding padding\n",
	})

	rules := NewRules([]string{".go"}, nil, "", 20)
	s := New(root, rules, nil)

	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result.Hashes, "small.go")
	assert.Equal(t, []string{"big.go"}, result.Oversize)
}

func TestHashPath(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "package a\n"})

	s := New(root, testRules(), nil)

	hash, exists, err := s.HashPath("a.go")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, HashBytes([]byte("package a\n")), hash)

	_, exists, err = s.HashPath("missing.go")
	require.NoError(t, err)
	assert.False(t, exists)
}

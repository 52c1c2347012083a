package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("test"), 0644))
}

func TestScanner_Scan(t *testing.T) {
	// tmpDir/
	//   acme/
	//     itau-1234/
	//       2025-01/jan.ofx
	//     nubank-9999/extrato.csv
	//   beta/loose.OFX
	//   acme/notes/readme.txt
	//   .cache/ignored.csv
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "acme", "itau-1234", "2025-01", "jan.ofx"))
	writeFile(t, filepath.Join(tmpDir, "acme", "nubank-9999", "extrato.csv"))
	writeFile(t, filepath.Join(tmpDir, "beta", "loose.OFX"))
	writeFile(t, filepath.Join(tmpDir, "acme", "notes", "readme.txt"))
	writeFile(t, filepath.Join(tmpDir, ".cache", "ignored.csv"))

	results, err := New(tmpDir).Scan()
	require.NoError(t, err)
	require.Len(t, results, 3)

	byName := make(map[string]ScanResult)
	for _, r := range results {
		byName[filepath.Base(r.Path)] = r
	}

	jan := byName["jan.ofx"].Metadata
	assert.Equal(t, "acme", jan.Client())
	assert.Equal(t, "itau-1234", jan.Account())
	assert.Equal(t, "2025-01", jan.Period())

	extrato := byName["extrato.csv"].Metadata
	assert.Equal(t, "acme", extrato.Client())
	assert.Equal(t, "nubank-9999", extrato.Account())
	assert.Empty(t, extrato.Period())

	loose := byName["loose.OFX"].Metadata
	assert.Equal(t, "beta", loose.Client())
	assert.Empty(t, loose.Account())

	assert.True(t, results[0].Path < results[1].Path && results[1].Path < results[2].Path, "sorted by path")
}

func TestScanner_Scan_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jan.ofx")
	writeFile(t, path)

	results, err := New(path).Scan()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, path, results[0].Metadata.FilePath())
	assert.Empty(t, results[0].Metadata.Client())
}

func TestScanner_Scan_NonExistentDirectory(t *testing.T) {
	_, err := New("/nonexistent/statements").Scan()
	assert.Error(t, err)
}

func TestScanner_Scan_EmptyDirectory(t *testing.T) {
	results, err := New(t.TempDir()).Scan()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIsStatementFile(t *testing.T) {
	tests := map[string]bool{
		"a.ofx": true,
		"a.QFX": true,
		"a.csv": true,
		"a.pdf": false,
		"a":     false,
	}
	for path, want := range tests {
		assert.Equal(t, want, isStatementFile(path), path)
	}
}

func TestLooksLikePeriod(t *testing.T) {
	assert.True(t, looksLikePeriod("2025-01"))
	assert.False(t, looksLikePeriod("2025-13"))
	assert.False(t, looksLikePeriod("itau-1234"))
	assert.False(t, looksLikePeriod("2025"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "statements"), expandHome("~/statements"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "relative", expandHome("relative"))
}

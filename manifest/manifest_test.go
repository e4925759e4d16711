package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_SkipsBlankLinesAndDedups(t *testing.T) {
	path := writeManifest(t, "/a.txt\n\n/b.txt\n/a.txt\n   \n/c.txt\n")
	files, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"/a.txt", "/b.txt", "/c.txt"}, files)
}

func TestLoad_EmptyManifest(t *testing.T) {
	path := writeManifest(t, "")
	files, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/manifest.txt")
	require.Error(t, err)
}

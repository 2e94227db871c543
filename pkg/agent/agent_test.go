package agent

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorpalbuild/vorpal/pkg/artifact"
)

func TestClassifySourceLocal(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, sourceLocal, classifySource(dir))
}

func TestClassifySourceHTTP(t *testing.T) {
	assert.Equal(t, sourceHTTP, classifySource("https://example.com/archive.tar.gz"))
	assert.Equal(t, sourceHTTP, classifySource("http://example.com/archive.tar.gz"))
}

func TestClassifySourceGit(t *testing.T) {
	assert.Equal(t, sourceGit, classifySource("git+https://example.com/repo.git"))
}

func TestClassifySourceUnknown(t *testing.T) {
	assert.Equal(t, sourceUnknown, classifySource("ftp://example.com/file"))
}

func TestStringSlicesEqual(t *testing.T) {
	assert.True(t, stringSlicesEqual(nil, nil))
	assert.True(t, stringSlicesEqual([]string{"a", "b"}, []string{"a", "b"}))
	assert.False(t, stringSlicesEqual([]string{"a"}, []string{"a", "b"}))
	assert.False(t, stringSlicesEqual([]string{"a"}, []string{"b"}))
}

func TestFetchAndExtractHTTPUnknownTypeWritesRawFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text, not an archive"))
	}))
	defer srv.Close()

	sandbox := t.TempDir()
	src := &artifact.Source{Name: "readme", Path: srv.URL + "/README.txt"}

	err := fetchAndExtractHTTP(t.Context(), src, sandbox, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(sandbox, "README.txt"))
	require.NoError(t, err)
	assert.Equal(t, "plain text, not an archive", string(data))
}

func TestFetchAndExtractHTTPRejectsNonHTTPScheme(t *testing.T) {
	sandbox := t.TempDir()
	src := &artifact.Source{Name: "bad", Path: "ftp://example.com/file"}

	err := fetchAndExtractHTTP(t.Context(), src, sandbox, nil)
	require.Error(t, err)
}

func TestCopyFiles(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "nested", "file.txt"), []byte("hello"), 0o644))

	err := copyFiles(srcDir, []string{"nested/file.txt"}, dstDir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dstDir, "nested", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

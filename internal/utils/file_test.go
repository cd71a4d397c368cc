package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, EnsureDir(sub))

	for _, name := range []string{"b.png", "a.JPG", "notes.txt", "nested/c.webp", "nested/d.gif"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.JPG"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "nested", "c.webp"),
	}, files)
}

func TestReportFilename(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "passport.png.report.json"), ReportFilename("/in/passport.png", "", "out", "json"))
	assert.Equal(t, filepath.Join("out", "license.jpeg.report.txt"), ReportFilename("license.jpeg", "", "out", "text"))
}

func TestReportFilename_DistinctWithinTree(t *testing.T) {
	root := filepath.Join("in")
	inputs := []string{
		filepath.Join(root, "a", "id.png"),
		filepath.Join(root, "b", "id.png"),
		filepath.Join(root, "id.jpg"),
		filepath.Join(root, "id.png"),
	}

	seen := make(map[string]string)
	for _, in := range inputs {
		name := ReportFilename(in, root, "out", "text")
		if prev, ok := seen[name]; ok {
			t.Fatalf("%s and %s both map to %s", prev, in, name)
		}
		seen[name] = in
	}

	assert.Equal(t, filepath.Join("out", "a", "id.png.report.txt"), ReportFilename(inputs[0], root, "out", "text"))
	assert.Equal(t, filepath.Join("out", "id.jpg.report.txt"), ReportFilename(inputs[2], root, "out", "text"))
	assert.Equal(t, filepath.Join("out", "x.png.report.txt"), ReportFilename(filepath.Join("elsewhere", "x.png"), root, "out", "text"))
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.png")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", FormatFileSize(2<<20))
}

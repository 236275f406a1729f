package tempfiles

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateStaysInDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	f, err := Create(dir, "tempfiles-test-*")
	require.NoError(t, err)
	defer f.Close()

	rel, err := filepath.Rel(dir, f.Name())
	require.NoError(t, err)
	require.NotContains(t, rel, "..")
}

func TestSpoolAndRemoveOnClose(t *testing.T) {
	dir := t.TempDir()

	s, err := Spool(dir, "spool-*", strings.NewReader("hello world"), 0)
	require.NoError(t, err)
	require.Equal(t, int64(11), s.Size())

	buf := make([]byte, 5)
	_, err = s.ReadAt(buf, 6)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf))

	all, err := io.ReadAll(s.Reader())
	require.NoError(t, err)
	require.Equal(t, "hello world", string(all))

	path := s.file.Name()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestSpoolRejectsOversizedInput(t *testing.T) {
	dir := t.TempDir()
	_, err := Spool(dir, "spool-*", strings.NewReader("0123456789"), 4)
	require.ErrorContains(t, err, "maximum size")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

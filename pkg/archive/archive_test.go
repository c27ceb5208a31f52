package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dar-go/dar/pkg/compress"
	"github.com/dar-go/dar/pkg/slice"
)

func writeTestTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello from a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("hello from sub/b, a bit longer than a"), 0o644))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(root, "link-to-a")))
}

func TestCreateOpenExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTestTree(t, src)

	archDir := t.TempDir()
	store := slice.NewLocalStore(archDir, "roundtrip", "dar", 3)

	opts := Options{Store: store, SliceSize: 1 << 20, Compression: compress.Gzip}
	stats, err := Create(opts, src)
	require.NoError(t, err)
	require.Greater(t, stats.TotalEntries, 0)

	a, err := Open(opts)
	require.NoError(t, err)
	defer a.Close()

	failures, err := a.Test()
	require.NoError(t, err)
	require.Empty(t, failures)

	dest := t.TempDir()
	require.NoError(t, a.Extract(ExtractOptions{DestRoot: dest, Policy: OverwriteAlways}))

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello from a", string(got))

	got, err = os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello from sub/b, a bit longer than a", string(got))

	link, err := os.Readlink(filepath.Join(dest, "link-to-a"))
	require.NoError(t, err)
	require.Equal(t, "a.txt", link)
}

func TestHardLinksShareOneDataPayload(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "orig.txt"), []byte("shared payload"), 0o644))
	require.NoError(t, os.Link(filepath.Join(src, "orig.txt"), filepath.Join(src, "alias.txt")))

	archDir := t.TempDir()
	store := slice.NewLocalStore(archDir, "hardlink", "dar", 3)
	opts := Options{Store: store, SliceSize: 1 << 20}

	_, err := Create(opts, src)
	require.NoError(t, err)

	a, err := Open(opts)
	require.NoError(t, err)
	defer a.Close()

	failures, err := a.Test()
	require.NoError(t, err)
	require.Empty(t, failures)

	dest := t.TempDir()
	require.NoError(t, a.Extract(ExtractOptions{DestRoot: dest, Policy: OverwriteAlways}))

	origInfo, err := os.Stat(filepath.Join(dest, "orig.txt"))
	require.NoError(t, err)
	aliasInfo, err := os.Stat(filepath.Join(dest, "alias.txt"))
	require.NoError(t, err)
	require.True(t, os.SameFile(origInfo, aliasInfo), "extracted files must share one inode, like the source did")
}

func TestDiffReportsAddedRemovedAndUnchanged(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "stable.txt"), []byte("unchanged"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "doomed.txt"), []byte("will be removed"), 0o644))

	archDir := t.TempDir()
	store := slice.NewLocalStore(archDir, "diff", "dar", 3)
	opts := Options{Store: store, SliceSize: 1 << 20}

	_, err := Create(opts, src)
	require.NoError(t, err)

	a, err := Open(opts)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, os.Remove(filepath.Join(src, "doomed.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(src, "new.txt"), []byte("freshly added"), 0o644))

	report, err := a.Diff(src)
	require.NoError(t, err)

	statuses := map[string]DiffStatus{}
	for _, e := range report {
		statuses[e.Path] = e.Status
	}
	require.Equal(t, DiffUnchanged, statuses["/stable.txt"])
	require.Equal(t, DiffAdded, statuses["/new.txt"])
	require.Equal(t, DiffRemoved, statuses["/doomed.txt"])
}

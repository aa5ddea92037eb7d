package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAppendsLines(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "clunet.log")

	r, err := New(pattern)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, r.Record(1, 2, 0x10, []byte{0xaa, 0xbb}))
	require.NoError(t, r.Record(2, 1, 0x11, nil))

	contents, err := os.ReadFile(pattern)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "1,2,0x10,2,aa bb")
	assert.Contains(t, string(contents), "2,1,0x11,0,")
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	_, err := New("clunet-%Q.log")
	assert.Error(t, err)
}

func TestRecordReopenKeepsExistingContent(t *testing.T) {
	dir := t.TempDir()
	// %S changes every second; use a fixed-name pattern instead and verify
	// re-opening the same name doesn't truncate prior content.
	pattern := filepath.Join(dir, "clunet-static.log")

	r, err := New(pattern)
	require.NoError(t, err)
	require.NoError(t, r.Record(1, 2, 0x01, nil))
	require.NoError(t, r.Close())

	r2, err := New(pattern)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r2.Close() })
	require.NoError(t, r2.Record(3, 4, 0x02, nil))

	contents, err := os.ReadFile(pattern)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "1,2,0x01")
	assert.Contains(t, string(contents), "3,4,0x02")
}

package media

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		kind    Kind
		wantErr bool
	}{
		{name: "jpg", file: "car.jpg", kind: KindImage},
		{name: "jpeg upper", file: "CAR.JPEG", kind: KindImage},
		{name: "png", file: "dir/plate.png", kind: KindImage},
		{name: "mp4", file: "clip.mp4", kind: KindVideo},
		{name: "avi mixed case", file: "clip.AvI", kind: KindVideo},
		{name: "mov", file: "clip.mov", kind: KindVideo},
		{name: "text", file: "notes.txt", wantErr: true},
		{name: "bmp not accepted for upload", file: "x.bmp", wantErr: true},
		{name: "no extension", file: "README", wantErr: true},
		{name: "double extension", file: "a.mp4.txt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := Classify(tt.file)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedType)
				assert.Equal(t, KindUnknown, kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestClassifyErrorNamesExtension(t *testing.T) {
	_, err := Classify("report.TXT")
	require.Error(t, err)
	assert.Equal(t, "unsupported file type: .txt", err.Error())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "image", KindImage.String())
	assert.Equal(t, "video", KindVideo.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType(".png"))
	assert.Equal(t, "image/jpeg", ContentType(".JPG"))
	assert.Equal(t, "video/mp4", ContentType(".mp4"))
	assert.Equal(t, "application/octet-stream", ContentType(".bin"))
}

func TestStageKeepsExtension(t *testing.T) {
	dir := t.TempDir()
	store := NewTempStore(dir)

	path, err := store.Stage(strings.NewReader("video-bytes"), "Holiday.MOV")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".mov"))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "platescan-"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestStageFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	_, err := NewTempStore(dir).Stage(failingReader{}, "clip.mp4")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReserve(t *testing.T) {
	dir := t.TempDir()
	path, err := NewTempStore(dir).Reserve(".mp4")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, ".mp4", filepath.Ext(path))
}

func TestNewTempStoreDefaultsToOSTemp(t *testing.T) {
	assert.Equal(t, os.TempDir(), NewTempStore("").Dir())
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	require.NoError(t, Remove(p))
	assert.NoFileExists(t, p)
	// Second removal of a missing file is not a failure.
	require.NoError(t, Remove(p))
	require.NoError(t, Remove(""))
}

func TestRemoveReportsRealFailures(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "busy")
	require.NoError(t, os.Mkdir(sub, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "keep"), []byte("x"), 0o600))

	// A non-empty directory cannot be removed with os.Remove.
	require.Error(t, Remove(sub))
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o600))
	}
}

func TestSweepRemovesOnlyMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.mp4", "b.AVI", "c.mov", "keep.txt", "keep.png", "mp4")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.mp4"), 0o750))

	res, err := NewSweeper(dir).Sweep()
	require.NoError(t, err)
	assert.Len(t, res.Removed, 3)
	assert.Empty(t, res.Failed)

	for _, n := range []string{"a.mp4", "b.AVI", "c.mov"} {
		assert.NoFileExists(t, filepath.Join(dir, n))
	}
	for _, n := range []string{"keep.txt", "keep.png", "mp4"} {
		assert.FileExists(t, filepath.Join(dir, n))
	}
	assert.DirExists(t, filepath.Join(dir, "folder.mp4"))
}

func TestSweepSkipsUndeletableFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "locked.mp4", "free1.avi", "free2.mov")

	s := NewSweeper(dir)
	s.remove = func(p string) error {
		if filepath.Base(p) == "locked.mp4" {
			return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrPermission}
		}
		return os.Remove(p)
	}

	res, err := s.Sweep()
	require.NoError(t, err)
	assert.Len(t, res.Removed, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, filepath.Join(dir, "locked.mp4"), res.Failed[0].Path)
	require.ErrorIs(t, res.Failed[0].Err, fs.ErrPermission)

	assert.FileExists(t, filepath.Join(dir, "locked.mp4"))
	assert.NoFileExists(t, filepath.Join(dir, "free1.avi"))
	assert.NoFileExists(t, filepath.Join(dir, "free2.mov"))
}

func TestSweepVanishedFileIsNotFailure(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "gone.mp4")

	s := NewSweeper(dir)
	s.remove = func(p string) error {
		_ = os.Remove(p)
		return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrNotExist}
	}
	res, err := s.Sweep()
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Failed)
}

func TestSweepMissingDirectory(t *testing.T) {
	_, err := NewSweeper(filepath.Join(t.TempDir(), "missing")).Sweep()
	require.Error(t, err)
}

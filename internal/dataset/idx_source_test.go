package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureFiles returns gzip-compressed IDX fixtures keyed by file name.
func fixtureFiles(t *testing.T) map[string][]byte {
	t.Helper()
	return map[string][]byte{
		trainImagesFile.name: gzipBytes(t, encodeImages(t, ImageHeight, ImageWidth, filledImage(10), filledImage(20), filledImage(30))),
		trainLabelsFile.name: gzipBytes(t, encodeLabels(t, 3, 1, 4)),
		testImagesFile.name:  gzipBytes(t, encodeImages(t, ImageHeight, ImageWidth, filledImage(50), filledImage(60))),
		testLabelsFile.name:  gzipBytes(t, encodeLabels(t, 5, 9)),
	}
}

// useFixtureDigests points the known digests at the fixtures for the duration of the test.
func useFixtureDigests(t *testing.T, files map[string][]byte) {
	t.Helper()
	for _, f := range []*idxFile{&trainImagesFile, &trainLabelsFile, &testImagesFile, &testLabelsFile} {
		saved := f.sha256
		sum := sha256.Sum256(files[f.name])
		f.sha256 = hex.EncodeToString(sum[:])
		t.Cleanup(func() { f.sha256 = saved })
	}
}

func TestIDXSource_PlainFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	}
	write(trainImagesFile.name, encodeImages(t, ImageHeight, ImageWidth, filledImage(1), filledImage(2)))
	write(trainLabelsFile.name, encodeLabels(t, 7, 8))
	write(testImagesFile.name, encodeImages(t, ImageHeight, ImageWidth, filledImage(3)))
	write(testLabelsFile.name, encodeLabels(t, 2))

	src := &IDXSource{Dir: dir}
	train, test, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, train.Len())
	assert.Equal(t, []uint8{7, 8}, train.Labels)
	assert.Equal(t, 1, test.Len())
	assert.Equal(t, byte(3), test.Images[0][100])
}

func TestIDXSource_MissingWithoutDownload(t *testing.T) {
	src := &IDXSource{Dir: t.TempDir()}
	_, _, err := src.Load(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestIDXSource_Download(t *testing.T) {
	files := fixtureFiles(t)
	useFixtureDigests(t, files)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/mnist/"), ".gz")
		data, ok := files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	dir := t.TempDir()
	src := &IDXSource{Dir: dir, BaseURL: srv.URL + "/mnist/", Download: true, Client: srv.Client()}

	train, test, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint8{3, 1, 4}, train.Labels)
	assert.Equal(t, []uint8{5, 9}, test.Labels)
	assert.Equal(t, int32(4), requests.Load())

	for name := range files {
		_, err := os.Stat(filepath.Join(dir, name+".gz"))
		assert.NoError(t, err, name)
	}

	// Second load is served from the cache directory.
	_, _, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(4), requests.Load())
}

func TestIDXSource_DownloadChecksumMismatch(t *testing.T) {
	files := fixtureFiles(t)
	// Digests stay at the real MNIST values, so the fixtures must be rejected.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".gz")
		_, _ = w.Write(files[name])
	}))
	defer srv.Close()

	dir := t.TempDir()
	src := &IDXSource{Dir: dir, BaseURL: srv.URL + "/", Download: true, Client: srv.Client()}
	_, _, err := src.Load(context.Background())
	require.ErrorIs(t, err, ErrChecksum)

	// Nothing is left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIDXSource_DownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := &IDXSource{Dir: t.TempDir(), BaseURL: srv.URL + "/", Download: true, Client: srv.Client()}
	_, _, err := src.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
)

// DefaultBaseURL is a public mirror of the gzip-compressed MNIST IDX files.
const DefaultBaseURL = "https://storage.googleapis.com/cvdf-datasets/mnist/"

// ErrChecksum is returned when a compressed file does not match its known digest.
var ErrChecksum = errors.New("checksum mismatch")

type idxFile struct {
	name   string // without .gz
	sha256 string // digest of the .gz file
}

var (
	trainImagesFile = idxFile{"train-images-idx3-ubyte", "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609"}
	trainLabelsFile = idxFile{"train-labels-idx1-ubyte", "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c"}
	testImagesFile  = idxFile{"t10k-images-idx3-ubyte", "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6"}
	testLabelsFile  = idxFile{"t10k-labels-idx1-ubyte", "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6"}
)

// IDXSource reads the official MNIST IDX files from Dir.
//
// For every file the plain name is tried first, then the .gz name. When neither exists
// and Download is set, the .gz file is fetched from BaseURL, checked against its known
// SHA-256 digest and stored in Dir.
type IDXSource struct {
	Dir      string
	BaseURL  string
	Download bool
	Client   *http.Client
	Logger   *log.Logger
}

// Load implements Source.
func (s *IDXSource) Load(ctx context.Context) (train, test *Set, err error) {
	train, err = s.loadSplit(ctx, trainImagesFile, trainLabelsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load train split: %w", err)
	}
	test, err = s.loadSplit(ctx, testImagesFile, testLabelsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load test split: %w", err)
	}
	return train, test, nil
}

func (s *IDXSource) loadSplit(ctx context.Context, imagesFile, labelsFile idxFile) (*Set, error) {
	imagesPath, err := s.locate(ctx, imagesFile)
	if err != nil {
		return nil, err
	}
	labelsPath, err := s.locate(ctx, labelsFile)
	if err != nil {
		return nil, err
	}

	images, err := readFile(imagesPath, func(r io.Reader) ([][]byte, error) {
		return ReadIDXImages(r, ImageHeight, ImageWidth)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", imagesPath, err)
	}
	labels, err := readFile(labelsPath, func(r io.Reader) ([]uint8, error) {
		return ReadIDXLabels(r, NumClasses)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", labelsPath, err)
	}

	return &Set{Images: images, Labels: labels}, nil
}

func readFile[T any](path string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return decode(f)
}

// locate returns the path of a usable copy of file, downloading it if allowed.
func (s *IDXSource) locate(ctx context.Context, file idxFile) (string, error) {
	plain := filepath.Join(s.Dir, file.name)
	if _, err := os.Stat(plain); err == nil {
		return plain, nil
	}

	gz := plain + ".gz"
	if _, err := os.Stat(gz); err == nil {
		if err := verifyFile(gz, file.sha256); err != nil {
			return "", err
		}
		return gz, nil
	}

	if !s.Download {
		return "", fmt.Errorf("%s not found in %s (enable download or fetch it manually): %w",
			file.name, s.Dir, os.ErrNotExist)
	}
	if err := s.fetch(ctx, file, gz); err != nil {
		return "", err
	}
	return gz, nil
}

// fetch downloads file into dst through a temporary file, renaming only after the
// digest matched.
func (s *IDXSource) fetch(ctx context.Context, file idxFile, dst string) error {
	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	url := base + file.name + ".gz"
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	if s.Logger != nil {
		s.Logger.Printf("download url=%s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, file.name+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != file.sha256 {
		return fmt.Errorf("%w: %s: got %s, want %s", ErrChecksum, url, got, file.sha256)
	}
	return os.Rename(tmp.Name(), dst)
}

func verifyFile(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		return fmt.Errorf("%w: %s: got %s, want %s", ErrChecksum, path, got, want)
	}
	return nil
}

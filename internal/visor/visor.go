// Package visor renders tutorial results into an output directory.
//
// Every result is drawn on a Surface: a named location grouped under a tab, stored at
// <dir>/<tab>/<name>/. WriteIndex produces an index.html that lists the surfaces tab by
// tab, the way a visualisation side panel would.
package visor

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrSurface is returned for a surface without a name or tab.
var ErrSurface = errors.New("invalid surface")

// Surface names a place to render into.
type Surface struct {
	Name string
	Tab  string
}

func (s Surface) validate() error {
	if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Tab) == "" {
		return fmt.Errorf("%w: name=%q tab=%q", ErrSurface, s.Name, s.Tab)
	}
	return nil
}

// rel is the surface directory relative to the visor root.
func (s Surface) rel() string {
	return filepath.Join(slug(s.Tab), slug(s.Name))
}

type entry struct {
	surface Surface
	files   []string // relative to the visor root, in write order
}

// Visor owns an output directory and remembers what was drawn where.
type Visor struct {
	dir     string
	logger  *log.Logger
	entries []*entry
}

// New creates dir if needed. A nil logger discards output.
func New(dir string, logger *log.Logger) (*Visor, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Visor{dir: dir, logger: logger}, nil
}

// Dir returns the output root.
func (v *Visor) Dir() string { return v.dir }

// Surfaces returns every surface drawn so far, in first-use order.
func (v *Visor) Surfaces() []Surface {
	out := make([]Surface, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.surface
	}
	return out
}

// Files returns the files written for s, relative to Dir.
func (v *Visor) Files(s Surface) []string {
	if e := v.lookup(s); e != nil {
		return append([]string(nil), e.files...)
	}
	return nil
}

func (v *Visor) lookup(s Surface) *entry {
	for _, e := range v.entries {
		if e.surface == s {
			return e
		}
	}
	return nil
}

// open registers s and makes sure its directory exists.
func (v *Visor) open(s Surface) (*entry, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(v.dir, s.rel()), 0o755); err != nil {
		return nil, fmt.Errorf("surface %s/%s: %w", s.Tab, s.Name, err)
	}
	e := v.lookup(s)
	if e == nil {
		e = &entry{surface: s}
		v.entries = append(v.entries, e)
	}
	return e, nil
}

// writeFile writes data to name on s through a temporary file so that re-rendered
// files never appear half written.
func (v *Visor) writeFile(s Surface, name string, data []byte) (string, error) {
	e, err := v.open(s)
	if err != nil {
		return "", err
	}
	rel := filepath.Join(s.rel(), name)
	path := filepath.Join(v.dir, rel)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}

	for _, f := range e.files {
		if f == rel {
			return path, nil
		}
	}
	e.files = append(e.files, rel)
	return path, nil
}

// slug lowercases s and replaces anything but letters and digits with '-'.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Package targets reads the list of monitored hostnames from disk and tells
// callers when its content has changed.
package targets

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hamed0406/certwatch/internal/domain"
)

// ErrNoTargets is returned when the list was readable but held no hostnames.
var ErrNoTargets = errors.New("target list is empty")

// Source yields the current target list once per cycle.
type Source interface {
	Poll() (list []domain.Target, changed bool, err error)
}

// File is a Source backed by a CSV-style file: first column is the hostname,
// lines starting with '#' and blank lines are skipped.
type File struct {
	Path string

	mu     sync.Mutex
	digest [sha256.Size]byte
	seen   bool
}

func NewFile(path string) *File {
	return &File{Path: path}
}

// Poll re-reads the file. changed is true on the first successful read and
// whenever the raw content differs from the previous successful read.
func (f *File) Poll() ([]domain.Target, bool, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", f.Path, err)
	}
	list, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	if len(list) == 0 {
		return nil, false, ErrNoTargets
	}

	sum := sha256.Sum256(b)
	f.mu.Lock()
	changed := !f.seen || sum != f.digest
	f.digest, f.seen = sum, true
	f.mu.Unlock()

	return list, changed, nil
}

// Parse extracts hostnames from r, de-duplicating while keeping the first
// occurrence. Entries without a dot are ignored.
func Parse(r io.Reader) ([]domain.Target, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var out []domain.Target
	seen := make(map[domain.Target]bool)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		raw := strings.TrimSpace(rec[0])
		if raw == "" || strings.HasPrefix(raw, "#") || !strings.Contains(raw, ".") {
			continue
		}
		t := domain.NormalizeTarget(raw)
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// Static is a fixed Source, handy for the CLI and tests.
type Static []domain.Target

func (s Static) Poll() ([]domain.Target, bool, error) {
	if len(s) == 0 {
		return nil, false, ErrNoTargets
	}
	return s, false, nil
}

// Package archive reads and writes corpora packed as compressed tar
// archives (.tar.xz, .tar.gz).
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/internal/validation"
)

// Compression names the codec around the tar stream.
type Compression int

const (
	None Compression = iota
	Gzip
	XZ
)

// DetectCompression maps an archive name to its codec. ok is false for
// names that are not tar archives.
func DetectCompression(name string) (c Compression, ok bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return XZ, true
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return Gzip, true
	case strings.HasSuffix(lower, ".tar"):
		return None, true
	}
	return None, false
}

// IsArchive reports whether name is a tar archive this package reads.
func IsArchive(name string) bool {
	_, ok := DetectCompression(name)
	return ok
}

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader opens the archive at path.
func NewReader(path string) (*Reader, error) {
	c, ok := DetectCompression(path)
	if !ok {
		return nil, errors.NewUnsupported("archive format", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}

	var reader io.Reader = f
	var decompressor io.Closer
	switch c {
	case XZ:
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
	case Gzip:
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	}

	return &Reader{
		Reader:       tar.NewReader(reader),
		file:         f,
		decompressor: decompressor,
	}, nil
}

// Close closes the archive reader and any underlying decompressors.
func (r *Reader) Close() error {
	var first error
	if r.decompressor != nil {
		first = r.decompressor.Close()
	}
	if err := r.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Visitor is called for each entry. Return true to stop iteration.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries in the archive, calling the visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// Entry is a regular file read from an archive.
type Entry struct {
	Name string // cleaned, slash-separated, relative
	Data []byte
}

// ReadEntries returns the regular files of the archive whose cleaned name
// satisfies keep, in archive order. Names that would escape the output
// directory are rejected.
func ReadEntries(path string, keep func(name string) bool) ([]Entry, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []Entry
	err = r.Iterate(func(h *tar.Header, content io.Reader) (bool, error) {
		if h.Typeflag != tar.TypeReg {
			return false, nil
		}
		name, err := validation.SanitizePath(".", h.Name)
		if err != nil {
			return true, fmt.Errorf("archive entry %q: %w", h.Name, err)
		}
		name = strings.ReplaceAll(name, string(os.PathSeparator), "/")
		if keep != nil && !keep(name) {
			return false, nil
		}
		if err := validation.CheckSize(h.Size); err != nil {
			return true, fmt.Errorf("archive entry %q: %w", h.Name, err)
		}
		data, err := io.ReadAll(content)
		if err != nil {
			return true, errors.NewIO("read", h.Name, err)
		}
		entries = append(entries, Entry{Name: name, Data: data})
		return false, nil
	})
	return entries, err
}

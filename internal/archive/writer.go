package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/stephanus/core/errors"
)

// Writer streams entries into a compressed tar archive. The archive is
// written to a temporary file and renamed into place by Close.
type Writer struct {
	tw    *tar.Writer
	codec io.WriteCloser
	file  *os.File
	path  string
	mtime time.Time
}

// NewWriter creates the archive at path; the codec follows the name.
func NewWriter(path string) (*Writer, error) {
	c, ok := DetectCompression(path)
	if !ok {
		return nil, errors.NewUnsupported("archive format", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.NewIO("create", filepath.Dir(path), err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".archive-*")
	if err != nil {
		return nil, errors.NewIO("create", path, err)
	}

	w := &Writer{file: f, path: path, mtime: time.Now().UTC().Truncate(time.Second)}
	var out io.Writer = f
	switch c {
	case XZ:
		xzw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, err
		}
		w.codec = xzw
		out = xzw
	case Gzip:
		gzw := gzip.NewWriter(f)
		w.codec = gzw
		out = gzw
	}
	w.tw = tar.NewWriter(out)
	return w, nil
}

// Add writes one regular file. Entries share a modification time so
// archives of the same content differ only in that stamp.
func (w *Writer) Add(name string, data []byte) error {
	hdr := &tar.Header{
		Name:     filepath.ToSlash(name),
		Mode:     0644,
		Size:     int64(len(data)),
		ModTime:  w.mtime,
		Typeflag: tar.TypeReg,
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return errors.NewIO("write", name, err)
	}
	if _, err := w.tw.Write(data); err != nil {
		return errors.NewIO("write", name, err)
	}
	return nil
}

// Close flushes the archive and moves it to its final path.
func (w *Writer) Close() error {
	err := w.tw.Close()
	if w.codec != nil {
		if cerr := w.codec.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(w.file.Name())
		return errors.NewIO("write", w.path, err)
	}
	if err := os.Rename(w.file.Name(), w.path); err != nil {
		os.Remove(w.file.Name())
		return errors.NewIO("rename", w.path, err)
	}
	return nil
}

// Abort discards a partially written archive.
func (w *Writer) Abort() {
	w.file.Close()
	os.Remove(w.file.Name())
}

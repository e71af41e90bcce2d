// Package cas keeps the original bytes of documents rewritten in place.
// Blobs are stored by their BLAKE3 digest, so a corpus backed up twice
// costs nothing the second time.
package cas

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/stephanus/core/errors"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

var digestPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Store is a directory of blobs addressed by BLAKE3 digest.
type Store struct {
	root string
}

// NewStore creates a store at root. The directory structure is created
// if it doesn't exist.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "blobs"), 0755); err != nil {
		return nil, errors.NewIO("create", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Put stores data and returns its digest. Storing a blob that is
// already present is a no-op.
func (s *Store) Put(data []byte) (string, error) {
	digest := Digest(data)
	path := s.pathFor(digest)
	if _, err := os.Stat(path); err == nil {
		return digest, nil
	}
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return digest, nil
}

// Get returns the blob with the given digest.
func (s *Store) Get(digest string) ([]byte, error) {
	if !ValidDigest(digest) {
		return nil, errors.NewValidation("digest", "not a BLAKE3 hex digest: "+digest)
	}
	data, err := os.ReadFile(s.pathFor(digest))
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound("blob", digest)
	}
	if err != nil {
		return nil, errors.NewIO("read", s.pathFor(digest), err)
	}
	return data, nil
}

// Has reports whether the blob is present.
func (s *Store) Has(digest string) bool {
	if !ValidDigest(digest) {
		return false
	}
	_, err := os.Stat(s.pathFor(digest))
	return err == nil
}

// Verify re-hashes a stored blob and reports a mismatch as an IOError.
func (s *Store) Verify(digest string) error {
	data, err := s.Get(digest)
	if err != nil {
		return err
	}
	if got := Digest(data); got != digest {
		return errors.NewIO("verify", s.pathFor(digest), fmt.Errorf("content hashes to %s", got))
	}
	return nil
}

// Blobs are stored at <root>/blobs/<first2>/<digest>.
func (s *Store) pathFor(digest string) string {
	return filepath.Join(s.root, "blobs", digest[:2], digest)
}

// Digest returns the BLAKE3-256 hex digest of data.
func Digest(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// DigestReader hashes r to EOF.
func DigestReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ValidDigest reports whether s is a lowercase 64-character hex digest.
func ValidDigest(s string) bool {
	return digestPattern.MatchString(s)
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIO("create", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.NewIO("create", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tempFileWrite(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIO("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("close", tmpPath, err)
	}
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("rename", path, err)
	}
	return nil
}

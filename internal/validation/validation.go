// Package validation checks paths and inputs coming from the command line
// and from corpus archives before anything is read or written.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Limits on corpus inputs.
const (
	// MaxFileSize is the largest document read into memory (256 MB).
	MaxFileSize = 256 << 20
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrFileTooLarge     = errors.New("file too large")
	ErrSamePath         = errors.New("output overlaps input")
)

// SanitizePath validates a relative path taken from a corpus (an archive
// entry or a walked file) and returns it cleaned. The path must stay
// inside baseDir once joined to it.
func SanitizePath(baseDir, userPath string) (string, error) {
	if err := ValidatePath(userPath); err != nil {
		return "", err
	}

	cleanPath := filepath.Clean(filepath.FromSlash(userPath))
	if filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(baseDir, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleanPath, nil
}

// ValidatePath checks for length limits and control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// CheckSize rejects documents larger than MaxFileSize.
func CheckSize(size int64) error {
	if size > MaxFileSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, size, MaxFileSize)
	}
	return nil
}

// CheckOutput rejects an output directory that is the input directory or
// lies inside it, so a rerun never picks up its own output.
func CheckOutput(input, output string) error {
	in, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(in, out)
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("%w: %s is inside %s", ErrSamePath, output, input)
	}
	return nil
}

// FileType is the kind of an input named on the command line.
type FileType string

const (
	FileTypeDir     FileType = "dir"
	FileTypeTarXZ   FileType = "tar.xz"
	FileTypeTarGZ   FileType = "tar.gz"
	FileTypeTar     FileType = "tar"
	FileTypeGzip    FileType = "gzip"
	FileTypeXZ      FileType = "xz"
	FileTypeSQLite  FileType = "sqlite"
	FileTypeXML     FileType = "xml"
	FileTypeTSV     FileType = "tsv"
	FileTypeCSV     FileType = "csv"
	FileTypeUnknown FileType = "unknown"
)

var magicBytes = []struct {
	fileType FileType
	magic    []byte
	offset   int
}{
	{FileTypeTar, []byte("ustar"), 257},
	{FileTypeGzip, []byte{0x1f, 0x8b}, 0},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, 0},
	{FileTypeSQLite, []byte("SQLite format 3"), 0},
}

// DetectInput stats path and, for files, confirms that the content
// matches the extension.
func DetectInput(path string) (FileType, error) {
	if err := ValidatePath(path); err != nil {
		return FileTypeUnknown, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return FileTypeUnknown, err
	}
	if info.IsDir() {
		return FileTypeDir, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return FileTypeUnknown, err
	}
	defer f.Close()
	return ValidateFileType(f, path)
}

// ValidateFileType validates that content read from reader matches the
// type suggested by filename and returns that type.
func ValidateFileType(reader io.Reader, filename string) (FileType, error) {
	// 512 bytes reaches the tar magic at offset 257.
	buf := make([]byte, 512)
	n, err := io.ReadFull(reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	detected := detectFileTypeFromMagic(buf)
	expected := detectFileTypeFromExtension(filename)

	switch {
	case expected == FileTypeTarXZ && detected == FileTypeXZ:
		return FileTypeTarXZ, nil
	case expected == FileTypeTarGZ && detected == FileTypeGzip:
		return FileTypeTarGZ, nil
	case detected == expected:
		return detected, nil
	case detected == FileTypeUnknown && isTextType(expected):
		if isLikelyText(buf) {
			return expected, nil
		}
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is binary", expected)
	case detected != FileTypeUnknown && expected != FileTypeUnknown:
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is %s", expected, detected)
	case detected == FileTypeUnknown:
		return expected, nil
	}
	return detected, nil
}

func isTextType(t FileType) bool {
	return t == FileTypeXML || t == FileTypeTSV || t == FileTypeCSV
}

func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if sig.offset+len(sig.magic) <= len(buf) && bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
			return sig.fileType
		}
	}
	return FileTypeUnknown
}

func detectFileTypeFromExtension(filename string) FileType {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".tar.xz") || strings.HasSuffix(lower, ".txz") {
		return FileTypeTarXZ
	}
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		return FileTypeTarGZ
	}
	switch filepath.Ext(lower) {
	case ".tar":
		return FileTypeTar
	case ".xz":
		return FileTypeXZ
	case ".gz":
		return FileTypeGzip
	case ".sqlite", ".db", ".sqlite3":
		return FileTypeSQLite
	case ".xml":
		return FileTypeXML
	case ".tsv", ".txt":
		return FileTypeTSV
	case ".csv":
		return FileTypeCSV
	}
	return FileTypeUnknown
}

// isLikelyText reports whether buf looks like text: no NUL bytes and
// almost no control characters. Bytes >= 0x80 (UTF-8 Greek) are neutral.
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}
	printable, control := 0, 0
	for _, b := range buf {
		switch {
		case b >= 0x20 && b <= 0x7e, b == '\t', b == '\n', b == '\r':
			printable++
		case b < 0x20:
			control++
		}
	}
	return control == 0 || float64(printable)/float64(printable+control) > 0.95
}

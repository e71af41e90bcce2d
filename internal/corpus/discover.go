package corpus

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/internal/archive"
	"github.com/FocuswithJustin/stephanus/internal/validation"
)

// Document is one input file. Documents read from an archive carry their
// bytes; the others are read from Path when processed.
type Document struct {
	Name string // slash-separated, relative to the input
	Path string // file on disk; empty for archive entries
	Data []byte
}

// Selector filters document names with doublestar patterns. A name is
// selected when it matches an include pattern and no exclude pattern.
type Selector struct {
	Include []string
	Exclude []string
}

// Match reports whether name is selected.
func (s Selector) Match(name string) bool {
	included := false
	for _, p := range s.Include {
		if ok, _ := doublestar.Match(p, name); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range s.Exclude {
		if ok, _ := doublestar.Match(p, name); ok {
			return false
		}
	}
	return true
}

// Discover lists the documents of input, a directory, an archive or a
// single XML file, sorted by name. A single file is taken whatever the
// patterns say.
func Discover(input string, sel Selector) ([]Document, error) {
	kind, err := validation.DetectInput(input)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("input", input)
		}
		return nil, errors.NewValidation("input", err.Error())
	}

	switch kind {
	case validation.FileTypeDir:
		return discoverDir(input, sel)
	case validation.FileTypeTarXZ, validation.FileTypeTarGZ, validation.FileTypeTar:
		entries, err := archive.ReadEntries(input, sel.Match)
		if err != nil {
			return nil, err
		}
		docs := make([]Document, len(entries))
		for i, e := range entries {
			docs[i] = Document{Name: e.Name, Data: e.Data}
		}
		sortDocuments(docs)
		return docs, nil
	case validation.FileTypeXML:
		return []Document{{Name: filepath.Base(input), Path: input}}, nil
	}
	return nil, errors.NewUnsupported("input", string(kind))
}

func discoverDir(root string, sel Selector) ([]Document, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var docs []Document
	for _, pattern := range sel.Include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.NewValidation("include", err.Error())
		}
		for _, name := range matches {
			if seen[name] || !sel.Match(name) {
				continue
			}
			seen[name] = true
			docs = append(docs, Document{Name: name, Path: filepath.Join(root, filepath.FromSlash(name))})
		}
	}
	sortDocuments(docs)
	return docs, nil
}

func sortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
}

// read returns the document bytes.
func (d Document) read() ([]byte, error) {
	if d.Path == "" {
		return d.Data, nil
	}
	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, errors.NewIO("stat", d.Path, err)
	}
	if err := validation.CheckSize(info.Size()); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, errors.NewIO("read", d.Path, err)
	}
	return data, nil
}

package cas

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/FocuswithJustin/stephanus/core/errors"
)

const indexName = "index.jsonl"

// Record is one line of the backup index: the document name and the
// digest of its bytes at the time of the backup.
type Record struct {
	Name   string    `json:"name"`
	Digest string    `json:"digest"`
	Size   int       `json:"size"`
	Time   time.Time `json:"time"`
	Run    string    `json:"run,omitempty"`
}

// Backup stores originals and appends a record for each to the index.
// It is safe for concurrent use.
type Backup struct {
	store *Store
	run   string
	mu    sync.Mutex
}

// NewBackup opens a backup store at root. run tags every record written.
func NewBackup(root, run string) (*Backup, error) {
	s, err := NewStore(root)
	if err != nil {
		return nil, err
	}
	return &Backup{store: s, run: run}, nil
}

// Store returns the underlying blob store.
func (b *Backup) Store() *Store {
	return b.store
}

// Save stores data as the original of name.
func (b *Backup) Save(name string, data []byte) (Record, error) {
	digest, err := b.store.Put(data)
	if err != nil {
		return Record{}, err
	}
	rec := Record{Name: filepath.ToSlash(name), Digest: digest, Size: len(data), Time: time.Now().UTC(), Run: b.run}
	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	path := filepath.Join(b.store.root, indexName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return Record{}, errors.NewIO("open", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return Record{}, errors.NewIO("write", path, err)
	}
	return rec, nil
}

// Records reads the index in the order it was written.
func (b *Backup) Records() ([]Record, error) {
	path := filepath.Join(b.store.root, indexName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, &errors.ParseError{Format: "backup index", Path: path, Message: fmt.Sprintf("line %d", line), Err: err}
		}
		if !ValidDigest(rec.Digest) {
			return nil, &errors.ParseError{Format: "backup index", Path: path, Message: fmt.Sprintf("line %d: bad digest %q", line, rec.Digest)}
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	return records, nil
}

// Latest returns the most recent record for name.
func (b *Backup) Latest(name string) (Record, error) {
	records, err := b.Records()
	if err != nil {
		return Record{}, err
	}
	name = filepath.ToSlash(name)
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Name == name {
			return records[i], nil
		}
	}
	return Record{}, errors.NewNotFound("backup", name)
}

// Originals returns the latest record of each document saved by run, in
// name order. An empty run considers every record.
func (b *Backup) Originals(run string) ([]Record, error) {
	records, err := b.Records()
	if err != nil {
		return nil, err
	}
	latest := make(map[string]Record)
	for _, rec := range records {
		if run == "" || rec.Run == run {
			latest[rec.Name] = rec
		}
	}
	if len(latest) == 0 {
		what := "any document"
		if run != "" {
			what = "run " + run
		}
		return nil, errors.NewNotFound("backup", what)
	}
	out := make([]Record, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Restore returns the most recently saved original of name.
func (b *Backup) Restore(name string) ([]byte, error) {
	rec, err := b.Latest(name)
	if err != nil {
		return nil, err
	}
	return b.store.Get(rec.Digest)
}

// Package config loads the YAML profile that describes a corpus: its
// markup conventions, the cited author and the files to process.
package config

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/stephanus/core/annotate"
	"github.com/FocuswithJustin/stephanus/core/backref"
	"github.com/FocuswithJustin/stephanus/core/errors"
)

// Config is the complete profile.
type Config struct {
	Profile ProfileConfig `yaml:"profile"`
	Corpus  CorpusConfig  `yaml:"corpus"`
	// Table is a work table file; empty means the embedded Moralia table.
	Table string `yaml:"table"`
}

// ProfileConfig mirrors annotate.Profile.
type ProfileConfig struct {
	TargetAuthor  string   `yaml:"target_author"`
	BackReference string   `yaml:"back_reference"`
	AuthorTag     string   `yaml:"author_tag"`
	TitleTag      string   `yaml:"title_tag"`
	CitationTag   string   `yaml:"citation_tag"`
	IDAttr        string   `yaml:"id_attr"`
	Namespace     string   `yaml:"namespace"`
	Scheme        string   `yaml:"scheme"`
	EntryTags     []string `yaml:"entry_tags"`
	HeadwordTag   string   `yaml:"headword_tag"`
	Ceiling       string   `yaml:"ceiling"`
}

// CorpusConfig selects documents and sets run parameters.
type CorpusConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	// Workers bounds document parallelism; 0 means one per CPU.
	Workers int `yaml:"workers"`
	// Scope is the XPath of the elements searched for back-references.
	Scope string `yaml:"scope"`
}

// DefaultConfig returns the profile for Plutarch's Moralia in the LSJ.
func DefaultConfig() *Config {
	p := annotate.DefaultProfile()
	return &Config{
		Profile: ProfileConfig{
			TargetAuthor:  p.TargetAuthor,
			BackReference: p.BackReference,
			AuthorTag:     p.AuthorTag,
			TitleTag:      p.TitleTag,
			CitationTag:   p.CitationTag,
			IDAttr:        p.IDAttr,
			Namespace:     p.Namespace,
			Scheme:        p.Scheme,
			EntryTags:     p.EntryTags,
			HeadwordTag:   p.HeadwordTag,
			Ceiling:       p.Ceiling,
		},
		Corpus: CorpusConfig{
			Include: []string{"**/greatscott*.xml"},
			Exclude: []string{"**/greatscott01.xml"},
			Workers: 0,
			Scope:   backref.DefaultScope,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("config", path)
		}
		return nil, errors.NewIO("read", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, &errors.ParseError{Format: "profile", Path: path, Message: err.Error(), Err: errors.ErrInvalidInput}
	}
	if c.Table != "" && !filepath.IsAbs(c.Table) {
		c.Table = filepath.Join(filepath.Dir(path), c.Table)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.AnnotateProfile().Validate(); err != nil {
		return err
	}
	if len(c.Profile.EntryTags) == 0 {
		return errors.NewValidation("profile.entry_tags", "at least one entry tag is required")
	}
	if len(c.Corpus.Include) == 0 {
		return errors.NewValidation("corpus.include", "at least one pattern is required")
	}
	for _, list := range [][]string{c.Corpus.Include, c.Corpus.Exclude} {
		for _, pattern := range list {
			if !doublestar.ValidatePattern(pattern) {
				return errors.NewValidation("corpus", "bad glob pattern "+pattern)
			}
		}
	}
	if c.Corpus.Workers < 0 {
		return errors.NewValidation("corpus.workers", "must not be negative")
	}
	return nil
}

// AnnotateProfile converts the profile section.
func (c *Config) AnnotateProfile() annotate.Profile {
	p := c.Profile
	return annotate.Profile{
		TargetAuthor:  p.TargetAuthor,
		BackReference: p.BackReference,
		AuthorTag:     p.AuthorTag,
		TitleTag:      p.TitleTag,
		CitationTag:   p.CitationTag,
		IDAttr:        p.IDAttr,
		Namespace:     p.Namespace,
		Scheme:        p.Scheme,
		EntryTags:     p.EntryTags,
		HeadwordTag:   p.HeadwordTag,
		Ceiling:       p.Ceiling,
	}
}

// Merge applies the non-zero fields of other, as command-line flags do.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Table != "" {
		c.Table = other.Table
	}
	if other.Profile.Ceiling != "" {
		c.Profile.Ceiling = other.Profile.Ceiling
	}
	if other.Profile.TargetAuthor != "" {
		c.Profile.TargetAuthor = other.Profile.TargetAuthor
	}
	if len(other.Corpus.Include) > 0 {
		c.Corpus.Include = other.Corpus.Include
	}
	if len(other.Corpus.Exclude) > 0 {
		c.Corpus.Exclude = other.Corpus.Exclude
	}
	if other.Corpus.Workers != 0 {
		c.Corpus.Workers = other.Corpus.Workers
	}
	if other.Corpus.Scope != "" {
		c.Corpus.Scope = other.Corpus.Scope
	}
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewIO("create", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.NewIO("write", path, err)
	}
	return nil
}

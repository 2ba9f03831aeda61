package oauth2store

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Store formats understood by NewDataStore.
const (
	FormatJSON   = "json"
	FormatBinary = "binary"
)

// DataStore loads and saves the whole token graph.
type DataStore interface {
	// Load returns the stored graph, or an empty one when nothing has been saved yet.
	Load() (*Info, error)
	// Save replaces the stored graph.
	Save(info *Info) error
	// Path is the backing file location.
	Path() string
}

// NewDataStore returns the store for format rooted in dir.
func NewDataStore(dir, format string) (DataStore, error) {
	switch format {
	case "", FormatJSON:
		return &JSONDataStore{path: filepath.Join(dir, "tokens.json")}, nil
	case FormatBinary:
		return &BinaryDataStore{path: filepath.Join(dir, "tokens.bin")}, nil
	default:
		return nil, errors.Errorf("unknown token store format %q (want %q or %q)", format, FormatJSON, FormatBinary)
	}
}

// JSONDataStore keeps the graph as indented JSON.
type JSONDataStore struct {
	path string
}

// NewJSONDataStore returns a JSON store backed by path.
func NewJSONDataStore(path string) *JSONDataStore {
	return &JSONDataStore{path: path}
}

func (s *JSONDataStore) Path() string { return s.path }

func (s *JSONDataStore) Load() (*Info, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewInfo(), nil
		}
		return nil, errors.Wrapf(err, "reading %s", s.path)
	}
	info := NewInfo()
	if len(bytes.TrimSpace(b)) == 0 {
		return info, nil
	}
	if err := json.Unmarshal(b, info); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", s.path)
	}
	info.normalize()
	return info, nil
}

func (s *JSONDataStore) Save(info *Info) error {
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding token store")
	}
	return writeFileAtomic(s.path, b)
}

// BinaryDataStore keeps the graph gob-encoded.
type BinaryDataStore struct {
	path string
}

// NewBinaryDataStore returns a binary store backed by path.
func NewBinaryDataStore(path string) *BinaryDataStore {
	return &BinaryDataStore{path: path}
}

func (s *BinaryDataStore) Path() string { return s.path }

func (s *BinaryDataStore) Load() (*Info, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewInfo(), nil
		}
		return nil, errors.Wrapf(err, "reading %s", s.path)
	}
	info := NewInfo()
	if len(b) == 0 {
		return info, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(info); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", s.path)
	}
	info.normalize()
	return info, nil
}

func (s *BinaryDataStore) Save(info *Info) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(info); err != nil {
		return errors.Wrap(err, "encoding token store")
	}
	return writeFileAtomic(s.path, buf.Bytes())
}

// writeFileAtomic writes to a uniquely named temp file next to path and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "creating token store directory")
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

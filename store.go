package zarr

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	MemoryStoreType   = "MemoryStore"
	LocalStoreType    = "LocalStore"
	dirPermissionBits = 0755
)

var ErrNotfound = errors.New("not found")

// Store is the key/value backend an array hierarchy lives in. Keys are
// slash-separated logical paths like "measurements/r10m/b02/.zarray".
type Store interface {
	Get(key string) (io.ReadCloser, error)
	Put(key string, val io.Reader) error
	// Keys lists every key beginning with prefix in lexical order. An empty
	// prefix lists the whole store.
	Keys(prefix string) ([]string, error)
	Type() string
}

type MemoryStore struct {
	lk   sync.Mutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[string][]byte{},
	}
}

func (s *MemoryStore) Type() string { return MemoryStoreType }

func (s *MemoryStore) Get(key string) (io.ReadCloser, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	d, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotfound, key)
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

func (s *MemoryStore) Put(key string, val io.Reader) error {
	d, err := io.ReadAll(val)
	if err != nil {
		return err
	}

	s.lk.Lock()
	defer s.lk.Unlock()
	s.data[key] = d

	return nil
}

func (s *MemoryStore) Keys(prefix string) ([]string, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

type LocalStore struct {
	base string
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(base string) (*LocalStore, error) {
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(base, dirPermissionBits); err != nil {
		return nil, err
	}

	return &LocalStore{
		base: base,
	}, nil
}

// Base returns the absolute directory the store is rooted at.
func (s *LocalStore) Base() string { return s.base }

func (s *LocalStore) Type() string { return LocalStoreType }

func (s *LocalStore) Get(key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.base, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotfound, key)
	}
	return f, err
}

func (s *LocalStore) Put(key string, val io.Reader) error {
	path := filepath.Join(s.base, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), dirPermissionBits); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, val); err != nil {
		return err
	}
	if c, ok := val.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *LocalStore) Keys(prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

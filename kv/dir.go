// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// dirStore keeps one file per key inside a directory, e.g. blocks/b12 and blocks/l12.
// Keys must be valid file names. Values are written atomically.
type dirStore struct {
	dir string
}

// NewDirStore opens, creating if needed, a directory backed store.
func NewDirStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create store dir")
	}
	return &dirStore{dir: dir}, nil
}

func (s *dirStore) path(key []byte) (string, error) {
	if len(key) == 0 {
		return "", errors.New("kv: empty key")
	}
	for _, c := range key {
		ok := c == '-' || c == '_' || c == '.' ||
			(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !ok {
			return "", errors.Errorf("kv: key %q is not a file name", key)
		}
	}
	if key[0] == '.' {
		return "", errors.Errorf("kv: key %q is not a file name", key)
	}
	return filepath.Join(s.dir, string(key)), nil
}

func (s *dirStore) Get(key []byte) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *dirStore) Has(key []byte) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *dirStore) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func (s *dirStore) Put(key, val []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	return renameio.WriteFile(p, val, 0o600)
}

func (s *dirStore) Delete(key []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// NewBatch returns a batch whose ops are applied in order on Write. It is not atomic across keys.
func (s *dirStore) NewBatch() Batch {
	return &opBatch{apply: func(ops []op) error {
		for _, o := range ops {
			var err error
			if o.del {
				err = s.Delete(o.key)
			} else {
				err = s.Put(o.key, o.val)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}}
}

func (s *dirStore) Iterate(r Range) Iterator {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return &sliceIter{pos: -1, err: err}
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && inRange([]byte(e.Name()), r) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	it := &sliceIter{pos: -1}
	for _, name := range names {
		val, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			it.err = err
			break
		}
		it.keys = append(it.keys, []byte(name))
		it.vals = append(it.vals, val)
	}
	return it
}

func (s *dirStore) Close() error { return nil }

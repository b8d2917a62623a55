package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const fileExt = ".yaml"

// FileStore keeps one YAML document per object in a directory.
type FileStore struct {
	dir    string
	loaded loadedSet
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, url.PathEscape(name)+fileExt)
}

func (s *FileStore) Save(_ context.Context, obj *Object) error {
	data, err := yaml.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", obj.Name, err)
	}

	// 임시 파일에 쓴 뒤 교체
	tmp, err := os.CreateTemp(s.dir, ".save-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(obj.Name)); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	s.loaded.add(obj.Name)
	return nil
}

func (s *FileStore) Load(_ context.Context, name string) (*Object, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	obj := &Object{}
	if err := yaml.Unmarshal(data, obj); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	s.loaded.add(name)
	return obj, nil
}

func (s *FileStore) Remove(_ context.Context, name string) error {
	s.loaded.remove(name)
	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) ObjectNames(context.Context) ([]string, error) {
	return s.loaded.list(), nil
}

// StoredNames lists every object present in the directory.
func (s *FileStore) StoredNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(e.Name(), fileExt))
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

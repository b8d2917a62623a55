package persistence

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var ErrNotFound = errors.New("persistent object not found")

// Object is the stored form of a named persistent object.
type Object struct {
	Name       string         `yaml:"name"`
	Version    uint32         `yaml:"version"`
	Attributes map[string]any `yaml:"attributes"`
	UpdatedAt  time.Time      `yaml:"updated_at"`
}

// Store saves, loads and removes named objects.
type Store interface {
	Save(ctx context.Context, obj *Object) error
	Load(ctx context.Context, name string) (*Object, error)
	Remove(ctx context.Context, name string) error
	// ObjectNames lists the objects saved or loaded through this store.
	ObjectNames(ctx context.Context) ([]string, error)
}

// loadedSet tracks the names a store currently holds in memory.
type loadedSet struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func (s *loadedSet) add(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names == nil {
		s.names = make(map[string]struct{})
	}
	s.names[name] = struct{}{}
}

func (s *loadedSet) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, name)
}

func (s *loadedSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Nop is a store that keeps nothing.
type Nop struct{}

func (Nop) Save(context.Context, *Object) error           { return nil }
func (Nop) Load(context.Context, string) (*Object, error) { return nil, ErrNotFound }
func (Nop) Remove(context.Context, string) error          { return nil }
func (Nop) ObjectNames(context.Context) ([]string, error) { return nil, nil }

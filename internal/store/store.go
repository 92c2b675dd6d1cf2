package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// KV is the durable key-value storage the cycle timer is persisted in.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// BatchSetter is implemented by stores that can write several keys at once.
// Either every value is stored or none is.
type BatchSetter interface {
	SetMany(values map[string]string) error
}

type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) SetMany(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// File keeps all keys in one JSON document, rewritten atomically on every change.
type File struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

func NewFile(path string) (*File, error) {
	s := &File{path: path, values: make(map[string]string)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *File) load() error {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&s.values); err != nil {
		return fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	return nil
}

func (s *File) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *File) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	s.values[key] = value
	if err := s.save(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

func (s *File) SetMany(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string]string, len(s.values))
	for k, v := range s.values {
		prev[k] = v
	}
	for k, v := range values {
		s.values[k] = v
	}
	if err := s.save(); err != nil {
		s.values = prev
		return err
	}
	return nil
}

func (s *File) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	if !had {
		return nil
	}
	delete(s.values, key)
	if err := s.save(); err != nil {
		s.values[key] = prev
		return err
	}
	return nil
}

func (s *File) save() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.values); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, s.path)
}

package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists entities as a single JSON document. Every mutation
// rewrites the file atomically, which is fine at the scale entities grow.
type FileStore struct {
	mu   sync.Mutex
	path string
	byID map[string]Entity
}

// OpenFile loads the store at path, creating an empty store when the file
// does not exist yet.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, byID: make(map[string]Entity)}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read entity store: %w", err)
	}
	var list []Entity
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse entity store: %w", err)
	}
	for _, entity := range list {
		s.byID[entity.Key()] = entity
	}
	return s, nil
}

func (s *FileStore) Get(entityType, name string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entity, ok := s.byID[entityType+"/"+name]
	if !ok {
		return nil, nil
	}
	return &entity, nil
}

func (s *FileStore) Upsert(entity Entity) (*Entity, error) {
	entity, err := Normalize(entity)
	if err != nil {
		return nil, err
	}
	entity.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[entity.Key()] = entity
	if err := s.flushLocked(); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (s *FileStore) List(entityType string) ([]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []Entity
	for _, entity := range s.byID {
		if entityType == "" || entity.Type == entityType {
			list = append(list, entity)
		}
	}
	sortEntities(list)
	return list, nil
}

func (s *FileStore) Remove(entityType, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityType + "/" + name
	if _, ok := s.byID[key]; !ok {
		return false, nil
	}
	delete(s.byID, key)
	if err := s.flushLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) flushLocked() error {
	list := make([]Entity, 0, len(s.byID))
	for _, entity := range s.byID {
		list = append(list, entity)
	}
	sortEntities(list)
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode entity store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure entity store directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write entity store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace entity store: %w", err)
	}
	return nil
}

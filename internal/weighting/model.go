// Package weighting maintains the entity co-occurrence model used to
// preposition entity context for the transcription engine.
//
// The model is a symmetric pair-count table persisted as JSON, rebuilt
// best-effort at worker startup and updated after each successful item.
package weighting

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Model counts how often entity pairs appear in the same transcript.
type Model struct {
	mu     sync.Mutex
	counts map[string]map[string]int
}

// New returns an empty model.
func New() *Model {
	return &Model{counts: make(map[string]map[string]int)}
}

// Observe records one transcript's entity set, incrementing every pair.
func (m *Model) Observe(entities []string) {
	if len(entities) < 2 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range entities {
		for _, b := range entities[i+1:] {
			if a == b {
				continue
			}
			m.bump(a, b)
			m.bump(b, a)
		}
	}
}

func (m *Model) bump(a, b string) {
	row := m.counts[a]
	if row == nil {
		row = make(map[string]int)
		m.counts[a] = row
	}
	row[b]++
}

// BuildFromCorpus resets the model and replays every entity set.
func (m *Model) BuildFromCorpus(corpus [][]string) {
	m.mu.Lock()
	m.counts = make(map[string]map[string]int)
	m.mu.Unlock()
	for _, entities := range corpus {
		m.Observe(entities)
	}
}

// Related returns up to limit entities most often seen with the given one,
// highest count first.
func (m *Model) Related(entity string, limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.counts[entity]
	if len(row) == 0 || limit <= 0 {
		return nil
	}
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if row[names[i]] != row[names[j]] {
			return row[names[i]] > row[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > limit {
		names = names[:limit]
	}
	return names
}

// Load replaces the model with the persisted state at path. A missing file
// leaves the model empty and returns no error.
func (m *Model) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read weight model: %w", err)
	}
	var counts map[string]map[string]int
	if err := json.Unmarshal(data, &counts); err != nil {
		return fmt.Errorf("parse weight model: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if counts == nil {
		counts = make(map[string]map[string]int)
	}
	m.counts = counts
	return nil
}

// Save writes the model to path atomically.
func (m *Model) Save(path string) error {
	m.mu.Lock()
	data, err := json.MarshalIndent(m.counts, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode weight model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure weight model directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write weight model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace weight model: %w", err)
	}
	return nil
}

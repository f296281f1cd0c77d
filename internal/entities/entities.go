// Package entities stores the named people, projects, terms, and companies
// referenced across transcripts. The store backs the entity:// resource
// space and feeds the weighting model.
package entities

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Valid entity types.
const (
	TypePerson  = "person"
	TypeProject = "project"
	TypeTerm    = "term"
	TypeCompany = "company"
)

// Entity is one named item of shared context.
type Entity struct {
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Key returns the canonical "type/name" identifier for the entity.
func (e Entity) Key() string {
	return e.Type + "/" + e.Name
}

// Store provides persistent entity access.
type Store interface {
	// Get returns the entity, or (nil, nil) when absent.
	Get(entityType, name string) (*Entity, error)
	// Upsert creates or replaces the entity and stamps UpdatedAt.
	Upsert(entity Entity) (*Entity, error)
	// List returns all entities of the given type, name order. An empty
	// type returns everything.
	List(entityType string) ([]Entity, error)
	// Remove deletes the entity, reporting whether it existed.
	Remove(entityType, name string) (bool, error)
}

// ValidType reports whether entityType is one of the known kinds.
func ValidType(entityType string) bool {
	switch entityType {
	case TypePerson, TypeProject, TypeTerm, TypeCompany:
		return true
	}
	return false
}

// Normalize validates and canonicalizes an entity prior to storage.
func Normalize(entity Entity) (Entity, error) {
	entity.Type = strings.ToLower(strings.TrimSpace(entity.Type))
	entity.Name = strings.TrimSpace(entity.Name)
	if !ValidType(entity.Type) {
		return Entity{}, fmt.Errorf("unknown entity type %q", entity.Type)
	}
	if entity.Name == "" {
		return Entity{}, fmt.Errorf("entity name is required")
	}
	if strings.Contains(entity.Name, "/") {
		return Entity{}, fmt.Errorf("entity name %q may not contain '/'", entity.Name)
	}
	return entity, nil
}

func sortEntities(list []Entity) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Type != list[j].Type {
			return list[i].Type < list[j].Type
		}
		return list[i].Name < list[j].Name
	})
}

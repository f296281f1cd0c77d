package entities

import (
	"path/filepath"
	"testing"
)

func TestUpsertGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.json")
	store, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}

	stored, err := store.Upsert(Entity{
		Type:       TypePerson,
		Name:       "alice",
		Attributes: map[string]string{"role": "staff engineer"},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if stored.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be stamped")
	}

	got, err := store.Get(TypePerson, "alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.Attributes["role"] != "staff engineer" {
		t.Fatalf("unexpected entity: %+v", got)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err = reopened.Get(TypePerson, "alice")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got == nil {
		t.Fatal("entity lost across reopen")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store, err := OpenFile(filepath.Join(t.TempDir(), "entities.json"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	got, err := store.Get(TypeProject, "absent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing entity, got %+v", got)
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	store, err := OpenFile(filepath.Join(t.TempDir(), "entities.json"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if _, err := store.Upsert(Entity{Type: "planet", Name: "mars"}); err == nil {
		t.Fatal("expected unknown type to be rejected")
	}
	if _, err := store.Upsert(Entity{Type: TypeTerm, Name: " "}); err == nil {
		t.Fatal("expected blank name to be rejected")
	}
	if _, err := store.Upsert(Entity{Type: TypeTerm, Name: "a/b"}); err == nil {
		t.Fatal("expected slash in name to be rejected")
	}
}

func TestListFiltersByType(t *testing.T) {
	store, err := OpenFile(filepath.Join(t.TempDir(), "entities.json"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	for _, e := range []Entity{
		{Type: TypePerson, Name: "bob"},
		{Type: TypePerson, Name: "alice"},
		{Type: TypeProject, Name: "apollo"},
	} {
		if _, err := store.Upsert(e); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	people, err := store.List(TypePerson)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(people) != 2 || people[0].Name != "alice" || people[1].Name != "bob" {
		t.Fatalf("unexpected person list: %+v", people)
	}

	all, err := store.List("")
	if err != nil {
		t.Fatalf("List all failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(all))
	}
}

func TestRemove(t *testing.T) {
	store, err := OpenFile(filepath.Join(t.TempDir(), "entities.json"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if _, err := store.Upsert(Entity{Type: TypeCompany, Name: "initech"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	removed, err := store.Remove(TypeCompany, "initech")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed {
		t.Fatal("expected removal of existing entity")
	}
	removed, err = store.Remove(TypeCompany, "initech")
	if err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}
	if removed {
		t.Fatal("expected second removal to report absence")
	}
}

package resweep

import (
	"testing"
)

func TestRegistry_InsertAndGet(t *testing.T) {
	r := newRegistry()

	overwrote := r.insert(&Resource{ID: "db", Type: ResourceDatabase})
	if overwrote {
		t.Error("first insert reported overwrote=true")
	}
	if r.size() != 1 {
		t.Errorf("size = %d, want 1", r.size())
	}

	res, ok := r.get("db")
	if !ok {
		t.Fatal("get failed for registered resource")
	}
	if res.Type != ResourceDatabase {
		t.Errorf("type = %q, want %q", res.Type, ResourceDatabase)
	}
	if res.CreatedAt.IsZero() {
		t.Error("CreatedAt was not stamped")
	}
}

func TestRegistry_InsertOverwrites(t *testing.T) {
	r := newRegistry()

	r.insert(&Resource{ID: "srv", Priority: 1})
	overwrote := r.insert(&Resource{ID: "srv", Priority: 9})
	if !overwrote {
		t.Error("second insert reported overwrote=false")
	}
	if r.size() != 1 {
		t.Errorf("size = %d, want 1", r.size())
	}

	res, _ := r.get("srv")
	if res.Priority != 9 {
		t.Errorf("priority = %d, want 9", res.Priority)
	}
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	r := newRegistry()
	for _, id := range []string{"c", "a", "b"} {
		r.insert(&Resource{ID: id})
	}

	var got []string
	for _, res := range r.list() {
		got = append(got, res.ID)
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list order = %v, want %v", got, want)
		}
	}
}

func TestRegistry_ListReturnsCopies(t *testing.T) {
	r := newRegistry()
	r.insert(&Resource{ID: "x", Priority: 1})

	list := r.list()
	list[0].Priority = 99

	res, _ := r.get("x")
	if res.Priority != 1 {
		t.Errorf("mutating a listed copy changed the registry: priority = %d", res.Priority)
	}
}

func TestRegistry_ListByType(t *testing.T) {
	r := newRegistry()
	r.insert(&Resource{ID: "d1", Type: ResourceDatabase})
	r.insert(&Resource{ID: "t1", Type: ResourceTimer})
	r.insert(&Resource{ID: "d2", Type: ResourceDatabase})

	dbs := r.listByType(ResourceDatabase)
	if len(dbs) != 2 {
		t.Fatalf("len = %d, want 2", len(dbs))
	}
	if dbs[0].ID != "d1" || dbs[1].ID != "d2" {
		t.Errorf("order = [%s %s], want [d1 d2]", dbs[0].ID, dbs[1].ID)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := newRegistry()
	r.insert(&Resource{ID: "gone"})

	if !r.remove("gone") {
		t.Error("remove returned false for existing resource")
	}
	if r.remove("gone") {
		t.Error("remove returned true for absent resource")
	}
	if r.size() != 0 {
		t.Errorf("size = %d, want 0", r.size())
	}
}

func TestRegistry_Clear(t *testing.T) {
	r := newRegistry()
	r.insert(&Resource{ID: "a"})
	r.insert(&Resource{ID: "b"})

	r.clear()
	if r.size() != 0 {
		t.Errorf("size = %d, want 0", r.size())
	}

	// Sequence numbering keeps advancing across clears so ordering stays
	// stable for the life of the registry.
	r.insert(&Resource{ID: "c"})
	if got := r.list(); len(got) != 1 || got[0].ID != "c" {
		t.Errorf("post-clear list = %v", got)
	}
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestPersistentStore(t *testing.T) *PersistentStore {
	t.Helper()
	dir := t.TempDir()
	s := NewPersistentStore(PersistentStoreOptions{BaseDir: dir, CacheMaxCount: 10})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestPersistentStoreInsertGetRoundTrip(t *testing.T) {
	s := newTestPersistentStore(t)
	ctx := context.Background()

	inserted, err := s.Insert(ctx, "users", &Document{ID: "u1", Data: Data{"name": "ana"}})
	if err != nil {
		t.Fatal(err)
	}
	if inserted.Version != 1 {
		t.Fatalf("Version = %d, want 1", inserted.Version)
	}

	got, err := s.Get(ctx, "users", "u1")
	if err != nil || got == nil {
		t.Fatalf("Get failed: %v, %v", got, err)
	}
	if got.Data["name"] != "ana" {
		t.Fatalf("unexpected data: %+v", got.Data)
	}
}

func TestPersistentStoreWritesFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	s := NewPersistentStore(PersistentStoreOptions{BaseDir: dir})
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(ctx, "users", &Document{ID: "u:1", Data: Data{}}); err != nil {
		t.Fatal(err)
	}

	path := s.docPath("users", "u:1")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %q: %v", path, err)
	}
	if filepath.Ext(path) != ".json" {
		t.Fatalf("unexpected extension: %s", path)
	}
	// Colon is not filename-safe and must be escaped in the path.
	if filepath.Base(path) == "u:1.json" {
		t.Fatal("id with colon was not escaped in filename")
	}
}

func TestPersistentStoreRecoversOnInitialize(t *testing.T) {
	dir := t.TempDir()
	s1 := NewPersistentStore(PersistentStoreOptions{BaseDir: dir})
	ctx := context.Background()
	if err := s1.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s1.Insert(ctx, "users", &Document{ID: "u1", Data: Data{"n": int64(1)}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s1.Update(ctx, "users", &Document{ID: "u1", Data: Data{"n": int64(2)}}); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2 := NewPersistentStore(PersistentStoreOptions{BaseDir: dir})
	if err := s2.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	got, err := s2.Get(ctx, "users", "u1")
	if err != nil || got == nil {
		t.Fatalf("expected recovered document, got %v, %v", got, err)
	}
	if got.Version != 2 {
		t.Fatalf("recovered Version = %d, want 2 (continued from disk, not reset)", got.Version)
	}
	if got.Data["n"] != int64(2) {
		t.Fatalf("recovered data = %+v, want int64(2) (numeric precision preserved across the JSON round trip)", got.Data)
	}
}

func TestDataJSONRoundTripPreservesVariantTypes(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	d := Data{
		"count":   int64(42),
		"ratio":   1.5,
		"price":   Decimal("19.99"),
		"when":    ts,
		"name":    "widget",
		"active":  true,
		"missing": nil,
		"tags":    []interface{}{"a", "b"},
		"nested":  Data{"inner": int64(7)},
	}
	doc := &Document{ID: "d1", Data: d}

	raw, err := doc.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DeserializeDocument(raw)
	if err != nil {
		t.Fatal(err)
	}

	if v, ok := got.Data["count"].(int64); !ok || v != 42 {
		t.Fatalf("count = %#v, want int64(42)", got.Data["count"])
	}
	if v, ok := got.Data["ratio"].(float64); !ok || v != 1.5 {
		t.Fatalf("ratio = %#v, want float64(1.5)", got.Data["ratio"])
	}
	if v, ok := got.Data["price"].(Decimal); !ok || v != Decimal("19.99") {
		t.Fatalf("price = %#v, want Decimal(19.99)", got.Data["price"])
	}
	if v, ok := got.Data["when"].(time.Time); !ok || !v.Equal(ts) {
		t.Fatalf("when = %#v, want %v", got.Data["when"], ts)
	}
	if v, ok := got.Data["nested"].(Data); !ok || v["inner"] != int64(7) {
		t.Fatalf("nested = %#v, want Data{inner: int64(7)}", got.Data["nested"])
	}
}

func TestPersistentStoreUpdateMissingFails(t *testing.T) {
	s := newTestPersistentStore(t)
	_, err := s.Update(context.Background(), "users", &Document{ID: "ghost", Data: Data{}})
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestPersistentStoreInsertDuplicateFails(t *testing.T) {
	s := newTestPersistentStore(t)
	ctx := context.Background()
	if _, err := s.Insert(ctx, "users", &Document{ID: "u1", Data: Data{}}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Insert(ctx, "users", &Document{ID: "u1", Data: Data{}})
	if KindOf(err) != KindDuplicateID {
		t.Fatalf("expected DuplicateID, got %v", err)
	}
}

func TestPersistentStoreCorruptFileSurfacesOnGetButIsNotDeleted(t *testing.T) {
	dir := t.TempDir()
	s := NewPersistentStore(PersistentStoreOptions{BaseDir: dir})
	ctx := context.Background()
	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	collDir := filepath.Join(dir, "users")
	if err := os.MkdirAll(collDir, 0o755); err != nil {
		t.Fatal(err)
	}
	badPath := filepath.Join(collDir, "broken.json")
	if err := os.WriteFile(badPath, []byte("{not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Get(ctx, "users", "broken")
	if KindOf(err) != KindCorrupt {
		t.Fatalf("expected Corrupt, got %v", err)
	}
	if _, statErr := os.Stat(badPath); statErr != nil {
		t.Fatal("corrupt file must not be deleted by a failed Get")
	}
}

func TestPersistentStoreDeleteRemovesFileAndCacheEntry(t *testing.T) {
	s := newTestPersistentStore(t)
	ctx := context.Background()
	if _, err := s.Insert(ctx, "users", &Document{ID: "u1", Data: Data{}}); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Delete(ctx, "users", "u1")
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}

	got, err := s.Get(ctx, "users", "u1")
	if err != nil || got != nil {
		t.Fatalf("expected nil after delete, got %v, %v", got, err)
	}

	ok, err = s.Delete(ctx, "users", "u1")
	if err != nil || ok {
		t.Fatalf("second delete should report false, got ok=%v err=%v", ok, err)
	}
}

func TestPersistentStoreEmptyCollectionIsObservable(t *testing.T) {
	s := newTestPersistentStore(t)
	docs, err := s.GetAll(context.Background(), "nothing-here")
	if err != nil || len(docs) != 0 {
		t.Fatalf("expected empty slice, got %v, err=%v", docs, err)
	}
}

func TestPersistentStoreGetAllCountAfterInsertUpdate(t *testing.T) {
	s := newTestPersistentStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.Insert(ctx, "items", &Document{ID: id, Data: Data{}}); err != nil {
			t.Fatal(err)
		}
	}
	count, err := s.Count(ctx, "items")
	if err != nil || count != 3 {
		t.Fatalf("Count = %d, err=%v", count, err)
	}
	all, err := s.GetAll(ctx, "items")
	if err != nil || len(all) != 3 {
		t.Fatalf("GetAll length = %d, err=%v", len(all), err)
	}
}

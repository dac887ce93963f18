package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kartikbazzad/bunstore/storage"
	"github.com/kartikbazzad/bunstore/wire"
)

func newBulkTestEngine(t *testing.T) (*Engine, *storage.PersistentStore) {
	t.Helper()
	store := storage.NewPersistentStore(storage.PersistentStoreOptions{BaseDir: t.TempDir()})
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)
	return NewEngine(store, store.GetAll), store
}

func TestRunBulkMixedOpsContinuesOnError(t *testing.T) {
	e, _ := newBulkTestEngine(t)
	ctx := context.Background()

	req := wire.BulkRequest{
		Collection:  "users",
		StopOnError: false,
		Operations: []wire.BulkOperation{
			{Type: wire.BulkInsert, Document: json.RawMessage(`{"id":"u1","data":{}}`)},
			{Type: wire.BulkUpdate, DocumentID: "missing"},
			{Type: wire.BulkInsert, Document: json.RawMessage(`{"id":"u2","data":{}}`)},
		},
	}

	resp := e.RunBulk(ctx, req)
	if resp.TotalProcessed != 3 {
		t.Fatalf("TotalProcessed = %d, want 3", resp.TotalProcessed)
	}
	if resp.InsertedCount != 2 {
		t.Fatalf("InsertedCount = %d, want 2", resp.InsertedCount)
	}
	if resp.UpdatedCount != 0 {
		t.Fatalf("UpdatedCount = %d, want 0", resp.UpdatedCount)
	}
	if resp.Success {
		t.Fatal("Success should be false when any operation fails")
	}
	if len(resp.Results) != 3 {
		t.Fatalf("Results length = %d, want 3", len(resp.Results))
	}
	if resp.Results[1].Success {
		t.Fatal("Results[1] should have failed")
	}
	if resp.Results[1].ErrorCode != string(storage.KindNotFound) {
		t.Fatalf("Results[1].ErrorCode = %q, want %q", resp.Results[1].ErrorCode, storage.KindNotFound)
	}
}

func TestRunBulkStopOnError(t *testing.T) {
	e, _ := newBulkTestEngine(t)
	ctx := context.Background()

	req := wire.BulkRequest{
		Collection:  "users",
		StopOnError: true,
		Operations: []wire.BulkOperation{
			{Type: wire.BulkDelete, DocumentID: "missing"},
			{Type: wire.BulkInsert, Document: json.RawMessage(`{"id":"u1","data":{}}`)},
		},
	}

	resp := e.RunBulk(ctx, req)
	if resp.TotalProcessed != 1 {
		t.Fatalf("TotalProcessed = %d, want 1 (stopOnError should abort the rest)", resp.TotalProcessed)
	}
	if resp.InsertedCount != 0 {
		t.Fatalf("InsertedCount = %d, want 0", resp.InsertedCount)
	}
}

func TestRunBulkUpdateMergesFields(t *testing.T) {
	e, store := newBulkTestEngine(t)
	ctx := context.Background()

	if _, err := store.Insert(ctx, "users", &storage.Document{ID: "u1", Data: storage.Data{"age": int64(30), "name": "ana"}}); err != nil {
		t.Fatal(err)
	}

	req := wire.BulkRequest{
		Collection: "users",
		Operations: []wire.BulkOperation{
			{Type: wire.BulkUpdate, DocumentID: "u1", UpdateFields: json.RawMessage(`{"age":31}`)},
		},
	}
	resp := e.RunBulk(ctx, req)
	if resp.UpdatedCount != 1 {
		t.Fatalf("UpdatedCount = %d, want 1", resp.UpdatedCount)
	}

	got, err := store.Get(ctx, "users", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Data["age"].(int64) != 31 || got.Data["name"] != "ana" {
		t.Fatalf("unexpected merged data: %+v", got.Data)
	}
	if got.Version != 2 {
		t.Fatalf("Version = %d, want 2", got.Version)
	}
}

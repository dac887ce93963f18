package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kartikbazzad/bunstore/storage"
	"github.com/kartikbazzad/bunstore/wire"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := storage.NewPersistentStore(storage.PersistentStoreOptions{BaseDir: t.TempDir()})
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)
	return NewEngine(store, store.GetAll)
}

func TestDispatchSetThenGet(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	setResp, err := e.Dispatch(ctx, wire.Command{
		Command:    wire.CmdSet,
		Collection: "users",
		Document:   json.RawMessage(`{"id":"u1","data":{"age":30}}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if setResp.Document.Version != 1 {
		t.Fatalf("Version = %d, want 1", setResp.Document.Version)
	}

	getResp, err := e.Dispatch(ctx, wire.Command{Command: wire.CmdGet, Collection: "users", ID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if getResp.Document == nil || getResp.Document.Data["age"].(int64) != 30 {
		t.Fatalf("unexpected get response: %+v", getResp.Document)
	}
}

func TestDispatchSetUpserts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	doc := json.RawMessage(`{"id":"u1","data":{"age":30}}`)
	if _, err := e.Dispatch(ctx, wire.Command{Command: wire.CmdSet, Collection: "users", Document: doc}); err != nil {
		t.Fatal(err)
	}
	doc2 := json.RawMessage(`{"id":"u1","data":{"age":31}}`)
	resp, err := e.Dispatch(ctx, wire.Command{Command: wire.CmdSet, Collection: "users", Document: doc2})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Document.Version != 2 {
		t.Fatalf("Version = %d, want 2 on upsert", resp.Document.Version)
	}
}

func TestDispatchDeleteAndExists(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	doc := json.RawMessage(`{"id":"u1","data":{}}`)
	if _, err := e.Dispatch(ctx, wire.Command{Command: wire.CmdSet, Collection: "users", Document: doc}); err != nil {
		t.Fatal(err)
	}

	existsResp, err := e.Dispatch(ctx, wire.Command{Command: wire.CmdExists, Collection: "users", ID: "u1"})
	if err != nil || !*existsResp.Exists {
		t.Fatalf("expected exists=true, err=%v", err)
	}

	delResp, err := e.Dispatch(ctx, wire.Command{Command: wire.CmdDelete, Collection: "users", ID: "u1"})
	if err != nil || !*delResp.Deleted {
		t.Fatalf("expected deleted=true, err=%v", err)
	}

	existsResp2, _ := e.Dispatch(ctx, wire.Command{Command: wire.CmdExists, Collection: "users", ID: "u1"})
	if *existsResp2.Exists {
		t.Fatal("expected exists=false after delete")
	}
}

func TestDispatchQueryFilterSortLimit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	ages := []int{17, 20, 40, 70}
	for i, age := range ages {
		doc := json.RawMessage(`{"id":"u` + string(rune('0'+i)) + `","data":{"age":` + itoa(age) + `}}`)
		if _, err := e.Dispatch(ctx, wire.Command{Command: wire.CmdSet, Collection: "users", Document: doc}); err != nil {
			t.Fatal(err)
		}
	}

	q := json.RawMessage(`{"filter":{"age":{"$gte":18,"$lte":65}},"sort":[{"age":-1}],"options":{"limit":2}}`)
	resp, err := e.Dispatch(ctx, wire.Command{Command: wire.CmdQuery, Collection: "users", Query: q})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Documents) != 2 {
		t.Fatalf("got %d documents, want 2", len(resp.Documents))
	}
	if resp.Documents[0].Data["age"].(int64) != 40 || resp.Documents[1].Data["age"].(int64) != 20 {
		t.Fatalf("unexpected order: %+v", resp.Documents)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Dispatch(context.Background(), wire.Command{Command: "frobnicate", Collection: "users"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

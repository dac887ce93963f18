// Package server hosts the TCP front end: the wire-framed accept loop,
// single-command dispatch, and the bulk operation pipeline, all built
// directly on the storage and query packages.
package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kartikbazzad/bunstore/query"
	"github.com/kartikbazzad/bunstore/storage"
)

// Engine is the capability the server needs from the document store: the
// single-document CRUD surface plus a query executor over the same
// backing store. *storage.PersistentStore satisfies DocumentStore
// directly.
type Engine struct {
	Store    DocumentStore
	Executor *query.Executor
}

// DocumentStore is the subset of storage.PersistentStore the server
// dispatches commands against (the in-memory storage.DocumentStore's Get
// returns an extra "found" bool and so is adapted separately if ever
// wired in directly — production always runs against PersistentStore).
type DocumentStore interface {
	Insert(ctx context.Context, collection string, doc *storage.Document) (*storage.Document, error)
	Update(ctx context.Context, collection string, doc *storage.Document) (*storage.Document, error)
	Get(ctx context.Context, collection, id string) (*storage.Document, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
	Exists(ctx context.Context, collection, id string) (bool, error)
}

// NewEngine builds an Engine over store, wiring a query.Executor against
// the same store for "query" commands.
func NewEngine(store DocumentStore, getAll GetAllFunc) *Engine {
	return &Engine{Store: store, Executor: query.NewExecutor(getAllAdapter{getAll})}
}

// GetAllFunc is the executor's Load-stage dependency: list every document
// in a collection. storage.PersistentStore.GetAll and
// storage.DocumentStore.GetAll both satisfy this signature directly.
type GetAllFunc func(ctx context.Context, collection string) ([]*storage.Document, error)

type getAllAdapter struct{ fn GetAllFunc }

func (a getAllAdapter) GetAll(ctx context.Context, collection string) ([]*storage.Document, error) {
	return a.fn(ctx, collection)
}

// decodeDocument decodes raw JSON document bytes ({id, data}) into a
// Document, using fallbackID when the body carries no id. It does not
// touch the store; Set performs the insert-or-update.
func decodeDocument(raw json.RawMessage, fallbackID string) (*storage.Document, error) {
	var body struct {
		ID   string          `json:"id"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, storage.ErrParse(fmt.Sprintf("malformed document body: %v", err))
	}
	id := body.ID
	if id == "" {
		id = fallbackID
	}
	if id == "" {
		return nil, storage.ErrParse("document is missing an id")
	}

	var data storage.Data
	if len(body.Data) > 0 {
		if err := json.Unmarshal(body.Data, &data); err != nil {
			return nil, storage.ErrParse(fmt.Sprintf("malformed document data: %v", err))
		}
	} else {
		data = storage.Data{}
	}
	return &storage.Document{ID: id, Data: data}, nil
}

// Set performs an upsert: Insert if the id is new, Update otherwise.
func (e *Engine) Set(ctx context.Context, collection string, doc *storage.Document) (*storage.Document, error) {
	exists, err := e.Store.Exists(ctx, collection, doc.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return e.Store.Update(ctx, collection, doc)
	}
	return e.Store.Insert(ctx, collection, doc)
}

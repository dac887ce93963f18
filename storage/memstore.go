package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock abstracts time so stores are testable without sleeping, mirroring
// the spec's §1 "the core consumes only three external capabilities: a
// byte-framed request/response channel, a clock, and a filesystem
// namespace".
type Clock func() time.Time

// collectionShard holds one collection's documents behind its own mutex,
// so writes in different collections never contend and no cross-collection
// lock is ever held at once (spec §5: "deadlock impossible by construction").
type collectionShard struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// DocumentStore is the in-memory collection map described in spec §4.3.
// All operations are safe for concurrent use; writes within a collection
// are serialised by that collection's lock, reads take the shared lock.
type DocumentStore struct {
	mu          sync.RWMutex // protects the shards map itself, not its contents
	shards      map[string]*collectionShard
	now         Clock
}

// NewDocumentStore creates an empty in-memory store.
func NewDocumentStore(now Clock) *DocumentStore {
	if now == nil {
		now = time.Now
	}
	return &DocumentStore{shards: make(map[string]*collectionShard), now: now}
}

func (s *DocumentStore) shard(collection string) *collectionShard {
	s.mu.RLock()
	sh, ok := s.shards[collection]
	s.mu.RUnlock()
	if ok {
		return sh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok = s.shards[collection]; ok {
		return sh
	}
	sh = &collectionShard{docs: make(map[string]*Document)}
	s.shards[collection] = sh
	return sh
}

// Insert creates a new document. Fails with DuplicateID if (collection, id)
// already exists. createdAt/updatedAt are set to now and version to 1,
// regardless of whatever metadata the caller's Document carries.
func (s *DocumentStore) Insert(ctx context.Context, collection string, doc *Document) (*Document, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		return nil, ErrParse("document id must be non-empty")
	}

	sh := s.shard(collection)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.docs[doc.ID]; exists {
		return nil, ErrDuplicateID(fmt.Sprintf("document %q already exists in collection %q", doc.ID, collection))
	}

	now := s.now()
	stored := &Document{
		ID:        doc.ID,
		Data:      doc.Data.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	sh.docs[doc.ID] = stored
	return stored.Clone(), nil
}

// Update mutates an existing document. Fails with NotFound if missing.
// CreatedAt is preserved, updatedAt is bumped to now, and version is
// incremented — the caller's CreatedAt/Version are ignored.
func (s *DocumentStore) Update(ctx context.Context, collection string, doc *Document) (*Document, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	sh := s.shard(collection)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	existing, ok := sh.docs[doc.ID]
	if !ok {
		return nil, ErrNotFound(fmt.Sprintf("document %q not found in collection %q", doc.ID, collection))
	}

	now := s.now()
	updated := &Document{
		ID:        doc.ID,
		Data:      doc.Data.Clone(),
		CreatedAt: existing.CreatedAt,
		UpdatedAt: now,
		Version:   existing.Version + 1,
	}
	sh.docs[doc.ID] = updated
	return updated.Clone(), nil
}

// Get returns a copy of the document, or (nil, false) if absent.
func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*Document, bool, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, false, err
	}
	sh := s.shard(collection)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	d, ok := sh.docs[id]
	if !ok {
		return nil, false, nil
	}
	return d.Clone(), true, nil
}

// Delete removes a document, reporting whether it was present.
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	sh := s.shard(collection)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.docs[id]; !ok {
		return false, nil
	}
	delete(sh.docs, id)
	return true, nil
}

// Exists reports whether (collection, id) has a live document.
func (s *DocumentStore) Exists(ctx context.Context, collection, id string) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	sh := s.shard(collection)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.docs[id]
	return ok, nil
}

// GetAll returns copies of every document in collection. An unreferenced
// collection is observably empty rather than an error.
func (s *DocumentStore) GetAll(ctx context.Context, collection string) ([]*Document, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	sh := s.shard(collection)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	out := make([]*Document, 0, len(sh.docs))
	for _, d := range sh.docs {
		out = append(out, d.Clone())
	}
	return out, nil
}

// Count returns the number of documents in collection.
func (s *DocumentStore) Count(ctx context.Context, collection string) (int, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	sh := s.shard(collection)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.docs), nil
}

func checkCtx(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrTimedOut("operation deadline exceeded")
		}
		return ErrCancelled("operation cancelled")
	default:
		return nil
	}
}

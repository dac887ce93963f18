package query

import (
	"context"
	"sort"
	"strings"

	"github.com/kartikbazzad/bunstore/storage"
)

// Store is the capability the executor needs from whatever holds
// documents; both storage.DocumentStore and storage.PersistentStore
// satisfy it.
type Store interface {
	GetAll(ctx context.Context, collection string) ([]*storage.Document, error)
}

// FieldIndex lets the executor skip a full collection scan when the
// filter contains a leaf on an indexed field. The index stores the
// string form of the field's value as the key, so it only accelerates
// equality and range comparisons against string-valued fields — richer
// key types would need one BTreeIndex instantiation per Go type, which
// the executor has no way to pick at runtime from a JSON-typed operand.
type FieldIndex struct {
	Field string
	Tree  *storage.BTreeIndex[string, *storage.Document]
}

// Result is the outcome of one Execute call.
type Result struct {
	Documents  []*storage.Document
	TotalCount int
	HasTotal   bool
}

// Executor runs the Load -> Filter -> Sort -> Skip -> Limit -> Project
// pipeline.
type Executor struct {
	store   Store
	indexes map[string]*FieldIndex
}

// NewExecutor builds an executor backed by store, optionally accelerated
// by one or more FieldIndexes.
func NewExecutor(store Store, indexes ...*FieldIndex) *Executor {
	byField := make(map[string]*FieldIndex, len(indexes))
	for _, idx := range indexes {
		byField[idx.Field] = idx
	}
	return &Executor{store: store, indexes: byField}
}

// Execute runs the full pipeline for q. If q.Options.Timeout is positive,
// the pipeline is cancelled at each stage boundary once the deadline
// passes, returning TimedOut with no partial results.
func (e *Executor) Execute(ctx context.Context, q *Query) (*Result, error) {
	var cancel context.CancelFunc
	if q.Options.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.Options.Timeout)
		defer cancel()
	}

	docs, err := e.load(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	filtered := make([]*storage.Document, 0, len(docs))
	for _, d := range docs {
		if Matches(d, q.Filter) {
			filtered = append(filtered, d)
		}
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	sortDocuments(filtered, q.Sort)
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	total := len(filtered)
	paged := paginate(filtered, q.Options)
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	projected := make([]*storage.Document, len(paged))
	for i, d := range paged {
		projected[i] = project(d, q.Projection)
	}

	res := &Result{Documents: projected}
	if q.Options.IncludeTotalCount {
		res.TotalCount = total
		res.HasTotal = true
	}
	return res, nil
}

func checkDeadline(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return storage.ErrTimedOut("query execution deadline exceeded")
		}
		return storage.ErrCancelled("query execution cancelled")
	default:
		return nil
	}
}

// load consults a registered index for an equality or range leaf before
// falling back to a full collection scan.
func (e *Executor) load(ctx context.Context, q *Query) ([]*storage.Document, error) {
	if leaf, idx, ok := e.findIndexable(q.Filter); ok {
		return indexLookup(idx, leaf), nil
	}
	return e.store.GetAll(ctx, q.Collection)
}

func (e *Executor) findIndexable(n Node) (*Leaf, *FieldIndex, bool) {
	switch v := n.(type) {
	case *Leaf:
		if idx, ok := e.indexes[v.Field]; ok {
			switch v.Operator {
			case OpEq, OpGt, OpGte, OpLt, OpLte:
				if _, isString := v.Operand.(string); isString {
					return v, idx, true
				}
			}
		}
		return nil, nil, false
	case *And:
		for _, child := range v.Children {
			if leaf, idx, ok := e.findIndexable(child); ok {
				return leaf, idx, true
			}
		}
	}
	return nil, nil, false
}

func indexLookup(idx *FieldIndex, leaf *Leaf) []*storage.Document {
	operand := leaf.Operand.(string)
	switch leaf.Operator {
	case OpEq:
		return idx.Tree.GetValues(operand)
	case OpGte:
		return values(idx.Tree.RangeQuery(operand, highSentinel))
	case OpGt:
		return values(excludeBound(idx.Tree.RangeQuery(operand, highSentinel), operand))
	case OpLte:
		return values(idx.Tree.RangeQuery(lowSentinel, operand))
	case OpLt:
		return values(excludeBound(idx.Tree.RangeQuery(lowSentinel, operand), operand))
	}
	return nil
}

const (
	lowSentinel  = ""
	highSentinel = "￿￿￿￿"
)

func values(pairs []storage.Pair[string, *storage.Document]) []*storage.Document {
	out := make([]*storage.Document, len(pairs))
	for i, p := range pairs {
		out[i] = p.Value
	}
	return out
}

func excludeBound(pairs []storage.Pair[string, *storage.Document], bound string) []storage.Pair[string, *storage.Document] {
	out := pairs[:0:0]
	for _, p := range pairs {
		if p.Key != bound {
			out = append(out, p)
		}
	}
	return out
}

func sortDocuments(docs []*storage.Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, sf := range fields {
			path := strings.Split(sf.Field, ".")
			vi, pi := docs[i].Get(path)
			vj, pj := docs[j].Get(path)
			cmp := compareForSort(vi, pi, vj, pj, sf.Direction)
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

// compareForSort implements Sybase-style null ordering: null sorts last
// ascending, first descending.
func compareForSort(a interface{}, aPresent bool, b interface{}, bPresent bool, dir SortDirection) int {
	aNull := !aPresent || a == nil
	bNull := !bPresent || b == nil
	if aNull && bNull {
		return 0
	}
	if aNull {
		if dir == Asc {
			return 1
		}
		return -1
	}
	if bNull {
		if dir == Asc {
			return -1
		}
		return 1
	}
	c := compareValues(a, b)
	if dir == Desc {
		c = -c
	}
	return c
}

func paginate(docs []*storage.Document, opts Options) []*storage.Document {
	skip := opts.Skip
	if skip < 0 {
		skip = 0
	}
	if skip >= len(docs) {
		return []*storage.Document{}
	}
	docs = docs[skip:]
	if opts.HasLimit {
		if opts.Limit <= 0 {
			return []*storage.Document{}
		}
		if opts.Limit < len(docs) {
			docs = docs[:opts.Limit]
		}
	}
	return docs
}

// project returns a copy of doc with only the projected fields' top-level
// keys retained. Nested dotted-path projection is not supported; only
// top-level field names are recognised.
func project(doc *storage.Document, proj Projection) *storage.Document {
	if proj.Empty() {
		return doc
	}
	out := doc.Clone()
	filtered := storage.Data{}
	for field, value := range out.Data {
		if proj.Included(field) {
			filtered[field] = value
		}
	}
	out.Data = filtered
	return out
}

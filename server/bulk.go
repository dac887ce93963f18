package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kartikbazzad/bunstore/storage"
	"github.com/kartikbazzad/bunstore/wire"
)

// nowFunc is overridable in tests; production callers leave it at
// time.Now, matching storage.Clock's own seam.
var nowFunc = time.Now

// RunBulk executes req's operations in order: sequential, with
// stopOnError aborting the rest on first failure. Each operation's
// outcome is reported independently by index so a client can tell
// exactly which entries in a mixed insert/update/delete batch
// succeeded.
func (e *Engine) RunBulk(ctx context.Context, req wire.BulkRequest) *wire.BulkResponse {
	start := nowFunc()
	resp := &wire.BulkResponse{Success: true}
	resp.Results = make([]wire.BulkOperationResult, 0, len(req.Operations))

	for i, op := range req.Operations {
		result := wire.BulkOperationResult{Index: i}
		docID, err := e.runBulkOp(ctx, req.Collection, op)
		resp.TotalProcessed++

		if err != nil {
			result.Success = false
			dberr := wire.ErrorFrom(err)
			result.ErrorCode = dberr.ErrorCode
			result.ErrorMessage = dberr.ErrorMessage
			resp.Success = false
			resp.Results = append(resp.Results, result)
			if req.StopOnError {
				break
			}
			continue
		}

		result.Success = true
		result.DocumentID = docID
		switch op.Type {
		case wire.BulkInsert:
			resp.InsertedCount++
		case wire.BulkUpdate:
			resp.UpdatedCount++
		case wire.BulkDelete:
			resp.DeletedCount++
		}
		resp.Results = append(resp.Results, result)
	}

	resp.ProcessingTimeMs = nowFunc().Sub(start).Milliseconds()
	return resp
}

func (e *Engine) runBulkOp(ctx context.Context, collection string, op wire.BulkOperation) (string, error) {
	switch op.Type {
	case wire.BulkInsert:
		doc, err := decodeDocument(op.Document, op.DocumentID)
		if err != nil {
			return "", err
		}
		saved, err := e.Store.Insert(ctx, collection, doc)
		if err != nil {
			return "", err
		}
		return saved.ID, nil

	case wire.BulkUpdate:
		if op.DocumentID == "" {
			return "", storage.ErrParse("update operation requires documentId")
		}
		existing, err := e.Store.Get(ctx, collection, op.DocumentID)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return "", storage.ErrNotFound("document " + op.DocumentID + " not found in collection " + collection)
		}
		merged := existing.Clone()
		if len(op.UpdateFields) > 0 {
			var fields storage.Data
			if err := json.Unmarshal(op.UpdateFields, &fields); err != nil {
				return "", storage.ErrParse("malformed updateFields: " + err.Error())
			}
			for k, v := range fields {
				merged.Data[k] = v
			}
		}
		saved, err := e.Store.Update(ctx, collection, merged)
		if err != nil {
			return "", err
		}
		return saved.ID, nil

	case wire.BulkDelete:
		if op.DocumentID == "" {
			return "", storage.ErrParse("delete operation requires documentId")
		}
		deleted, err := e.Store.Delete(ctx, collection, op.DocumentID)
		if err != nil {
			return "", err
		}
		if !deleted {
			return "", storage.ErrNotFound("document " + op.DocumentID + " not found in collection " + collection)
		}
		return op.DocumentID, nil

	default:
		return "", storage.ErrParse("unknown bulk operation type " + string(op.Type))
	}
}

package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kartikbazzad/bunstore/query"
	"github.com/kartikbazzad/bunstore/storage"
	"github.com/kartikbazzad/bunstore/wire"
)

// Dispatch executes one decoded Command against e and returns the wire
// Response to send back, or an error the caller turns into a wire Error.
func (e *Engine) Dispatch(ctx context.Context, cmd wire.Command) (*wire.Response, error) {
	if cmd.Collection == "" {
		return nil, storage.ErrParse("command is missing a collection name")
	}

	switch cmd.Command {
	case wire.CmdGet:
		return e.dispatchGet(ctx, cmd)
	case wire.CmdSet:
		return e.dispatchSet(ctx, cmd)
	case wire.CmdDelete:
		return e.dispatchDelete(ctx, cmd)
	case wire.CmdExists:
		return e.dispatchExists(ctx, cmd)
	case wire.CmdQuery:
		return e.dispatchQuery(ctx, cmd)
	default:
		return nil, storage.ErrUnsupported(fmt.Sprintf("unknown command %q", cmd.Command))
	}
}

func (e *Engine) dispatchGet(ctx context.Context, cmd wire.Command) (*wire.Response, error) {
	if cmd.ID == "" {
		return nil, storage.ErrParse("get requires an id")
	}
	doc, err := e.Store.Get(ctx, cmd.Collection, cmd.ID)
	if err != nil {
		return nil, err
	}
	return &wire.Response{Document: doc}, nil
}

func (e *Engine) dispatchSet(ctx context.Context, cmd wire.Command) (*wire.Response, error) {
	doc, err := decodeDocument(cmd.Document, cmd.ID)
	if err != nil {
		return nil, err
	}
	saved, err := e.Set(ctx, cmd.Collection, doc)
	if err != nil {
		return nil, err
	}
	return &wire.Response{Document: saved}, nil
}

func (e *Engine) dispatchDelete(ctx context.Context, cmd wire.Command) (*wire.Response, error) {
	if cmd.ID == "" {
		return nil, storage.ErrParse("delete requires an id")
	}
	deleted, err := e.Store.Delete(ctx, cmd.Collection, cmd.ID)
	if err != nil {
		return nil, err
	}
	return &wire.Response{Deleted: &deleted}, nil
}

func (e *Engine) dispatchExists(ctx context.Context, cmd wire.Command) (*wire.Response, error) {
	if cmd.ID == "" {
		return nil, storage.ErrParse("exists requires an id")
	}
	exists, err := e.Store.Exists(ctx, cmd.Collection, cmd.ID)
	if err != nil {
		return nil, err
	}
	return &wire.Response{Exists: &exists}, nil
}

func (e *Engine) dispatchQuery(ctx context.Context, cmd wire.Command) (*wire.Response, error) {
	var body map[string]interface{}
	if len(cmd.Query) > 0 {
		if err := json.Unmarshal(cmd.Query, &body); err != nil {
			return nil, storage.ErrParse(fmt.Sprintf("malformed query body: %v", err))
		}
	} else {
		body = map[string]interface{}{}
	}
	if _, ok := body["collection"]; !ok {
		if _, ok := body["collectionName"]; !ok {
			body["collection"] = cmd.Collection
		}
	}

	q, err := query.ParseObject(body)
	if err != nil {
		return nil, err
	}
	result, err := e.Executor.Execute(ctx, q)
	if err != nil {
		return nil, err
	}
	resp := &wire.Response{Documents: result.Documents}
	if result.HasTotal {
		resp.TotalCount = &result.TotalCount
	}
	return resp, nil
}

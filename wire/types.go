package wire

import (
	"encoding/json"

	"github.com/kartikbazzad/bunstore/storage"
)

// Command is the decoded body of a MessageCommand envelope:
// {command, collection, id?, document?, query?}.
type Command struct {
	Command    string          `json:"command"`
	Collection string          `json:"collection"`
	ID         string          `json:"id,omitempty"`
	Document   json.RawMessage `json:"document,omitempty"`
	Query      json.RawMessage `json:"query,omitempty"`
}

// Known Command.Command values.
const (
	CmdGet    = "get"
	CmdSet    = "set"
	CmdDelete = "delete"
	CmdExists = "exists"
	CmdQuery  = "query"
)

// Error is the wire-level error shape every failure maps to:
// {errorCode, errorMessage}.
type Error struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// ErrorFromKind turns a storage.Kind + message into the wire Error
// envelope.
func ErrorFromKind(kind storage.Kind, message string) Error {
	return Error{ErrorCode: string(kind), ErrorMessage: message}
}

// ErrorFrom turns any error into a wire Error, classifying it through
// storage.KindOf when it isn't already a *storage.DBError.
func ErrorFrom(err error) Error {
	return Error{ErrorCode: string(storage.KindOf(err)), ErrorMessage: err.Error()}
}

// Response is the success-path body of a MessageResponse envelope.
type Response struct {
	Document   *storage.Document   `json:"document,omitempty"`
	Documents  []*storage.Document `json:"documents,omitempty"`
	Exists     *bool               `json:"exists,omitempty"`
	Deleted    *bool               `json:"deleted,omitempty"`
	TotalCount *int                `json:"totalCount,omitempty"`
}

// BulkOperationKind is the type tag of one operation inside a bulk request.
type BulkOperationKind string

const (
	BulkInsert BulkOperationKind = "insert"
	BulkUpdate BulkOperationKind = "update"
	BulkDelete BulkOperationKind = "delete"
)

// BulkOperation is one entry in a BulkRequest.operations list.
type BulkOperation struct {
	Type          BulkOperationKind `json:"type"`
	DocumentID    string            `json:"documentId,omitempty"`
	Document      json.RawMessage   `json:"document,omitempty"`
	Filter        json.RawMessage   `json:"filter,omitempty"`
	UpdateFields  json.RawMessage   `json:"updateFields,omitempty"`
}

// BulkRequest is the decoded body of a MessageBulkOperation envelope.
type BulkRequest struct {
	Collection   string          `json:"collection"`
	StopOnError  bool            `json:"stopOnError"`
	Operations   []BulkOperation `json:"operations"`
}

// BulkOperationResult reports the outcome of one operation within a bulk
// request.
type BulkOperationResult struct {
	Index        int    `json:"index"`
	Success      bool   `json:"success"`
	DocumentID   string `json:"documentId,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// BulkResponse is the body of the MessageResponse sent back for a bulk
// request.
type BulkResponse struct {
	Success           bool                   `json:"success"`
	TotalProcessed    int                    `json:"totalProcessed"`
	InsertedCount     int                    `json:"insertedCount"`
	UpdatedCount      int                    `json:"updatedCount"`
	DeletedCount      int                    `json:"deletedCount"`
	ProcessingTimeMs  int64                  `json:"processingTimeMs"`
	Results           []BulkOperationResult  `json:"results"`
}

// HandshakeRequest opens a connection. The server echoes ProtocolVersion
// back in its HandshakeResponse; it does not check the version or reject
// a client over it.
type HandshakeRequest struct {
	ProtocolVersion int    `json:"protocolVersion"`
	ClientName      string `json:"clientName,omitempty"`
}

// HandshakeResponse acknowledges a HandshakeRequest.
type HandshakeResponse struct {
	ProtocolVersion int    `json:"protocolVersion"`
	ServerName      string `json:"serverName,omitempty"`
}

// AuthenticationRequest carries the credential an external auth
// collaborator validates; the core only ever sees whether it passed.
type AuthenticationRequest struct {
	MasterPassword string `json:"masterPassword"`
}

// AuthenticationResponse reports the outcome of an AuthenticationRequest.
type AuthenticationResponse struct {
	Authenticated bool `json:"authenticated"`
}

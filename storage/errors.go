package storage

import "fmt"

// Kind is a stable, wire-safe error classification. Every failure the core
// returns maps to exactly one Kind; server code turns a Kind into the wire
// Error{code, message} envelope (see wire.ErrorFrom).
type Kind string

const (
	KindNotFound      Kind = "NOT_FOUND"
	KindDuplicateID   Kind = "DUPLICATE_ID"
	KindParseError    Kind = "PARSE_ERROR"
	KindConfigInvalid Kind = "CONFIG_INVALID"
	KindIOError       Kind = "IO_ERROR"
	KindCorrupt       Kind = "CORRUPT"
	KindCancelled     Kind = "CANCELLED"
	KindTimedOut      Kind = "TIMED_OUT"
	KindAuthFailed    Kind = "AUTH_FAILED"
	KindUnsupported   Kind = "UNSUPPORTED"
	KindInternal      Kind = "INTERNAL"
)

// DBError is the single error type the core ever returns. It carries a
// stable Kind alongside a human-readable message and an optional wrapped
// cause, so callers can branch on Kind instead of parsing messages.
type DBError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *DBError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DBError) Unwrap() error { return e.Err }

func newErr(kind Kind, message string, cause error) *DBError {
	return &DBError{Kind: kind, Message: message, Err: cause}
}

func ErrNotFound(message string) *DBError       { return newErr(KindNotFound, message, nil) }
func ErrDuplicateID(message string) *DBError    { return newErr(KindDuplicateID, message, nil) }
func ErrParse(message string) *DBError          { return newErr(KindParseError, message, nil) }
func ErrConfigInvalid(message string) *DBError  { return newErr(KindConfigInvalid, message, nil) }
func ErrIO(message string, cause error) *DBError {
	return newErr(KindIOError, message, cause)
}
func ErrCorrupt(id string) *DBError {
	return newErr(KindCorrupt, fmt.Sprintf("document %q is corrupt", id), nil)
}
func ErrCancelled(message string) *DBError   { return newErr(KindCancelled, message, nil) }
func ErrTimedOut(message string) *DBError    { return newErr(KindTimedOut, message, nil) }
func ErrAuthFailed(message string) *DBError  { return newErr(KindAuthFailed, message, nil) }
func ErrUnsupported(message string) *DBError { return newErr(KindUnsupported, message, nil) }
func ErrInternal(message string, cause error) *DBError {
	return newErr(KindInternal, message, cause)
}

// KindOf extracts the Kind of err, defaulting to KindInternal for errors
// that did not originate from this package.
func KindOf(err error) Kind {
	var dberr *DBError
	if asDBError(err, &dberr) {
		return dberr.Kind
	}
	return KindInternal
}

func asDBError(err error, target **DBError) bool {
	for err != nil {
		if e, ok := err.(*DBError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

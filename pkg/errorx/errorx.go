package errorx

import (
	"fmt"

	"github.com/pkg/errors"
)

// GENERAL ERROR:

// GeneralError - General App Error.
type GeneralError struct {
	message string
	err     error
}

// NewGeneralError - GeneralError constructor.
func NewGeneralError(msg string, args ...any) *GeneralError {
	return &GeneralError{message: fmt.Sprintf(msg, args...), err: nil}
}

// NewGeneralErrorWrapper - GeneralError constructor for wrapper of another error.
func NewGeneralErrorWrapper(err error, msg string, args ...any) *GeneralError {
	return &GeneralError{message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (ge *GeneralError) Error() string {
	if ge.err != nil {
		return fmt.Errorf("%s # Error wrap: %w", ge.message, ge.err).Error()
	}

	return ge.message
}

// Unwrap - return the wrapped error, if any.
func (ge *GeneralError) Unwrap() error {
	return ge.err
}

// TRANSACTION ERROR

// Kind classifies a TransactionError.
type Kind int

const (
	// KindUnknown is never produced by this module; it is the zero value.
	KindUnknown Kind = iota
	// KindTransactionAlreadyCompleted - operation attempted on a transaction that is no longer open.
	KindTransactionAlreadyCompleted
	// KindTransactionBeginFailed - the transport could not allocate a session or transaction resource.
	KindTransactionBeginFailed
	// KindTransactionCommitFailed - the server rejected the commit or the connection was lost during commit.
	KindTransactionCommitFailed
	// KindTransactionRollbackFailed - best-effort rollback failed. Only ever logged.
	KindTransactionRollbackFailed
	// KindAmbientScopeMismatch - a joining scope attempted an owner-only operation, or scopes were completed out of order.
	KindAmbientScopeMismatch
	// KindTransactionAborted - the unit of work was rolled back because a participant marked it failed.
	KindTransactionAborted
	// KindTransactionNotFound - re-attachment of an identifier this process does not know.
	KindTransactionNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:                     "Unknown",
	KindTransactionAlreadyCompleted: "TransactionAlreadyCompleted",
	KindTransactionBeginFailed:      "TransactionBeginFailed",
	KindTransactionCommitFailed:     "TransactionCommitFailed",
	KindTransactionRollbackFailed:   "TransactionRollbackFailed",
	KindAmbientScopeMismatch:        "AmbientScopeMismatch",
	KindTransactionAborted:          "TransactionAborted",
	KindTransactionNotFound:         "TransactionNotFound",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// TransactionError - error raised by the transaction layer, tagged with its Kind.
type TransactionError struct {
	kind    Kind
	message string
	err     error
}

// NewTransactionError - TransactionError constructor.
func NewTransactionError(kind Kind, msg string, args ...any) *TransactionError {
	return &TransactionError{kind: kind, message: fmt.Sprintf(msg, args...)}
}

// NewTransactionErrorWrapper - TransactionError constructor for wrapper of another error.
func NewTransactionErrorWrapper(kind Kind, err error, msg string, args ...any) *TransactionError {
	return &TransactionError{kind: kind, message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (te *TransactionError) Error() string {
	if te.err != nil {
		return fmt.Sprintf("%s: %s: %v", te.kind, te.message, te.err)
	}

	return fmt.Sprintf("%s: %s", te.kind, te.message)
}

// Kind - return the error kind.
func (te *TransactionError) Kind() Kind {
	return te.kind
}

// Unwrap - return the wrapped transport error, if any.
func (te *TransactionError) Unwrap() error {
	return te.err
}

// KindOf returns the Kind of the first TransactionError in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return txErr.kind
	}

	return KindUnknown
}

// IsKind reports whether err's chain contains a TransactionError of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

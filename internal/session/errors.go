package session

import "errors"

// Validation errors are returned before any gateway call is made.
var (
	ErrClosed            = errors.New("session closed")
	ErrBusy              = errors.New("an adjustment is already in flight")
	ErrNoProduct         = errors.New("no product loaded")
	ErrInvalidAdjustment = errors.New("invalid adjustment")
	ErrInvalidPrice      = errors.New("price must be a positive decimal")
	ErrEntryNotFound     = errors.New("history entry not found")
	ErrAlreadyReverted   = errors.New("history entry already reverted")
	ErrOutOfOrder        = errors.New("a newer adjustment of the same product must be reverted first")
	ErrNegativeStock     = errors.New("revert would make stock negative")
	ErrUndoDeclined      = errors.New("undo not confirmed")
)

// ErrGateway wraps every gateway failure surfaced by Commit, CommitPrice
// and Undo.
var ErrGateway = errors.New("inventory gateway failure")

// IsValidation reports whether err was a synchronous rejection.
func IsValidation(err error) bool {
	for _, v := range []error{
		ErrClosed, ErrBusy, ErrNoProduct, ErrInvalidAdjustment, ErrInvalidPrice, ErrEntryNotFound,
		ErrAlreadyReverted, ErrOutOfOrder, ErrNegativeStock, ErrUndoDeclined,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

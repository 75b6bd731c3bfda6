// Package sentinel holds the comparable root causes behind domain error codes.
// Domain errors wrap these so callers can match with errors.Is regardless of
// the message attached at the failure site.
package sentinel

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrDecode               = errors.New("malformed ledger event")
	ErrUnknownReference     = errors.New("event references unknown entity")
	ErrDuplicateApplication = errors.New("event sequence already applied")
	ErrAlreadyVoted         = errors.New("account already voted on request")
	ErrTallyFrozen          = errors.New("tally is frozen after finalization")
	ErrIneligibleVoter      = errors.New("account holds no voting right for epoch")
	ErrAlreadyFinalized     = errors.New("request already finalized")
	ErrIssuanceDuplicate    = errors.New("credential already issued for request")
	ErrNotApproved          = errors.New("request not finalized as approved")
	ErrUnavailable          = errors.New("content unavailable")
	ErrStale                = errors.New("projection behind requested cursor")
	ErrCheckpoint           = errors.New("snapshot checkpoint i/o failure")
)

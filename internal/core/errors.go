package core

import "errors"

// Sentinel errors returned by domain validation and the storage layer.
// Callers match them with errors.Is; the storage layer passes them through
// its persistence wrapping untouched.
var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrEmptyName      = errors.New("empty name")
	ErrInvalidDate    = errors.New("invalid date")
	ErrNotFound       = errors.New("not found")
	ErrNotMember      = errors.New("payer is not a member of the group")
	ErrAlreadyMember  = errors.New("already a member of the group")
	ErrMemberNotFound = errors.New("member not in the group")
	ErrUnknownEntity  = errors.New("unknown entity kind")
)

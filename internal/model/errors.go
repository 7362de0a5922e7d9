package model

import "errors"

// Failure taxonomy returned by the store layer. The API boundary maps these
// to HTTP status codes with errors.Is; everything else is a storage failure.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrDuplicateVote   = errors.New("duplicate vote")
	ErrNotFound        = errors.New("not found")
)

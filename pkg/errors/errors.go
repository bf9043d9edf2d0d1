// Package errors provides the shared error categories used across arc-ledger.
// Domain packages wrap one of these with %w so transports can map a failure
// to a status without knowing every domain sentinel.
package errors

import stderrors "errors"

var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = stderrors.New("not found")

	// ErrAlreadyExists indicates the resource already exists.
	ErrAlreadyExists = stderrors.New("already exists")

	// ErrInvalidInput indicates the input is malformed.
	ErrInvalidInput = stderrors.New("invalid input")

	// ErrConflict indicates the request raced with, or was overtaken by, another write.
	ErrConflict = stderrors.New("conflict")

	// ErrUnauthorized indicates the request lacks a valid authorization.
	ErrUnauthorized = stderrors.New("unauthorized")

	// ErrUnprocessable indicates the request was accepted but could not take full effect.
	ErrUnprocessable = stderrors.New("unprocessable")

	// ErrClosed indicates the resource has been closed.
	ErrClosed = stderrors.New("closed")
)

package services

import (
	"errors"
	"fmt"
)

// Input errors, rejected before any side effect.
var (
	ErrEmptyQuery = errors.New("query text missing")
	ErrInvalidURL = errors.New("invalid url")
)

// UpstreamError marks a failure in an external collaborator (registry,
// queue, embedder, vector store, generator). The originating cause is always
// attached; callers can retry.
type UpstreamError struct {
	Op  string // which collaborator failed
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

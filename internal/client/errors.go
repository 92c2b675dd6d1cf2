package client

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch matches transport and status failures of FetchTags.
	ErrFetch = errors.New("fetch tags")
	// ErrParse matches undecodable tag payloads.
	ErrParse = errors.New("parse tags")
)

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrFetch && e.Op == opFetchTags
}

// HTTPError is a non-success status from the tag endpoint.
type HTTPError struct {
	Op     string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}

func (e *HTTPError) Is(target error) bool { return target == ErrFetch }

// DecodeError wraps a payload that could not be decoded into a tag response.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode: %v", opFetchTags, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrParse }

// CommandError is a non-success status answered to a pulse command.
type CommandError struct {
	Kind   Command
	Status int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s: unexpected status %d", e.Kind, e.Status)
}

// StatusOf returns the HTTP status carried by err, or 0 when there is none.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 0
}

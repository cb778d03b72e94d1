package storage

import (
	"errors"
	"strconv"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrKeyExists    = errors.New("object already exists")
	ErrInvalidKey   = errors.New("invalid object key")
	ErrAccessDenied = errors.New("access denied")
)

// OpError records which call failed on which key. The sentinels above are
// reachable through errors.Is.
type OpError struct {
	Op  string
	Key string
	Err error
}

func opError(op, key string, err error) error {
	return &OpError{Op: op, Key: key, Err: err}
}

func (e *OpError) Error() string {
	return "storage " + e.Op + " " + strconv.Quote(e.Key) + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

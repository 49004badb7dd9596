// Package buffer implements storage shared by the on-policy buffers in
// this module: per-field, per-environment backing arrays and the
// errors reported when a buffer is used out of contract.
package buffer

import "errors"

// Error implements errors unique to buffers. Op names the buffer
// operation that failed.
type Error struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrCapacityExceeded is reported when storing into a full
	// buffer which does not overwrite old data
	ErrCapacityExceeded = errors.New("buffer at maximum capacity")

	// ErrPrematureRead is reported when a buffer is read before it
	// has been filled
	ErrPrematureRead = errors.New("buffer must be full before reading")

	// ErrShapeMismatch is reported when stored data does not match
	// the layout the buffer was created with
	ErrShapeMismatch = errors.New("data does not match buffer layout")

	// ErrEmpty is reported when sampling from an empty buffer
	ErrEmpty = errors.New("buffer empty")
)

// IsCapacityExceeded returns whether or not an error reports that data
// was stored in a full buffer
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsPrematureRead returns whether or not an error reports that a
// buffer was read before it was full
func IsPrematureRead(err error) bool {
	return errors.Is(err, ErrPrematureRead)
}

// IsShapeMismatch returns whether or not an error reports that stored
// data did not match the buffer layout
func IsShapeMismatch(err error) bool {
	return errors.Is(err, ErrShapeMismatch)
}

// IsEmpty returns whether or not an error reports that a buffer is
// empty
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmpty)
}

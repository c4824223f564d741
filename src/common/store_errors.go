package common

import "fmt"

// StoreErrType enumerates the failures an event store can report.
type StoreErrType uint32

const (
	// KeyNotFound means nothing is stored under the requested key.
	KeyNotFound StoreErrType = iota
	// Empty means the store holds no data of the requested kind.
	Empty
	// KeyAlreadyExists means a write would overwrite an immutable entry.
	KeyAlreadyExists
	// TooLate means the requested range has been evicted from the store.
	TooLate
)

// StoreErr is the error type returned by event stores.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr creates a StoreErr for the given data type and key.
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error implements the error interface.
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case Empty:
		m = "Empty"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	case TooLate:
		m = "Too Late"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is of type StoreErr and that its code matches
// the provided StoreErrType.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}

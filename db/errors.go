package db

import (
	"errors"

	"github.com/richinex/contactdb/storage"
)

var (
	// ErrNoEngine reports that no engine is installed.
	ErrNoEngine = errors.New("no database engine installed")
	// ErrInvalidKey reports an empty module or setting name.
	ErrInvalidKey = errors.New("module and setting names must not be empty")
	// ErrNotString reports a string read of a numeric or blob setting.
	ErrNotString = errors.New("setting is not a string")
	// ErrBufferTooSmall reports a value that does not fit the caller's buffer.
	ErrBufferTooSmall = errors.New("buffer too small")
	// ErrTruncated reports an event blob cut short by the caller's buffer.
	ErrTruncated = errors.New("event blob truncated")
	// ErrBlobSize reports an edit that would change an event's blob size.
	ErrBlobSize = errors.New("event blob size is fixed")
	// ErrNilEvent reports a nil event record.
	ErrNilEvent = errors.New("nil event")

	// ErrNotFound reports a missing setting, contact or event.
	ErrNotFound = storage.ErrNotFound
	// ErrNoContact reports a handle that is not a contact.
	ErrNoContact = storage.ErrNoContact
)

// IsMissing reports whether err means "no data": no engine or no such key.
func IsMissing(err error) bool {
	return errors.Is(err, ErrNoEngine) || errors.Is(err, ErrNotFound)
}

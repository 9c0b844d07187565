// Package storage provides the storage engine contract and its implementations.
//
// Information Hiding:
// - Storage backend implementation details hidden behind the Engine interface
// - Allows swapping between memory, SQLite and bbolt without API changes
// - Each engine encapsulates its own layout, locking and handle allocation
// - Resident (memory-only) settings are intercepted before the backing store is touched

package storage

import (
	"errors"

	"github.com/richinex/contactdb/model"
)

var (
	// ErrNotFound reports a missing setting, contact or event.
	ErrNotFound = errors.New("not found")
	// ErrNoContact reports an operation addressed to a contact that does not exist.
	ErrNoContact = errors.New("no such contact")
	// ErrClosed reports use of an engine after Close.
	ErrClosed = errors.New("engine closed")
	// ErrCorrupt reports a stored record that failed its integrity check.
	ErrCorrupt = errors.New("corrupt record")
	// ErrInvalidValue reports a value that cannot be stored, such as a None variant.
	ErrInvalidValue = errors.New("invalid value")
)

// CachedContact is the engine's in-memory view of a contact.
type CachedContact struct {
	ID model.ContactID
	// Proto is the owning protocol module, taken from the Protocol/p setting.
	Proto string
}

// Engine is the storage backend the db façades forward to.
//
// Implementations serialize their own mutations and must be safe for
// concurrent use. Handles are never reused within one store. Events of a
// contact are ordered by insertion. Reads return copies the caller owns.
type Engine interface {
	// GetSetting returns ErrNotFound when the key is absent.
	GetSetting(contact model.ContactID, module, setting string) (model.Variant, error)
	WriteSetting(contact model.ContactID, module, setting string, v model.Variant) error
	// DeleteSetting returns ErrNotFound when the key is absent.
	DeleteSetting(contact model.ContactID, module, setting string) error
	// EnumSettings calls fn with each setting name of a module in name order.
	// A non-nil error from fn stops the walk and is returned.
	EnumSettings(contact model.ContactID, module string, fn func(setting string) error) error
	// EnumModules calls fn once per module name that holds any setting.
	EnumModules(fn func(module string) error) error
	DeleteModule(contact model.ContactID, module string) error

	AddContact() (model.ContactID, error)
	// DeleteContact removes the contact with its settings and events.
	DeleteContact(contact model.ContactID) error
	IsContact(contact model.ContactID) bool
	ContactCount() int
	// FindFirstContact and FindNextContact enumerate contacts in ascending
	// handle order, optionally restricted to one protocol. Zero ends the walk.
	FindFirstContact(proto string) model.ContactID
	FindNextContact(contact model.ContactID, proto string) model.ContactID
	CachedContact(contact model.ContactID) (CachedContact, bool)

	AddEvent(contact model.ContactID, ev *model.Event) (model.EventID, error)
	GetEvent(id model.EventID) (*model.Event, error)
	// BlobSize returns -1 for unknown handles.
	BlobSize(id model.EventID) int
	DeleteEvent(contact model.ContactID, id model.EventID) error
	EditEvent(contact model.ContactID, id model.EventID, ev *model.Event) error
	MarkEventRead(contact model.ContactID, id model.EventID) error
	EventContact(id model.EventID) (model.ContactID, error)
	FirstEvent(contact model.ContactID) model.EventID
	LastEvent(contact model.ContactID) model.EventID
	NextEvent(contact model.ContactID, id model.EventID) model.EventID
	PrevEvent(contact model.ContactID, id model.EventID) model.EventID
	FirstUnreadEvent(contact model.ContactID) model.EventID
	EventCount(contact model.ContactID) int
	// EventByID returns ErrNotFound when no event carries the id.
	EventByID(module, sid string) (model.EventID, error)
	// SetEventID attaches a string id. A later call with the same
	// (module, sid) moves the index entry to the newer event.
	SetEventID(module string, id model.EventID, sid string) error

	// BindResidents installs the registry consulted before every setting access.
	BindResidents(r *Residents)
	// SetCacheSafetyMode trades durability for write speed when safe is false.
	SetCacheSafetyMode(safe bool) error
	// ProfileID identifies the store; stable across reopen for persistent engines.
	ProfileID() string
	Close() error
}

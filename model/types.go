// Package model provides domain types shared across packages.
package model

import (
	"bytes"
	"fmt"
	"time"
)

// ContactID is an engine-allocated contact handle. Zero is the global
// pseudo-contact that owns process-wide settings.
type ContactID uint32

// Global addresses settings that do not belong to any contact.
const Global ContactID = 0

// String returns the handle in the form used by logs and the CLI.
func (c ContactID) String() string {
	if c == Global {
		return "global"
	}
	return fmt.Sprintf("contact:%d", uint32(c))
}

// EventID is an engine-allocated event handle. Zero is the terminal handle
// returned at either end of an event sequence.
type EventID uint32

// NoEvent marks the end of an event traversal.
const NoEvent EventID = 0

// EventType tags what an event's blob carries.
type EventType uint16

const (
	EventMessage     EventType = 0
	EventContacts    EventType = 2
	EventAdded       EventType = 1000
	EventAuthRequest EventType = 1001
	EventFile        EventType = 1002
)

// EventFlags is a bit set of event properties.
type EventFlags uint32

const (
	FlagSent      EventFlags = 2
	FlagRead      EventFlags = 4
	FlagRTL       EventFlags = 8
	FlagUTF       EventFlags = 16
	FlagEncrypted EventFlags = 32
	// FlagHasID is maintained by engines: set while a string id is attached.
	FlagHasID EventFlags = 64
)

// Has reports whether all bits of f2 are set.
func (f EventFlags) Has(f2 EventFlags) bool { return f&f2 == f2 }

// Event is one record in a contact's history.
type Event struct {
	// Module is the component that produced the event, usually a protocol.
	Module    string
	Type      EventType
	Flags     EventFlags
	Timestamp time.Time
	Blob      []byte
	// ID is an optional module-scoped string id for duplicate detection.
	ID string
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Blob = bytes.Clone(e.Blob)
	return &c
}

// IsRead reports whether the read flag is set.
func (e *Event) IsRead() bool { return e.Flags.Has(FlagRead) }

// Text returns the blob as text for message events.
func (e *Event) Text() string {
	return string(bytes.TrimRight(e.Blob, "\x00"))
}

// Well-known settings the core itself reads.
const (
	ModuleProtocol = "Protocol"
	SettingProto   = "p"

	ModuleContactPhoto = "ContactPhoto"
	SettingPhotoFile   = "File"

	ModuleLangpack  = "Langpack"
	SettingLangpack = "Current"
)

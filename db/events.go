package db

import (
	"fmt"
	"time"

	"github.com/richinex/contactdb/model"
)

// Events manages per-contact event histories.
//
// Traversal methods return model.NoEvent at either end of a history, when the
// handle is unknown, and when no engine is installed.
type Events struct {
	m *Manager
}

// prepare validates ev and returns the copy handed to the engine.
// Timestamps are stored with second precision; a zero timestamp means now.
func prepare(ev *model.Event) (*model.Event, error) {
	if ev == nil {
		return nil, ErrNilEvent
	}
	if ev.Module == "" {
		return nil, ErrInvalidKey
	}
	out := ev.Clone()
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	out.Timestamp = out.Timestamp.Truncate(time.Second)
	return out, nil
}

// Add appends ev to a contact's history. Events may be added to model.Global.
func (e Events) Add(c model.ContactID, ev *model.Event) (model.EventID, error) {
	stored, err := prepare(ev)
	if err != nil {
		return model.NoEvent, err
	}
	engine, err := e.m.engine()
	if err != nil {
		return model.NoEvent, err
	}
	return engine.AddEvent(c, stored)
}

// Get returns a copy of an event owned by the caller.
func (e Events) Get(h model.EventID) (*model.Event, error) {
	engine, err := e.m.engine()
	if err != nil {
		return nil, err
	}
	return engine.GetEvent(h)
}

// Read fetches an event and copies its blob into buf. The returned event's
// Blob aliases buf. n is the full blob size; when it exceeds len(buf) the copy
// is cut short and ErrTruncated is returned alongside the event.
func (e Events) Read(h model.EventID, buf []byte) (ev model.Event, n int, err error) {
	full, err := e.Get(h)
	if err != nil {
		return model.Event{}, 0, err
	}
	ev = *full
	n = len(full.Blob)
	copied := copy(buf, full.Blob)
	ev.Blob = buf[:copied]
	if n > len(buf) {
		return ev, n, fmt.Errorf("%w: blob is %d bytes, buffer %d", ErrTruncated, n, len(buf))
	}
	return ev, n, nil
}

// BlobSize returns the blob length of an event, or -1 when it is unknown.
func (e Events) BlobSize(h model.EventID) int {
	engine, err := e.m.engine()
	if err != nil {
		return -1
	}
	return engine.BlobSize(h)
}

// Delete removes an event from a contact's history.
func (e Events) Delete(c model.ContactID, h model.EventID) error {
	engine, err := e.m.engine()
	if err != nil {
		return err
	}
	return engine.DeleteEvent(c, h)
}

// Edit replaces an event's fields in place. The blob must keep its size and the
// event keeps its position even when the timestamp changes.
func (e Events) Edit(c model.ContactID, h model.EventID, ev *model.Event) error {
	stored, err := prepare(ev)
	if err != nil {
		return err
	}
	engine, err := e.m.engine()
	if err != nil {
		return err
	}
	size := engine.BlobSize(h)
	if size < 0 {
		return ErrNotFound
	}
	if len(stored.Blob) != size {
		return fmt.Errorf("%w: have %d bytes, edit has %d", ErrBlobSize, size, len(stored.Blob))
	}
	return engine.EditEvent(c, h, stored)
}

// First returns the oldest event of a contact.
func (e Events) First(c model.ContactID) model.EventID {
	engine, err := e.m.engine()
	if err != nil {
		return model.NoEvent
	}
	return engine.FirstEvent(c)
}

// Last returns the newest event of a contact.
func (e Events) Last(c model.ContactID) model.EventID {
	engine, err := e.m.engine()
	if err != nil {
		return model.NoEvent
	}
	return engine.LastEvent(c)
}

// Next returns the event after h.
func (e Events) Next(c model.ContactID, h model.EventID) model.EventID {
	engine, err := e.m.engine()
	if err != nil || h == model.NoEvent {
		return model.NoEvent
	}
	return engine.NextEvent(c, h)
}

// Prev returns the event before h.
func (e Events) Prev(c model.ContactID, h model.EventID) model.EventID {
	engine, err := e.m.engine()
	if err != nil || h == model.NoEvent {
		return model.NoEvent
	}
	return engine.PrevEvent(c, h)
}

// FirstUnread returns the oldest event without the read flag.
func (e Events) FirstUnread(c model.ContactID) model.EventID {
	engine, err := e.m.engine()
	if err != nil {
		return model.NoEvent
	}
	return engine.FirstUnreadEvent(c)
}

// MarkRead sets the read flag of an event.
func (e Events) MarkRead(c model.ContactID, h model.EventID) error {
	engine, err := e.m.engine()
	if err != nil {
		return err
	}
	return engine.MarkEventRead(c, h)
}

// Contact returns the contact that owns an event.
func (e Events) Contact(h model.EventID) (model.ContactID, error) {
	engine, err := e.m.engine()
	if err != nil {
		return model.Global, err
	}
	return engine.EventContact(h)
}

// Count returns the number of events of a contact.
func (e Events) Count(c model.ContactID) int {
	engine, err := e.m.engine()
	if err != nil {
		return 0
	}
	return engine.EventCount(c)
}

// GetByID returns the event holding a module-scoped string id.
func (e Events) GetByID(module, id string) (model.EventID, error) {
	if err := validKey(module, id); err != nil {
		return model.NoEvent, err
	}
	engine, err := e.m.engine()
	if err != nil {
		return model.NoEvent, err
	}
	return engine.EventByID(module, id)
}

// SetID attaches a module-scoped string id to an event. If another event
// already holds the id, the lookup moves to h.
func (e Events) SetID(module string, h model.EventID, id string) error {
	if err := validKey(module, id); err != nil {
		return err
	}
	engine, err := e.m.engine()
	if err != nil {
		return err
	}
	return engine.SetEventID(module, h, id)
}

// Walk calls fn with each event handle of a contact from oldest to newest.
// fn may delete the event it is given.
func (e Events) Walk(c model.ContactID, fn func(h model.EventID) error) error {
	engine, err := e.m.engine()
	if err != nil {
		return err
	}
	for h := engine.FirstEvent(c); h != model.NoEvent; {
		next := engine.NextEvent(c, h)
		if err := fn(h); err != nil {
			return err
		}
		h = next
	}
	return nil
}

package db

import (
	"errors"
	"io/fs"
	"os"

	"github.com/richinex/contactdb/model"
	"github.com/richinex/contactdb/storage"
)

// Contacts manages contact lifecycle and enumeration.
type Contacts struct {
	m *Manager
}

// Add allocates a new contact.
func (c Contacts) Add() (model.ContactID, error) {
	e, err := c.m.engine()
	if err != nil {
		return model.Global, err
	}
	id, err := e.AddContact()
	if err != nil {
		return model.Global, err
	}
	c.m.log().Debug().Str("contact", id.String()).Msg("Contact added")
	return id, nil
}

// Delete removes a contact with its settings and events, then removes the
// cached photo named by ContactPhoto/File. A photo that cannot be removed is
// logged and does not fail the deletion.
func (c Contacts) Delete(id model.ContactID) error {
	e, err := c.m.engine()
	if err != nil {
		return err
	}
	photo := c.m.Settings().GetStringDef(id, model.ModuleContactPhoto, model.SettingPhotoFile, "")

	if err := e.DeleteContact(id); err != nil {
		return err
	}

	logger := c.m.log()
	if photo != "" {
		if err := os.Remove(photo); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("contact", id.String()).Str("photo", photo).Msg("Contact photo not removed")
		}
	}
	logger.Info().Str("contact", id.String()).Msg("Contact deleted")
	return nil
}

// IsContact reports whether id is a live contact. Global is never a contact.
func (c Contacts) IsContact(id model.ContactID) bool {
	if id == model.Global {
		return false
	}
	e, err := c.m.engine()
	if err != nil {
		return false
	}
	return e.IsContact(id)
}

// FindFirst returns the first contact, optionally only those of proto.
// It returns model.Global when there is none.
func (c Contacts) FindFirst(proto string) model.ContactID {
	e, err := c.m.engine()
	if err != nil {
		return model.Global
	}
	return e.FindFirstContact(proto)
}

// FindNext returns the contact after id.
func (c Contacts) FindNext(id model.ContactID, proto string) model.ContactID {
	e, err := c.m.engine()
	if err != nil {
		return model.Global
	}
	return e.FindNextContact(id, proto)
}

// Count returns the number of contacts.
func (c Contacts) Count() int {
	e, err := c.m.engine()
	if err != nil {
		return 0
	}
	return e.ContactCount()
}

// Cached returns the engine's cached view of a contact.
func (c Contacts) Cached(id model.ContactID) (storage.CachedContact, bool) {
	e, err := c.m.engine()
	if err != nil {
		return storage.CachedContact{}, false
	}
	return e.CachedContact(id)
}

// Proto returns the protocol that owns a contact, or "".
func (c Contacts) Proto(id model.ContactID) string {
	cc, _ := c.Cached(id)
	return cc.Proto
}

// Package storage provides bbolt settings and event storage.
//
// Information Hiding:
// - Bucket layout and record encoding hidden behind the Engine interface
// - Handles are big-endian keys so cursors walk them in allocation order
// - Sequences never hand out a deleted handle again

package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richinex/contactdb/model"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketMeta          = []byte("meta")
	bucketContacts      = []byte("contacts")
	bucketSettings      = []byte("settings")
	bucketEvents        = []byte("events")
	bucketContactEvents = []byte("contact_events")
	bucketEventIDs      = []byte("event_ids")

	keyProfileID = []byte("profile_id")
)

// BoltEngine implements Engine on a bbolt file.
//
// Layout:
//
//	meta/profile_id
//	contacts/<contact>
//	settings/<contact>/<module>/<setting> = kind | payload
//	events/<event> = record
//	contact_events/<contact>/<event>
//	event_ids/<module>/<sid> = <event>
type BoltEngine struct {
	db        *bolt.DB
	profileID string

	// syncMu guards db.NoSync: commits hold it shared, the toggle exclusively.
	syncMu sync.RWMutex

	cache   *contactCache
	overlay residentOverlay
}

// OpenBolt opens or creates a bbolt profile at the given path.
func OpenBolt(path string) (*BoltEngine, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	b := &BoltEngine{db: db, cache: newContactCache()}
	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *BoltEngine) init() error {
	return b.update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketContacts, bucketSettings, bucketEvents, bucketContactEvents, bucketEventIDs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		if id := meta.Get(keyProfileID); id != nil {
			b.profileID = string(id)
		} else {
			b.profileID = uuid.New().String()
			if err := meta.Put(keyProfileID, []byte(b.profileID)); err != nil {
				return fmt.Errorf("failed to store profile id: %w", err)
			}
		}

		settings := tx.Bucket(bucketSettings)
		return tx.Bucket(bucketContacts).ForEach(func(k, _ []byte) error {
			id := model.ContactID(keyID(k))
			b.cache.add(id)
			if raw := settingBucketValue(settings, id, model.ModuleProtocol, model.SettingProto); raw != nil {
				if v, err := unpackVariant(raw); err == nil {
					b.cache.observe(id, model.ModuleProtocol, model.SettingProto, v)
				}
			}
			return nil
		})
	})
}

// update runs fn in a read-write transaction.
func (b *BoltEngine) update(fn func(tx *bolt.Tx) error) error {
	b.syncMu.RLock()
	defer b.syncMu.RUnlock()
	return b.db.Update(fn)
}

func settingBucketValue(settings *bolt.Bucket, contact model.ContactID, module, setting string) []byte {
	cb := settings.Bucket(idKey(uint32(contact)))
	if cb == nil {
		return nil
	}
	mb := cb.Bucket([]byte(module))
	if mb == nil {
		return nil
	}
	return mb.Get([]byte(setting))
}

// Path returns the database file path.
func (b *BoltEngine) Path() string {
	return b.db.Path()
}

// GetSetting returns a stored setting.
func (b *BoltEngine) GetSetting(contact model.ContactID, module, setting string) (model.Variant, error) {
	if b.overlay.intercepts(module, setting) {
		return b.overlay.get(settingKey{contact, module, setting})
	}

	v := model.None()
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := settingBucketValue(tx.Bucket(bucketSettings), contact, module, setting)
		if raw == nil {
			return ErrNotFound
		}
		var err error
		v, err = unpackVariant(raw)
		return err
	})
	return v, err
}

// WriteSetting stores a setting.
func (b *BoltEngine) WriteSetting(contact model.ContactID, module, setting string, v model.Variant) error {
	raw, err := packVariant(v)
	if err != nil {
		return err
	}
	if b.overlay.intercepts(module, setting) {
		b.overlay.put(settingKey{contact, module, setting}, v)
		b.cache.observe(contact, module, setting, v)
		return nil
	}

	err = b.update(func(tx *bolt.Tx) error {
		cb, err := tx.Bucket(bucketSettings).CreateBucketIfNotExists(idKey(uint32(contact)))
		if err != nil {
			return err
		}
		mb, err := cb.CreateBucketIfNotExists([]byte(module))
		if err != nil {
			return err
		}
		return mb.Put([]byte(setting), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to write setting: %w", err)
	}
	b.cache.observe(contact, module, setting, v)
	return nil
}

// DeleteSetting removes a setting; an emptied module bucket goes with it.
func (b *BoltEngine) DeleteSetting(contact model.ContactID, module, setting string) error {
	if b.overlay.intercepts(module, setting) {
		return b.overlay.remove(settingKey{contact, module, setting})
	}

	err := b.update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketSettings).Bucket(idKey(uint32(contact)))
		if cb == nil {
			return ErrNotFound
		}
		mb := cb.Bucket([]byte(module))
		if mb == nil || mb.Get([]byte(setting)) == nil {
			return ErrNotFound
		}
		if err := mb.Delete([]byte(setting)); err != nil {
			return err
		}
		if k, _ := mb.Cursor().First(); k == nil {
			return cb.DeleteBucket([]byte(module))
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.cache.observe(contact, module, setting, model.None())
	return nil
}

// EnumSettings lists the setting names of one module.
func (b *BoltEngine) EnumSettings(contact model.ContactID, module string, fn func(string) error) error {
	var stored []string
	err := b.db.View(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketSettings).Bucket(idKey(uint32(contact)))
		if cb == nil {
			return nil
		}
		mb := cb.Bucket([]byte(module))
		if mb == nil {
			return nil
		}
		return mb.ForEach(func(k, _ []byte) error {
			stored = append(stored, string(k))
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to enumerate settings: %w", err)
	}
	return emit(mergeNames(stored, b.overlay.names(contact, module)), fn)
}

// EnumModules lists every module that holds a setting for any contact.
func (b *BoltEngine) EnumModules(fn func(string) error) error {
	var modules []string
	err := b.db.View(func(tx *bolt.Tx) error {
		settings := tx.Bucket(bucketSettings)
		return settings.ForEach(func(ck, _ []byte) error {
			cb := settings.Bucket(ck)
			if cb == nil {
				return nil
			}
			return cb.ForEach(func(mk, _ []byte) error {
				mb := cb.Bucket(mk)
				if mb == nil {
					return nil
				}
				if k, _ := mb.Cursor().First(); k != nil {
					modules = append(modules, string(mk))
				}
				return nil
			})
		})
	})
	if err != nil {
		return fmt.Errorf("failed to enumerate modules: %w", err)
	}
	return emit(mergeNames(modules, b.overlay.modules()), fn)
}

// DeleteModule removes every setting of a contact's module.
func (b *BoltEngine) DeleteModule(contact model.ContactID, module string) error {
	err := b.update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketSettings).Bucket(idKey(uint32(contact)))
		if cb == nil || cb.Bucket([]byte(module)) == nil {
			return nil
		}
		return cb.DeleteBucket([]byte(module))
	})
	if err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	b.overlay.drop(contact, module)
	if module == model.ModuleProtocol {
		b.cache.setProto(contact, "")
	}
	return nil
}

// AddContact allocates a new contact handle.
func (b *BoltEngine) AddContact() (model.ContactID, error) {
	var id model.ContactID
	err := b.update(func(tx *bolt.Tx) error {
		contacts := tx.Bucket(bucketContacts)
		seq, err := contacts.NextSequence()
		if err != nil {
			return err
		}
		if seq > 0xFFFFFFFF {
			return fmt.Errorf("%w: contact handles exhausted", ErrInvalidValue)
		}
		id = model.ContactID(seq)
		return contacts.Put(idKey(uint32(id)), []byte{})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add contact: %w", err)
	}
	b.cache.add(id)
	return id, nil
}

// DeleteContact removes a contact, its settings and its events.
func (b *BoltEngine) DeleteContact(contact model.ContactID) error {
	if !b.cache.has(contact) {
		return ErrNoContact
	}

	key := idKey(uint32(contact))
	err := b.update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSettings).Bucket(key) != nil {
			if err := tx.Bucket(bucketSettings).DeleteBucket(key); err != nil {
				return err
			}
		}

		ce := tx.Bucket(bucketContactEvents)
		if eb := ce.Bucket(key); eb != nil {
			var ids [][]byte
			if err := eb.ForEach(func(k, _ []byte) error {
				ids = append(ids, bytes.Clone(k))
				return nil
			}); err != nil {
				return err
			}
			for _, k := range ids {
				if err := dropEventTx(tx, keyID(k)); err != nil {
					return err
				}
			}
			if err := ce.DeleteBucket(key); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketContacts).Delete(key)
	})
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	b.overlay.drop(contact, "")
	b.cache.remove(contact)
	return nil
}

// dropEventTx removes an event record and its id index entry, not its contact_events slot.
func dropEventTx(tx *bolt.Tx, id uint32) error {
	events := tx.Bucket(bucketEvents)
	raw := events.Get(idKey(id))
	if raw == nil {
		return nil
	}
	if rec, err := decodeEvent(raw); err == nil && rec.event.ID != "" {
		if err := unindexEventID(tx, rec.idModule, rec.event.ID, id); err != nil {
			return err
		}
	}
	return events.Delete(idKey(id))
}

// unindexEventID drops (module, sid) only while it still points at id.
func unindexEventID(tx *bolt.Tx, module, sid string, id uint32) error {
	mb := tx.Bucket(bucketEventIDs).Bucket([]byte(module))
	if mb == nil {
		return nil
	}
	if cur := mb.Get([]byte(sid)); cur != nil && keyID(cur) == id {
		return mb.Delete([]byte(sid))
	}
	return nil
}

func indexEventID(tx *bolt.Tx, module, sid string, id uint32) error {
	mb, err := tx.Bucket(bucketEventIDs).CreateBucketIfNotExists([]byte(module))
	if err != nil {
		return err
	}
	return mb.Put([]byte(sid), idKey(id))
}

// IsContact reports whether a handle names a live contact.
func (b *BoltEngine) IsContact(contact model.ContactID) bool {
	return b.cache.has(contact)
}

// ContactCount returns the number of live contacts.
func (b *BoltEngine) ContactCount() int {
	return b.cache.count()
}

// FindFirstContact returns the lowest contact handle, optionally for one protocol.
func (b *BoltEngine) FindFirstContact(proto string) model.ContactID {
	return b.cache.next(model.Global, proto)
}

// FindNextContact returns the contact following contact.
func (b *BoltEngine) FindNextContact(contact model.ContactID, proto string) model.ContactID {
	return b.cache.next(contact, proto)
}

// CachedContact returns the cached view of a contact.
func (b *BoltEngine) CachedContact(contact model.ContactID) (CachedContact, bool) {
	return b.cache.get(contact)
}

// AddEvent appends an event to a contact's history.
func (b *BoltEngine) AddEvent(contact model.ContactID, ev *model.Event) (model.EventID, error) {
	if contact != model.Global && !b.cache.has(contact) {
		return model.NoEvent, ErrNoContact
	}

	rec := eventRecord{contact: contact, event: *ev.Clone()}
	rec.event.Flags &^= model.FlagHasID
	if ev.ID != "" {
		rec.idModule = ev.Module
		rec.event.Flags |= model.FlagHasID
	}
	raw, err := encodeEvent(rec)
	if err != nil {
		return model.NoEvent, err
	}

	var id uint32
	err = b.update(func(tx *bolt.Tx) error {
		if contact != model.Global && tx.Bucket(bucketContacts).Get(idKey(uint32(contact))) == nil {
			return ErrNoContact
		}
		events := tx.Bucket(bucketEvents)
		seq, err := events.NextSequence()
		if err != nil {
			return err
		}
		if seq > 0xFFFFFFFF {
			return fmt.Errorf("%w: event handles exhausted", ErrInvalidValue)
		}
		id = uint32(seq)
		if err := events.Put(idKey(id), raw); err != nil {
			return err
		}
		eb, err := tx.Bucket(bucketContactEvents).CreateBucketIfNotExists(idKey(uint32(contact)))
		if err != nil {
			return err
		}
		if err := eb.Put(idKey(id), []byte{}); err != nil {
			return err
		}
		if ev.ID != "" {
			return indexEventID(tx, rec.idModule, ev.ID, id)
		}
		return nil
	})
	if err != nil {
		return model.NoEvent, fmt.Errorf("failed to add event: %w", err)
	}
	return model.EventID(id), nil
}

func (b *BoltEngine) loadRecord(id model.EventID) (eventRecord, error) {
	var rec eventRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEvents).Get(idKey(uint32(id)))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		rec, err = decodeEvent(raw)
		return err
	})
	return rec, err
}

// GetEvent returns a copy of an event.
func (b *BoltEngine) GetEvent(id model.EventID) (*model.Event, error) {
	rec, err := b.loadRecord(id)
	if err != nil {
		return nil, err
	}
	return &rec.event, nil
}

// BlobSize returns an event's blob length, or -1.
func (b *BoltEngine) BlobSize(id model.EventID) int {
	n := -1
	_ = b.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketEvents).Get(idKey(uint32(id))); raw != nil {
			n = blobSizeFromRecord(raw)
		}
		return nil
	})
	return n
}

// updateRecord rewrites one event of contact inside a write transaction.
func (b *BoltEngine) updateRecord(contact model.ContactID, id model.EventID, fn func(tx *bolt.Tx, rec *eventRecord) error) error {
	return b.update(func(tx *bolt.Tx) error {
		events := tx.Bucket(bucketEvents)
		raw := events.Get(idKey(uint32(id)))
		if raw == nil {
			return ErrNotFound
		}
		rec, err := decodeEvent(raw)
		if err != nil {
			return err
		}
		if rec.contact != contact {
			return ErrNotFound
		}
		if err := fn(tx, &rec); err != nil {
			return err
		}
		out, err := encodeEvent(rec)
		if err != nil {
			return err
		}
		return events.Put(idKey(uint32(id)), out)
	})
}

// DeleteEvent removes one event of a contact.
func (b *BoltEngine) DeleteEvent(contact model.ContactID, id model.EventID) error {
	return b.update(func(tx *bolt.Tx) error {
		eb := tx.Bucket(bucketContactEvents).Bucket(idKey(uint32(contact)))
		if eb == nil || eb.Get(idKey(uint32(id))) == nil {
			return ErrNotFound
		}
		if err := dropEventTx(tx, uint32(id)); err != nil {
			return err
		}
		return eb.Delete(idKey(uint32(id)))
	})
}

// EditEvent replaces an event's fields, keeping its handle and string id.
func (b *BoltEngine) EditEvent(contact model.ContactID, id model.EventID, ev *model.Event) error {
	return b.updateRecord(contact, id, func(_ *bolt.Tx, rec *eventRecord) error {
		edited := *ev.Clone()
		edited.ID = rec.event.ID
		edited.Flags = (edited.Flags &^ model.FlagHasID) | (rec.event.Flags & model.FlagHasID)
		rec.event = edited
		return nil
	})
}

// MarkEventRead sets the read flag.
func (b *BoltEngine) MarkEventRead(contact model.ContactID, id model.EventID) error {
	return b.updateRecord(contact, id, func(_ *bolt.Tx, rec *eventRecord) error {
		rec.event.Flags |= model.FlagRead
		return nil
	})
}

// EventContact returns the contact that owns an event.
func (b *BoltEngine) EventContact(id model.EventID) (model.ContactID, error) {
	rec, err := b.loadRecord(id)
	if err != nil {
		return 0, err
	}
	return rec.contact, nil
}

// walkEvents positions a cursor over a contact's events and returns what pick selects.
func (b *BoltEngine) walkEvents(contact model.ContactID, pick func(c *bolt.Cursor, events *bolt.Bucket) []byte) model.EventID {
	var id model.EventID
	_ = b.db.View(func(tx *bolt.Tx) error {
		eb := tx.Bucket(bucketContactEvents).Bucket(idKey(uint32(contact)))
		if eb == nil {
			return nil
		}
		if k := pick(eb.Cursor(), tx.Bucket(bucketEvents)); k != nil {
			id = model.EventID(keyID(k))
		}
		return nil
	})
	return id
}

// FirstEvent returns the oldest event of a contact.
func (b *BoltEngine) FirstEvent(contact model.ContactID) model.EventID {
	return b.walkEvents(contact, func(c *bolt.Cursor, _ *bolt.Bucket) []byte {
		k, _ := c.First()
		return k
	})
}

// LastEvent returns the newest event of a contact.
func (b *BoltEngine) LastEvent(contact model.ContactID) model.EventID {
	return b.walkEvents(contact, func(c *bolt.Cursor, _ *bolt.Bucket) []byte {
		k, _ := c.Last()
		return k
	})
}

// NextEvent returns the event after id.
func (b *BoltEngine) NextEvent(contact model.ContactID, id model.EventID) model.EventID {
	return b.walkEvents(contact, func(c *bolt.Cursor, _ *bolt.Bucket) []byte {
		k, _ := c.Seek(idKey(uint32(id)))
		if k != nil && keyID(k) == uint32(id) {
			k, _ = c.Next()
		}
		return k
	})
}

// PrevEvent returns the event before id.
func (b *BoltEngine) PrevEvent(contact model.ContactID, id model.EventID) model.EventID {
	return b.walkEvents(contact, func(c *bolt.Cursor, _ *bolt.Bucket) []byte {
		k, _ := c.Seek(idKey(uint32(id)))
		if k == nil {
			k, _ = c.Last()
			return k
		}
		k, _ = c.Prev()
		return k
	})
}

// FirstUnreadEvent returns the oldest event without the read flag.
func (b *BoltEngine) FirstUnreadEvent(contact model.ContactID) model.EventID {
	return b.walkEvents(contact, func(c *bolt.Cursor, events *bolt.Bucket) []byte {
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			rec, err := decodeEvent(events.Get(k))
			if err != nil {
				continue
			}
			if !rec.event.IsRead() {
				return k
			}
		}
		return nil
	})
}

// EventCount returns the number of events of a contact.
func (b *BoltEngine) EventCount(contact model.ContactID) int {
	n := 0
	_ = b.db.View(func(tx *bolt.Tx) error {
		if eb := tx.Bucket(bucketContactEvents).Bucket(idKey(uint32(contact))); eb != nil {
			n = eb.Stats().KeyN
		}
		return nil
	})
	return n
}

// EventByID looks up an event by its module-scoped string id.
func (b *BoltEngine) EventByID(module, sid string) (model.EventID, error) {
	var id model.EventID
	err := b.db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketEventIDs).Bucket([]byte(module))
		if mb == nil {
			return ErrNotFound
		}
		v := mb.Get([]byte(sid))
		if v == nil {
			return ErrNotFound
		}
		id = model.EventID(keyID(v))
		return nil
	})
	return id, err
}

// SetEventID attaches a string id to an event.
func (b *BoltEngine) SetEventID(module string, id model.EventID, sid string) error {
	contact, err := b.EventContact(id)
	if err != nil {
		return err
	}
	return b.updateRecord(contact, id, func(tx *bolt.Tx, rec *eventRecord) error {
		if rec.event.ID != "" {
			if err := unindexEventID(tx, rec.idModule, rec.event.ID, uint32(id)); err != nil {
				return err
			}
		}
		rec.idModule = module
		rec.event.ID = sid
		rec.event.Flags |= model.FlagHasID
		return indexEventID(tx, module, sid, uint32(id))
	})
}

// BindResidents installs the resident registry.
func (b *BoltEngine) BindResidents(r *Residents) {
	b.overlay.bind(r)
}

// SetCacheSafetyMode toggles fsync on commit.
func (b *BoltEngine) SetCacheSafetyMode(safe bool) error {
	b.syncMu.Lock()
	defer b.syncMu.Unlock()
	b.db.NoSync = !safe
	return nil
}

// ProfileID returns the identity stored in the meta bucket.
func (b *BoltEngine) ProfileID() string {
	return b.profileID
}

// Close closes the database file.
func (b *BoltEngine) Close() error {
	return b.db.Close()
}

// Verify BoltEngine implements Engine
var _ Engine = (*BoltEngine)(nil)

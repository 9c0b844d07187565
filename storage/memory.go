// Package storage provides in-memory settings and event storage.
//
// Information Hiding:
// - Radix-tree setting index hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and throwaway profiles

package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/richinex/contactdb/internal/dsa"
	"github.com/richinex/contactdb/model"
)

// MemoryEngine implements Engine with maps and a radix tree.
// Data is lost when the engine is closed or the process terminates.
type MemoryEngine struct {
	mu        sync.RWMutex
	profileID string
	closed    bool

	// settings keys are "%08x\x00module\x00setting" so one contact's module is a prefix.
	settings *dsa.Trie[model.Variant]

	nextContact uint32
	nextEvent   uint32
	events      map[model.EventID]*memEvent
	order       map[model.ContactID][]model.EventID
	ids         map[string]model.EventID

	cache   *contactCache
	overlay residentOverlay
}

type memEvent struct {
	contact model.ContactID
	// idModule namespaces event.ID in the id index; it may differ from event.Module.
	idModule string
	event    *model.Event
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		profileID: uuid.New().String(),
		settings:  dsa.NewTrie[model.Variant](),
		events:    make(map[model.EventID]*memEvent),
		order:     make(map[model.ContactID][]model.EventID),
		ids:       make(map[string]model.EventID),
		cache:     newContactCache(),
	}
}

func memPrefix(contact model.ContactID, module string) string {
	return fmt.Sprintf("%08x\x00%s\x00", uint32(contact), module)
}

func memKey(contact model.ContactID, module, setting string) string {
	return memPrefix(contact, module) + setting
}

func idIndexKey(module, sid string) string {
	return module + "\x00" + sid
}

// GetSetting returns a stored setting.
func (m *MemoryEngine) GetSetting(contact model.ContactID, module, setting string) (model.Variant, error) {
	if m.overlay.intercepts(module, setting) {
		return m.overlay.get(settingKey{contact, module, setting})
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return model.None(), ErrClosed
	}
	v, ok := m.settings.Get(memKey(contact, module, setting))
	if !ok {
		return model.None(), ErrNotFound
	}
	return v, nil
}

// WriteSetting stores a setting.
func (m *MemoryEngine) WriteSetting(contact model.ContactID, module, setting string, v model.Variant) error {
	if _, _, err := encodeVariant(v); err != nil {
		return err
	}
	if m.overlay.intercepts(module, setting) {
		m.overlay.put(settingKey{contact, module, setting}, v)
		m.cache.observe(contact, module, setting, v)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.settings.Insert(memKey(contact, module, setting), v)
	m.cache.observe(contact, module, setting, v)
	return nil
}

// DeleteSetting removes a setting.
func (m *MemoryEngine) DeleteSetting(contact model.ContactID, module, setting string) error {
	if m.overlay.intercepts(module, setting) {
		return m.overlay.remove(settingKey{contact, module, setting})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.settings.Delete(memKey(contact, module, setting)) {
		return ErrNotFound
	}
	m.cache.observe(contact, module, setting, model.None())
	return nil
}

// EnumSettings lists the setting names of one module.
func (m *MemoryEngine) EnumSettings(contact model.ContactID, module string, fn func(string) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	prefix := memPrefix(contact, module)
	var stored []string
	m.settings.WalkPrefix(prefix, func(k string, _ model.Variant) bool {
		stored = append(stored, strings.TrimPrefix(k, prefix))
		return true
	})
	m.mu.RUnlock()

	return emit(mergeNames(stored, m.overlay.names(contact, module)), fn)
}

// EnumModules lists every module that holds a setting for any contact.
func (m *MemoryEngine) EnumModules(fn func(string) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	var modules []string
	m.settings.WalkPrefix("", func(k string, _ model.Variant) bool {
		parts := strings.SplitN(k, "\x00", 3)
		if len(parts) == 3 {
			modules = append(modules, parts[1])
		}
		return true
	})
	m.mu.RUnlock()

	return emit(mergeNames(modules, m.overlay.modules()), fn)
}

// DeleteModule removes every setting of a contact's module.
func (m *MemoryEngine) DeleteModule(contact model.ContactID, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.settings.DeletePrefix(memPrefix(contact, module))
	m.overlay.drop(contact, module)
	if module == model.ModuleProtocol {
		m.cache.setProto(contact, "")
	}
	return nil
}

// AddContact allocates a new contact handle.
func (m *MemoryEngine) AddContact() (model.ContactID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	m.nextContact++
	id := model.ContactID(m.nextContact)
	m.cache.add(id)
	return id, nil
}

// DeleteContact removes a contact, its settings and its events.
func (m *MemoryEngine) DeleteContact(contact model.ContactID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.cache.has(contact) {
		return ErrNoContact
	}

	m.settings.DeletePrefix(fmt.Sprintf("%08x\x00", uint32(contact)))
	for _, id := range m.order[contact] {
		m.dropEventLocked(id)
	}
	delete(m.order, contact)
	m.overlay.drop(contact, "")
	m.cache.remove(contact)
	return nil
}

// IsContact reports whether a handle names a live contact.
func (m *MemoryEngine) IsContact(contact model.ContactID) bool {
	return m.cache.has(contact)
}

// ContactCount returns the number of live contacts.
func (m *MemoryEngine) ContactCount() int {
	return m.cache.count()
}

// FindFirstContact returns the lowest contact handle, optionally for one protocol.
func (m *MemoryEngine) FindFirstContact(proto string) model.ContactID {
	return m.cache.next(model.Global, proto)
}

// FindNextContact returns the contact following contact.
func (m *MemoryEngine) FindNextContact(contact model.ContactID, proto string) model.ContactID {
	return m.cache.next(contact, proto)
}

// CachedContact returns the cached view of a contact.
func (m *MemoryEngine) CachedContact(contact model.ContactID) (CachedContact, bool) {
	return m.cache.get(contact)
}

// AddEvent appends an event to a contact's history.
func (m *MemoryEngine) AddEvent(contact model.ContactID, ev *model.Event) (model.EventID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.NoEvent, ErrClosed
	}
	if contact != model.Global && !m.cache.has(contact) {
		return model.NoEvent, ErrNoContact
	}

	m.nextEvent++
	id := model.EventID(m.nextEvent)
	stored := ev.Clone()
	stored.Flags &^= model.FlagHasID
	stored.ID = ""
	m.events[id] = &memEvent{contact: contact, event: stored}
	m.order[contact] = append(m.order[contact], id)
	if ev.ID != "" {
		m.setIDLocked(ev.Module, id, ev.ID)
	}
	return id, nil
}

// GetEvent returns a copy of an event.
func (m *MemoryEngine) GetEvent(id model.EventID) (*model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.event.Clone(), nil
}

// BlobSize returns an event's blob length, or -1.
func (m *MemoryEngine) BlobSize(id model.EventID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok || m.closed {
		return -1
	}
	return len(e.event.Blob)
}

// DeleteEvent removes one event of a contact.
func (m *MemoryEngine) DeleteEvent(contact model.ContactID, id model.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	e, ok := m.events[id]
	if !ok || e.contact != contact {
		return ErrNotFound
	}
	m.dropEventLocked(id)

	order := m.order[contact]
	i := sort.Search(len(order), func(i int) bool { return order[i] >= id })
	if i < len(order) && order[i] == id {
		m.order[contact] = append(order[:i], order[i+1:]...)
	}
	return nil
}

// dropEventLocked removes an event and its id index entry, not its order slot.
func (m *MemoryEngine) dropEventLocked(id model.EventID) {
	e, ok := m.events[id]
	if !ok {
		return
	}
	if e.event.ID != "" {
		k := idIndexKey(e.idModule, e.event.ID)
		if m.ids[k] == id {
			delete(m.ids, k)
		}
	}
	delete(m.events, id)
}

// EditEvent replaces an event's fields, keeping its handle and string id.
func (m *MemoryEngine) EditEvent(contact model.ContactID, id model.EventID, ev *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	e, ok := m.events[id]
	if !ok || e.contact != contact {
		return ErrNotFound
	}
	edited := ev.Clone()
	edited.ID = e.event.ID
	edited.Flags = (edited.Flags &^ model.FlagHasID) | (e.event.Flags & model.FlagHasID)
	e.event = edited
	return nil
}

// MarkEventRead sets the read flag.
func (m *MemoryEngine) MarkEventRead(contact model.ContactID, id model.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	e, ok := m.events[id]
	if !ok || e.contact != contact {
		return ErrNotFound
	}
	e.event.Flags |= model.FlagRead
	return nil
}

// EventContact returns the contact that owns an event.
func (m *MemoryEngine) EventContact(id model.EventID) (model.ContactID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok || m.closed {
		return 0, ErrNotFound
	}
	return e.contact, nil
}

// FirstEvent returns the oldest event of a contact.
func (m *MemoryEngine) FirstEvent(contact model.ContactID) model.EventID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order := m.order[contact]
	if len(order) == 0 {
		return model.NoEvent
	}
	return order[0]
}

// LastEvent returns the newest event of a contact.
func (m *MemoryEngine) LastEvent(contact model.ContactID) model.EventID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order := m.order[contact]
	if len(order) == 0 {
		return model.NoEvent
	}
	return order[len(order)-1]
}

// NextEvent returns the event after id.
func (m *MemoryEngine) NextEvent(contact model.ContactID, id model.EventID) model.EventID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order := m.order[contact]
	i := sort.Search(len(order), func(i int) bool { return order[i] > id })
	if i < len(order) {
		return order[i]
	}
	return model.NoEvent
}

// PrevEvent returns the event before id.
func (m *MemoryEngine) PrevEvent(contact model.ContactID, id model.EventID) model.EventID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order := m.order[contact]
	i := sort.Search(len(order), func(i int) bool { return order[i] >= id })
	if i > 0 {
		return order[i-1]
	}
	return model.NoEvent
}

// FirstUnreadEvent returns the oldest event without the read flag.
func (m *MemoryEngine) FirstUnreadEvent(contact model.ContactID) model.EventID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order[contact] {
		if !m.events[id].event.IsRead() {
			return id
		}
	}
	return model.NoEvent
}

// EventCount returns the number of events of a contact.
func (m *MemoryEngine) EventCount(contact model.ContactID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order[contact])
}

// EventByID looks up an event by its module-scoped string id.
func (m *MemoryEngine) EventByID(module, sid string) (model.EventID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[idIndexKey(module, sid)]
	if !ok {
		return model.NoEvent, ErrNotFound
	}
	return id, nil
}

// SetEventID attaches a string id to an event.
func (m *MemoryEngine) SetEventID(module string, id model.EventID, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.events[id]; !ok {
		return ErrNotFound
	}
	m.setIDLocked(module, id, sid)
	return nil
}

func (m *MemoryEngine) setIDLocked(module string, id model.EventID, sid string) {
	e := m.events[id]
	if e.event.ID != "" {
		old := idIndexKey(e.idModule, e.event.ID)
		if m.ids[old] == id {
			delete(m.ids, old)
		}
	}
	e.idModule = module
	e.event.ID = sid
	e.event.Flags |= model.FlagHasID
	m.ids[idIndexKey(module, sid)] = id
}

// BindResidents installs the resident registry.
func (m *MemoryEngine) BindResidents(r *Residents) {
	m.overlay.bind(r)
}

// SetCacheSafetyMode is a no-op: nothing is flushed to disk.
func (m *MemoryEngine) SetCacheSafetyMode(bool) error {
	return nil
}

// ProfileID returns the engine's random identity.
func (m *MemoryEngine) ProfileID() string {
	return m.profileID
}

// Close releases all data.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.settings = dsa.NewTrie[model.Variant]()
	m.events = make(map[model.EventID]*memEvent)
	m.order = make(map[model.ContactID][]model.EventID)
	m.ids = make(map[string]model.EventID)
	return nil
}

// Verify MemoryEngine implements Engine
var _ Engine = (*MemoryEngine)(nil)

// Package storage provides SQLite settings and event storage.
//
// Information Hiding:
// - SQLite connection management hidden behind the Engine interface
// - Schema and migration details encapsulated
// - A single pooled connection serializes writers; the contact cache answers enumeration

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/richinex/contactdb/model"
)

// SqliteEngine implements Engine using SQLite.
// Stores settings, contacts and event history in a SQLite database file.
type SqliteEngine struct {
	db        *sql.DB
	path      string
	profileID string

	cache   *contactCache
	overlay residentOverlay
}

// OpenSqlite opens or creates a SQLite profile at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteEngine, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return initSqlite(db, path)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteEngine, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	return initSqlite(db, ":memory:")
}

func initSqlite(db *sql.DB, path string) (*SqliteEngine, error) {
	// One connection: in-memory databases are per-connection, and a single
	// writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	s := &SqliteEngine{db: db, path: path, cache: newContactCache()}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.loadProfileID(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadContactCache(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SqliteEngine) Path() string {
	return s.path
}

func (s *SqliteEngine) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS settings (
			contact INTEGER NOT NULL,
			module TEXT NOT NULL,
			name TEXT NOT NULL,
			kind INTEGER NOT NULL,
			value BLOB,
			PRIMARY KEY (contact, module, name)
		);

		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			contact INTEGER NOT NULL,
			module TEXT NOT NULL,
			type INTEGER NOT NULL,
			flags INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			blob BLOB,
			checksum INTEGER NOT NULL,
			sid_module TEXT,
			sid TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_events_contact
		ON events(contact, id);

		CREATE TABLE IF NOT EXISTS event_ids (
			module TEXT NOT NULL,
			sid TEXT NOT NULL,
			event INTEGER NOT NULL,
			PRIMARY KEY (module, sid)
		);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SqliteEngine) loadProfileID() error {
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'profile_id'").Scan(&s.profileID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read profile id: %w", err)
	}
	s.profileID = uuid.New().String()
	if _, err := s.db.Exec("INSERT INTO meta (key, value) VALUES ('profile_id', ?)", s.profileID); err != nil {
		return fmt.Errorf("failed to store profile id: %w", err)
	}
	return nil
}

func (s *SqliteEngine) loadContactCache() error {
	rows, err := s.db.Query("SELECT id FROM contacts ORDER BY id")
	if err != nil {
		return fmt.Errorf("failed to query contacts: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan contact: %w", err)
		}
		s.cache.add(model.ContactID(id))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating contacts: %w", err)
	}
	rows.Close()

	rows, err = s.db.Query("SELECT contact, kind, value FROM settings WHERE module = ? AND name = ?",
		model.ModuleProtocol, model.SettingProto)
	if err != nil {
		return fmt.Errorf("failed to query protocols: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var contact int64
		var kind int
		var payload []byte
		if err := rows.Scan(&contact, &kind, &payload); err != nil {
			return fmt.Errorf("failed to scan protocol: %w", err)
		}
		v, err := decodeVariant(model.Kind(kind), payload)
		if err != nil {
			continue
		}
		s.cache.observe(model.ContactID(contact), model.ModuleProtocol, model.SettingProto, v)
	}
	return rows.Err()
}

// GetSetting returns a stored setting.
func (s *SqliteEngine) GetSetting(contact model.ContactID, module, setting string) (model.Variant, error) {
	if s.overlay.intercepts(module, setting) {
		return s.overlay.get(settingKey{contact, module, setting})
	}

	var kind int
	var payload []byte
	err := s.db.QueryRow(
		"SELECT kind, value FROM settings WHERE contact = ? AND module = ? AND name = ?",
		uint32(contact), module, setting).Scan(&kind, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.None(), ErrNotFound
	}
	if err != nil {
		return model.None(), fmt.Errorf("failed to get setting: %w", err)
	}
	return decodeVariant(model.Kind(kind), payload)
}

// WriteSetting stores a setting.
func (s *SqliteEngine) WriteSetting(contact model.ContactID, module, setting string, v model.Variant) error {
	kind, payload, err := encodeVariant(v)
	if err != nil {
		return err
	}
	if s.overlay.intercepts(module, setting) {
		s.overlay.put(settingKey{contact, module, setting}, v)
		s.cache.observe(contact, module, setting, v)
		return nil
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO settings (contact, module, name, kind, value)
		VALUES (?, ?, ?, ?, ?)`,
		uint32(contact), module, setting, int(kind), payload)
	if err != nil {
		return fmt.Errorf("failed to write setting: %w", err)
	}
	s.cache.observe(contact, module, setting, v)
	return nil
}

// DeleteSetting removes a setting.
func (s *SqliteEngine) DeleteSetting(contact model.ContactID, module, setting string) error {
	if s.overlay.intercepts(module, setting) {
		return s.overlay.remove(settingKey{contact, module, setting})
	}

	res, err := s.db.Exec("DELETE FROM settings WHERE contact = ? AND module = ? AND name = ?",
		uint32(contact), module, setting)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.cache.observe(contact, module, setting, model.None())
	return nil
}

// EnumSettings lists the setting names of one module.
func (s *SqliteEngine) EnumSettings(contact model.ContactID, module string, fn func(string) error) error {
	stored, err := s.queryStrings(
		"SELECT name FROM settings WHERE contact = ? AND module = ? ORDER BY name",
		uint32(contact), module)
	if err != nil {
		return err
	}
	return emit(mergeNames(stored, s.overlay.names(contact, module)), fn)
}

// EnumModules lists every module that holds a setting for any contact.
func (s *SqliteEngine) EnumModules(fn func(string) error) error {
	stored, err := s.queryStrings("SELECT DISTINCT module FROM settings ORDER BY module")
	if err != nil {
		return err
	}
	return emit(mergeNames(stored, s.overlay.modules()), fn)
}

// queryStrings collects a single text column; rows are closed before callbacks run.
func (s *SqliteEngine) queryStrings(query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iteration failed: %w", err)
	}
	return out, nil
}

// DeleteModule removes every setting of a contact's module.
func (s *SqliteEngine) DeleteModule(contact model.ContactID, module string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE contact = ? AND module = ?", uint32(contact), module)
	if err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	s.overlay.drop(contact, module)
	if module == model.ModuleProtocol {
		s.cache.setProto(contact, "")
	}
	return nil
}

// AddContact allocates a new contact handle.
func (s *SqliteEngine) AddContact() (model.ContactID, error) {
	res, err := s.db.Exec("INSERT INTO contacts (created_at) VALUES (?)", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to add contact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read contact id: %w", err)
	}
	s.cache.add(model.ContactID(id))
	return model.ContactID(id), nil
}

// DeleteContact removes a contact, its settings and its events.
func (s *SqliteEngine) DeleteContact(contact model.ContactID) error {
	if !s.cache.has(contact) {
		return ErrNoContact
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		"DELETE FROM event_ids WHERE event IN (SELECT id FROM events WHERE contact = ?)",
		"DELETE FROM events WHERE contact = ?",
		"DELETE FROM settings WHERE contact = ?",
		"DELETE FROM contacts WHERE id = ?",
	}
	for _, q := range stmts {
		if _, err := tx.Exec(q, uint32(contact)); err != nil {
			return fmt.Errorf("failed to delete contact: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.overlay.drop(contact, "")
	s.cache.remove(contact)
	return nil
}

// IsContact reports whether a handle names a live contact.
func (s *SqliteEngine) IsContact(contact model.ContactID) bool {
	return s.cache.has(contact)
}

// ContactCount returns the number of live contacts.
func (s *SqliteEngine) ContactCount() int {
	return s.cache.count()
}

// FindFirstContact returns the lowest contact handle, optionally for one protocol.
func (s *SqliteEngine) FindFirstContact(proto string) model.ContactID {
	return s.cache.next(model.Global, proto)
}

// FindNextContact returns the contact following contact.
func (s *SqliteEngine) FindNextContact(contact model.ContactID, proto string) model.ContactID {
	return s.cache.next(contact, proto)
}

// CachedContact returns the cached view of a contact.
func (s *SqliteEngine) CachedContact(contact model.ContactID) (CachedContact, bool) {
	return s.cache.get(contact)
}

// AddEvent appends an event to a contact's history.
func (s *SqliteEngine) AddEvent(contact model.ContactID, ev *model.Event) (model.EventID, error) {
	if contact != model.Global && !s.cache.has(contact) {
		return model.NoEvent, ErrNoContact
	}

	tx, err := s.db.Begin()
	if err != nil {
		return model.NoEvent, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	flags := ev.Flags &^ model.FlagHasID
	var sidModule, sid interface{}
	if ev.ID != "" {
		flags |= model.FlagHasID
		sidModule, sid = ev.Module, ev.ID
	}
	blob := ev.Blob
	if blob == nil {
		blob = []byte{}
	}

	// The owner is re-checked inside the transaction so a concurrent
	// DeleteContact cannot leave the event orphaned.
	res, err := tx.Exec(`
		INSERT INTO events (contact, module, type, flags, timestamp, blob, checksum, sid_module, sid)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE ? = 0 OR EXISTS (SELECT 1 FROM contacts WHERE id = ?)`,
		uint32(contact), ev.Module, int(ev.Type), uint32(flags), ev.Timestamp.Unix(),
		blob, int64(blobChecksum(blob)), sidModule, sid,
		uint32(contact), uint32(contact))
	if err != nil {
		return model.NoEvent, fmt.Errorf("failed to add event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.NoEvent, fmt.Errorf("failed to add event: %w", err)
	} else if n == 0 {
		return model.NoEvent, ErrNoContact
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.NoEvent, fmt.Errorf("failed to read event id: %w", err)
	}
	if ev.ID != "" {
		if err := s.indexEventID(tx, ev.Module, model.EventID(id), ev.ID); err != nil {
			return model.NoEvent, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.NoEvent, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return model.EventID(id), nil
}

// indexEventID points (module, sid) at id, replacing any earlier owner.
func (s *SqliteEngine) indexEventID(tx *sql.Tx, module string, id model.EventID, sid string) error {
	_, err := tx.Exec("INSERT OR REPLACE INTO event_ids (module, sid, event) VALUES (?, ?, ?)",
		module, sid, uint32(id))
	if err != nil {
		return fmt.Errorf("failed to index event id: %w", err)
	}
	return nil
}

// GetEvent returns a copy of an event.
func (s *SqliteEngine) GetEvent(id model.EventID) (*model.Event, error) {
	_, ev, err := s.loadEvent(id)
	return ev, err
}

func (s *SqliteEngine) loadEvent(id model.EventID) (model.ContactID, *model.Event, error) {
	var (
		contact  int64
		typ      int
		flags    int64
		ts       int64
		checksum int64
		sid      sql.NullString
		ev       model.Event
	)
	err := s.db.QueryRow(`
		SELECT contact, module, type, flags, timestamp, blob, checksum, sid
		FROM events WHERE id = ?`, uint32(id)).Scan(
		&contact, &ev.Module, &typ, &flags, &ts, &ev.Blob, &checksum, &sid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get event: %w", err)
	}
	if ev.Blob == nil {
		ev.Blob = []byte{}
	}
	if int64(blobChecksum(ev.Blob)) != checksum {
		return 0, nil, fmt.Errorf("%w: event %d blob checksum mismatch", ErrCorrupt, id)
	}
	ev.Type = model.EventType(typ)
	ev.Flags = model.EventFlags(flags)
	ev.Timestamp = time.Unix(ts, 0)
	if sid.Valid {
		ev.ID = sid.String
	}
	return model.ContactID(contact), &ev, nil
}

// BlobSize returns an event's blob length, or -1.
func (s *SqliteEngine) BlobSize(id model.EventID) int {
	var n int
	err := s.db.QueryRow("SELECT length(blob) FROM events WHERE id = ?", uint32(id)).Scan(&n)
	if err != nil {
		return -1
	}
	return n
}

// DeleteEvent removes one event of a contact.
func (s *SqliteEngine) DeleteEvent(contact model.ContactID, id model.EventID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec("DELETE FROM events WHERE id = ? AND contact = ?", uint32(id), uint32(contact))
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec("DELETE FROM event_ids WHERE event = ?", uint32(id)); err != nil {
		return fmt.Errorf("failed to delete event id: %w", err)
	}
	return tx.Commit()
}

// EditEvent replaces an event's fields, keeping its handle and string id.
func (s *SqliteEngine) EditEvent(contact model.ContactID, id model.EventID, ev *model.Event) error {
	blob := ev.Blob
	if blob == nil {
		blob = []byte{}
	}
	res, err := s.db.Exec(`
		UPDATE events
		SET module = ?, type = ?, flags = (? & ~?) | (flags & ?), timestamp = ?, blob = ?, checksum = ?
		WHERE id = ? AND contact = ?`,
		ev.Module, int(ev.Type), uint32(ev.Flags), uint32(model.FlagHasID), uint32(model.FlagHasID),
		ev.Timestamp.Unix(), blob, int64(blobChecksum(blob)), uint32(id), uint32(contact))
	if err != nil {
		return fmt.Errorf("failed to edit event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEventRead sets the read flag.
func (s *SqliteEngine) MarkEventRead(contact model.ContactID, id model.EventID) error {
	res, err := s.db.Exec("UPDATE events SET flags = flags | ? WHERE id = ? AND contact = ?",
		uint32(model.FlagRead), uint32(id), uint32(contact))
	if err != nil {
		return fmt.Errorf("failed to mark event read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EventContact returns the contact that owns an event.
func (s *SqliteEngine) EventContact(id model.EventID) (model.ContactID, error) {
	var contact int64
	err := s.db.QueryRow("SELECT contact FROM events WHERE id = ?", uint32(id)).Scan(&contact)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get event contact: %w", err)
	}
	return model.ContactID(contact), nil
}

// eventHandle runs a query returning at most one event id; any failure is the terminal handle.
func (s *SqliteEngine) eventHandle(query string, args ...interface{}) model.EventID {
	var id int64
	if err := s.db.QueryRow(query, args...).Scan(&id); err != nil {
		return model.NoEvent
	}
	return model.EventID(id)
}

// FirstEvent returns the oldest event of a contact.
func (s *SqliteEngine) FirstEvent(contact model.ContactID) model.EventID {
	return s.eventHandle("SELECT id FROM events WHERE contact = ? ORDER BY id ASC LIMIT 1", uint32(contact))
}

// LastEvent returns the newest event of a contact.
func (s *SqliteEngine) LastEvent(contact model.ContactID) model.EventID {
	return s.eventHandle("SELECT id FROM events WHERE contact = ? ORDER BY id DESC LIMIT 1", uint32(contact))
}

// NextEvent returns the event after id.
func (s *SqliteEngine) NextEvent(contact model.ContactID, id model.EventID) model.EventID {
	return s.eventHandle("SELECT id FROM events WHERE contact = ? AND id > ? ORDER BY id ASC LIMIT 1",
		uint32(contact), uint32(id))
}

// PrevEvent returns the event before id.
func (s *SqliteEngine) PrevEvent(contact model.ContactID, id model.EventID) model.EventID {
	return s.eventHandle("SELECT id FROM events WHERE contact = ? AND id < ? ORDER BY id DESC LIMIT 1",
		uint32(contact), uint32(id))
}

// FirstUnreadEvent returns the oldest event without the read flag.
func (s *SqliteEngine) FirstUnreadEvent(contact model.ContactID) model.EventID {
	return s.eventHandle("SELECT id FROM events WHERE contact = ? AND (flags & ?) = 0 ORDER BY id ASC LIMIT 1",
		uint32(contact), uint32(model.FlagRead))
}

// EventCount returns the number of events of a contact.
func (s *SqliteEngine) EventCount(contact model.ContactID) int {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events WHERE contact = ?", uint32(contact)).Scan(&n); err != nil {
		return 0
	}
	return n
}

// EventByID looks up an event by its module-scoped string id.
func (s *SqliteEngine) EventByID(module, sid string) (model.EventID, error) {
	var id int64
	err := s.db.QueryRow("SELECT event FROM event_ids WHERE module = ? AND sid = ?", module, sid).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NoEvent, ErrNotFound
	}
	if err != nil {
		return model.NoEvent, fmt.Errorf("failed to look up event id: %w", err)
	}
	return model.EventID(id), nil
}

// SetEventID attaches a string id to an event.
func (s *SqliteEngine) SetEventID(module string, id model.EventID, sid string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec("UPDATE events SET sid_module = ?, sid = ?, flags = flags | ? WHERE id = ?",
		module, sid, uint32(model.FlagHasID), uint32(id))
	if err != nil {
		return fmt.Errorf("failed to set event id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec("DELETE FROM event_ids WHERE event = ?", uint32(id)); err != nil {
		return fmt.Errorf("failed to clear event id: %w", err)
	}
	if err := s.indexEventID(tx, module, id, sid); err != nil {
		return err
	}
	return tx.Commit()
}

// BindResidents installs the resident registry.
func (s *SqliteEngine) BindResidents(r *Residents) {
	s.overlay.bind(r)
}

// SetCacheSafetyMode switches between synchronous and unsynchronized writes.
func (s *SqliteEngine) SetCacheSafetyMode(safe bool) error {
	mode := "FULL"
	if !safe {
		mode = "OFF"
	}
	if _, err := s.db.Exec("PRAGMA synchronous = " + mode); err != nil {
		return fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	return nil
}

// ProfileID returns the identity stored in the meta table.
func (s *SqliteEngine) ProfileID() string {
	return s.profileID
}

// Close closes the database connection.
func (s *SqliteEngine) Close() error {
	return s.db.Close()
}

// Verify SqliteEngine implements Engine
var _ Engine = (*SqliteEngine)(nil)

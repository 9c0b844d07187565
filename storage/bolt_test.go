package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/richinex/contactdb/model"
	bolt "go.etcd.io/bbolt"
)

func TestBoltEngineReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")

	engine, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("Failed to open bolt: %v", err)
	}
	profile := engine.ProfileID()

	r := NewResidents()
	if err := r.MarkResident("Status", "Online", true); err != nil {
		t.Fatalf("MarkResident failed: %v", err)
	}
	engine.BindResidents(r)

	c, err := engine.AddContact()
	if err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	if err := engine.WriteSetting(c, model.ModuleProtocol, model.SettingProto, model.UTF8("JABBER")); err != nil {
		t.Fatalf("WriteSetting failed: %v", err)
	}
	if err := engine.WriteSetting(c, "Status", "Online", model.Byte(1)); err != nil {
		t.Fatalf("WriteSetting failed: %v", err)
	}
	ev := newEvent("JABBER", "persisted")
	ev.ID = "stanza-1"
	id, err := engine.AddEvent(c, ev)
	if err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	if err := engine.DeleteContact(c); err != nil {
		t.Fatalf("DeleteContact failed: %v", err)
	}
	kept, err := engine.AddContact()
	if err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	if err := engine.WriteSetting(kept, model.ModuleProtocol, model.SettingProto, model.UTF8("JABBER")); err != nil {
		t.Fatalf("WriteSetting failed: %v", err)
	}
	id, err = engine.AddEvent(kept, ev)
	if err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	engine, err = OpenBolt(path)
	if err != nil {
		t.Fatalf("Failed to reopen bolt: %v", err)
	}
	defer engine.Close()

	if engine.ProfileID() != profile {
		t.Errorf("expected profile id %s, got %s", profile, engine.ProfileID())
	}
	if engine.IsContact(c) || !engine.IsContact(kept) {
		t.Errorf("expected only contact %d after reopen", kept)
	}
	if cc, _ := engine.CachedContact(kept); cc.Proto != "JABBER" {
		t.Errorf("expected cached proto JABBER, got %q", cc.Proto)
	}
	if _, err := engine.GetSetting(kept, "Status", "Online"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected resident value not to be persisted, got %v", err)
	}
	if found, err := engine.EventByID("JABBER", "stanza-1"); err != nil || found != id {
		t.Errorf("expected id index to persist, got %d (%v)", found, err)
	}

	next, err := engine.AddContact()
	if err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	if next <= kept {
		t.Errorf("expected handles to keep increasing across reopen, got %d after %d", next, kept)
	}
}

func TestBoltAddEventChecksOwnerInTransaction(t *testing.T) {
	engine, err := OpenBolt(filepath.Join(t.TempDir(), "profile.db"))
	if err != nil {
		t.Fatalf("Failed to open bolt: %v", err)
	}
	defer engine.Close()

	c, err := engine.AddContact()
	if err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	// The cache still lists c; only the stored key is gone.
	if err := engine.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContacts).Delete(idKey(uint32(c)))
	}); err != nil {
		t.Fatalf("delete key failed: %v", err)
	}
	if _, err := engine.AddEvent(c, newEvent("ICQ", "orphan")); !errors.Is(err, ErrNoContact) {
		t.Errorf("expected ErrNoContact, got %v", err)
	}
	if h := engine.FirstEvent(c); h != model.NoEvent {
		t.Errorf("expected no stored event, found %d", h)
	}
}

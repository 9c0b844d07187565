package db

import (
	"errors"
	"sync"
	"testing"

	"github.com/richinex/contactdb/model"
	"github.com/richinex/contactdb/storage"
)

// fakeLoader records language pack reloads.
type fakeLoader struct {
	mu       sync.Mutex
	loaded   []string
	defaults int
	fail     map[string]bool
}

func (f *fakeLoader) Load(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[name] {
		return errors.New("missing pack")
	}
	f.loaded = append(f.loaded, name)
	return nil
}

func (f *fakeLoader) LoadDefault() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults++
}

func newTestManager(t *testing.T) (*Manager, *storage.MemoryEngine) {
	t.Helper()
	m := New(Config{})
	e := storage.NewMemoryEngine()
	t.Cleanup(func() { _ = e.Close() })
	m.SetCurrent(e)
	return m, e
}

func TestManagerNoEngine(t *testing.T) {
	m := New(Config{})

	if _, ok := m.Current(); ok {
		t.Error("expected no current engine")
	}
	if _, err := m.Settings().Get(model.Global, "CList", "UseGroups"); !errors.Is(err, ErrNoEngine) {
		t.Errorf("expected ErrNoEngine, got %v", err)
	}
	if got := m.Settings().GetByte(model.Global, "CList", "UseGroups", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
	if got := m.Settings().GetStringDef(model.Global, "CList", "Name", "x"); got != "x" {
		t.Errorf("expected default x, got %q", got)
	}
	if err := m.Settings().SetByte(model.Global, "CList", "UseGroups", 1); !errors.Is(err, ErrNoEngine) {
		t.Errorf("expected ErrNoEngine from write, got %v", err)
	}
	if _, err := m.Contacts().Add(); !errors.Is(err, ErrNoEngine) {
		t.Errorf("expected ErrNoEngine from AddContact, got %v", err)
	}
	if got := m.Contacts().Count(); got != 0 {
		t.Errorf("expected 0 contacts, got %d", got)
	}
	if got := m.Events().First(model.Global); got != model.NoEvent {
		t.Errorf("expected NoEvent, got %d", got)
	}
	if got := m.Events().BlobSize(1); got != -1 {
		t.Errorf("expected blob size -1, got %d", got)
	}
	if err := m.SetCacheSafetyMode(false); !errors.Is(err, ErrNoEngine) {
		t.Errorf("expected ErrNoEngine from safety mode, got %v", err)
	}
	if !IsMissing(ErrNoEngine) {
		t.Error("expected ErrNoEngine to count as missing")
	}
}

func TestManagerSetCurrentSwaps(t *testing.T) {
	m := New(Config{})
	first := storage.NewMemoryEngine()
	second := storage.NewMemoryEngine()
	defer first.Close()
	defer second.Close()

	if prev := m.SetCurrent(first); prev != nil {
		t.Errorf("expected no previous engine, got %v", prev)
	}
	if err := m.Settings().SetByte(model.Global, "Test", "Value", 1); err != nil {
		t.Fatalf("Failed to write setting: %v", err)
	}

	if prev := m.SetCurrent(second); prev != first {
		t.Error("expected SetCurrent to return the first engine")
	}
	if m.Settings().Exists(model.Global, "Test", "Value") {
		t.Error("expected setting to be absent on the second engine")
	}

	if prev := m.SetCurrent(nil); prev != second {
		t.Error("expected uninstall to return the second engine")
	}
	if _, ok := m.Current(); ok {
		t.Error("expected no engine after uninstall")
	}
}

func TestManagerReloadsLangpack(t *testing.T) {
	loader := &fakeLoader{fail: map[string]bool{"broken": true}}
	m := New(Config{LangLoader: loader})

	e := storage.NewMemoryEngine()
	defer e.Close()
	m.SetCurrent(e)
	if loader.defaults != 1 || len(loader.loaded) != 0 {
		t.Fatalf("expected default pack without a setting, got defaults=%d loaded=%v", loader.defaults, loader.loaded)
	}

	if err := m.Settings().SetUTF8(model.Global, model.ModuleLangpack, model.SettingLangpack, "german"); err != nil {
		t.Fatalf("Failed to write langpack setting: %v", err)
	}
	m.SetCurrent(e)
	if len(loader.loaded) != 1 || loader.loaded[0] != "german" {
		t.Errorf("expected german to be loaded, got %v", loader.loaded)
	}

	if err := m.Settings().SetUTF8(model.Global, model.ModuleLangpack, model.SettingLangpack, "broken"); err != nil {
		t.Fatalf("Failed to write langpack setting: %v", err)
	}
	m.SetCurrent(e)
	if loader.defaults != 2 {
		t.Errorf("expected fallback to default pack, got defaults=%d", loader.defaults)
	}

	m.SetCurrent(nil)
	if loader.defaults != 2 || len(loader.loaded) != 1 {
		t.Error("expected uninstall not to reload the language pack")
	}
}

func TestManagerResidents(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.SetResident("CList", "Status", true); err != nil {
		t.Fatalf("Failed to mark resident: %v", err)
	}
	if err := m.SetResident("", "Status", true); err == nil {
		t.Error("expected empty module to be rejected")
	}

	var names []string
	if err := m.Modules().EnumResidents(func(name string) error {
		names = append(names, name)
		return nil
	}); err != nil {
		t.Fatalf("Failed to enumerate residents: %v", err)
	}
	if len(names) != 1 || names[0] != "CList/Status" {
		t.Errorf("expected [CList/Status], got %v", names)
	}

	if err := m.Settings().SetWord(model.Global, "CList", "Status", 40071); err != nil {
		t.Fatalf("Failed to write resident: %v", err)
	}
	if got := m.Settings().GetWord(model.Global, "CList", "Status", 0); got != 40071 {
		t.Errorf("expected 40071, got %d", got)
	}
}

func TestManagerResidentsNotPersisted(t *testing.T) {
	path := t.TempDir() + "/profile.sqlite"
	m := New(Config{})
	if err := m.SetResident("CList", "Status", true); err != nil {
		t.Fatalf("Failed to mark resident: %v", err)
	}

	e, err := storage.OpenSqlite(path)
	if err != nil {
		t.Fatalf("Failed to open sqlite engine: %v", err)
	}
	m.SetCurrent(e)
	s := m.Settings()
	if err := s.SetWord(model.Global, "CList", "Status", 40072); err != nil {
		t.Fatalf("Failed to write resident: %v", err)
	}
	if err := s.SetWord(model.Global, "CList", "Mode", 3); err != nil {
		t.Fatalf("Failed to write setting: %v", err)
	}
	m.SetCurrent(nil)
	if err := e.Close(); err != nil {
		t.Fatalf("Failed to close engine: %v", err)
	}

	reopened, err := storage.OpenSqlite(path)
	if err != nil {
		t.Fatalf("Failed to reopen sqlite engine: %v", err)
	}
	defer reopened.Close()
	m.SetCurrent(reopened)

	if s.Exists(model.Global, "CList", "Status") {
		t.Error("expected resident setting to be gone after reopen")
	}
	if got := s.GetWord(model.Global, "CList", "Mode", 0); got != 3 {
		t.Errorf("expected persisted setting 3, got %d", got)
	}
}

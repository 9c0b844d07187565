// Package db provides the settings, event and contact API over a swappable storage engine.
//
// Information Hiding:
// - The active engine is an atomically swapped optional; callers never see nil checks
// - Façades forward to the engine and apply defaulting and numeric coercion
// - Installing an engine reloads the profile's language pack

package db

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/richinex/contactdb/logging"
	"github.com/richinex/contactdb/model"
	"github.com/richinex/contactdb/storage"
)

// LangLoader is reloaded whenever an engine is installed.
type LangLoader interface {
	// Load activates the named language pack.
	Load(name string) error
	// LoadDefault activates the built-in language.
	LoadDefault()
}

// Config holds manager dependencies. Zero values are valid.
type Config struct {
	// Logger receives lifecycle messages. Defaults to a silent logger.
	Logger *logging.Logger

	// LangLoader is reloaded by SetCurrent. Nil disables the reload.
	LangLoader LangLoader

	// Residents is the resident settings registry. Defaults to an empty one.
	Residents *storage.Residents
}

// engineRef lets atomic.Pointer represent "no engine" as a nil pointer.
type engineRef struct {
	engine storage.Engine
}

// Manager owns the active engine and hands out façades over it.
type Manager struct {
	current   atomic.Pointer[engineRef]
	residents *storage.Residents
	lang      LangLoader

	base *logging.Logger
	// logger is base tagged with the current engine session's correlation id.
	logger atomic.Pointer[logging.Logger]
}

// New creates a manager with no engine installed.
func New(config Config) *Manager {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewSilentLogger()
	}
	residents := config.Residents
	if residents == nil {
		residents = storage.NewResidents()
	}

	m := &Manager{base: logger, residents: residents, lang: config.LangLoader}
	m.logger.Store(logger)
	return m
}

// SetCurrent installs e as the active engine and returns the engine it replaced.
// Passing nil uninstalls. Installing binds the resident registry to e and
// reloads the language pack named by the global Langpack/Current setting,
// falling back to the default language when it is absent or fails to load.
func (m *Manager) SetCurrent(e storage.Engine) storage.Engine {
	var prev storage.Engine
	if e == nil {
		if old := m.current.Swap(nil); old != nil {
			prev = old.engine
		}
		m.log().Info().Msg("Database engine uninstalled")
		return prev
	}

	e.BindResidents(m.residents)
	if old := m.current.Swap(&engineRef{engine: e}); old != nil {
		prev = old.engine
	}

	session := uuid.New().String()
	logger := m.base.WithCorrelationId(session)
	m.logger.Store(logger)
	logger.Info().
		Str("profile", e.ProfileID()).
		Int("contacts", e.ContactCount()).
		Int("residents", m.residents.Len()).
		Msg("Database engine installed")

	m.reloadLangpack()
	return prev
}

func (m *Manager) reloadLangpack() {
	if m.lang == nil {
		return
	}
	name := m.Settings().GetStringDef(model.Global, model.ModuleLangpack, model.SettingLangpack, "")
	if name == "" {
		m.lang.LoadDefault()
		return
	}
	if err := m.lang.Load(name); err != nil {
		m.log().Warn().Err(err).Str("langpack", name).Msg("Language pack failed to load, using default")
		m.lang.LoadDefault()
	}
}

// Current returns the active engine.
func (m *Manager) Current() (storage.Engine, bool) {
	ref := m.current.Load()
	if ref == nil {
		return nil, false
	}
	return ref.engine, true
}

func (m *Manager) engine() (storage.Engine, error) {
	ref := m.current.Load()
	if ref == nil {
		return nil, ErrNoEngine
	}
	return ref.engine, nil
}

func (m *Manager) log() *logging.Logger {
	return m.logger.Load()
}

// SetCacheSafetyMode forwards to the active engine.
func (m *Manager) SetCacheSafetyMode(safe bool) error {
	e, err := m.engine()
	if err != nil {
		return err
	}
	return e.SetCacheSafetyMode(safe)
}

// SetResident marks or unmarks module/setting as memory-only.
func (m *Manager) SetResident(module, setting string, enable bool) error {
	return m.residents.MarkResident(module, setting, enable)
}

// EnumResidents calls fn with every resident "module/setting" name.
func (m *Manager) EnumResidents(fn func(name string) error) error {
	return m.residents.Enum(fn)
}

// Residents returns the registry bound to every installed engine.
func (m *Manager) Residents() *storage.Residents {
	return m.residents
}

// Settings returns the settings façade.
func (m *Manager) Settings() Settings { return Settings{m: m} }

// Events returns the event façade.
func (m *Manager) Events() Events { return Events{m: m} }

// Contacts returns the contact façade.
func (m *Manager) Contacts() Contacts { return Contacts{m: m} }

// Modules returns the module façade.
func (m *Manager) Modules() Modules { return Modules{m: m} }

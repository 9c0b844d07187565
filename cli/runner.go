// Command execution for CLI commands.
//
// Information Hiding:
// - Config loading, engine selection and langpack wiring hidden behind Open
// - Argument parsing (contacts, kinds, values) hidden
// - Output formatting hidden

package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/contactdb/config"
	"github.com/richinex/contactdb/db"
	"github.com/richinex/contactdb/langpack"
	"github.com/richinex/contactdb/logging"
	"github.com/richinex/contactdb/model"
	"github.com/richinex/contactdb/storage"
)

// Options holds CLI execution options.
type Options struct {
	// ConfigPaths are TOML files merged in order. Missing files are skipped.
	ConfigPaths []string
	// Engine and Path override the configured storage when set.
	Engine  string
	Path    string
	Verbose bool

	// Out receives command output. Defaults to stdout.
	Out io.Writer
	// Logger overrides the configured logger.
	Logger *logging.Logger
}

// Session is an open profile with its engine installed.
type Session struct {
	Manager  *db.Manager
	Lang     *langpack.Loader
	Settings config.Settings

	engine storage.Engine
	logger *logging.Logger
	out    io.Writer
}

// Open loads configuration, opens the configured engine and installs it.
func Open(opts Options) (*Session, error) {
	cfg, err := config.Load(opts.ConfigPaths...)
	if err != nil {
		return nil, err
	}
	if opts.Engine != "" {
		cfg.Storage.Engine = config.NormalizeEngine(opts.Engine)
	}
	if opts.Path != "" {
		cfg.Storage.Path = opts.Path
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(cfg.Logging)
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if err := model.SetCodePage(cfg.CodePage); err != nil {
		return nil, err
	}
	locale, err := cfg.Locale()
	if err != nil {
		return nil, err
	}

	engine, err := OpenEngine(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := engine.SetCacheSafetyMode(cfg.Storage.SafetyMode); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("failed to set safety mode: %w", err)
	}

	lang := langpack.NewLoader(cfg.Langpack.Dir, locale, logger)
	manager := db.New(db.Config{Logger: logger, LangLoader: lang})
	for _, name := range cfg.Residents {
		module, setting, _ := config.SplitResident(name)
		if err := manager.SetResident(module, setting, true); err != nil {
			_ = engine.Close()
			return nil, err
		}
	}
	manager.SetCurrent(engine)

	logger.Debug().
		Str("engine", cfg.Storage.Engine).
		Str("path", cfg.Storage.Path).
		Str("code_page", model.CodePage()).
		Msg("Profile opened")

	return &Session{
		Manager:  manager,
		Lang:     lang,
		Settings: cfg,
		engine:   engine,
		logger:   logger,
		out:      out,
	}, nil
}

// OpenEngine opens the engine named by cfg.
func OpenEngine(cfg config.StorageConfig) (storage.Engine, error) {
	switch cfg.Engine {
	case config.EngineMemory:
		return storage.NewMemoryEngine(), nil
	case config.EngineSqlite:
		return storage.OpenSqlite(cfg.Path)
	case config.EngineBolt:
		return storage.OpenBolt(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage engine: %q", cfg.Engine)
	}
}

// Close uninstalls and closes the engine.
func (s *Session) Close() error {
	prev := s.Manager.SetCurrent(nil)
	if prev == nil {
		return nil
	}
	profile := prev.ProfileID()
	if err := prev.Close(); err != nil {
		return err
	}
	s.logger.Debug().Str("profile", profile).Msg("Profile closed")
	return nil
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Session) label(text string) string {
	return s.Lang.Translate(text)
}

// Info prints a profile summary.
func (s *Session) Info() error {
	engine, ok := s.Manager.Current()
	if !ok {
		return db.ErrNoEngine
	}
	s.printf("%s: %s\n", s.label("Profile"), engine.ProfileID())
	s.printf("%s: %s\n", s.label("Engine"), s.Settings.Storage.Engine)
	if p, ok := engine.(interface{ Path() string }); ok {
		s.printf("%s: %s\n", s.label("Path"), p.Path())
	}
	s.printf("%s: %d\n", s.label("Contacts"), s.Manager.Contacts().Count())
	s.printf("%s: %d\n", s.label("Global events"), s.Manager.Events().Count(model.Global))
	s.printf("%s: %d\n", s.label("Residents"), s.Manager.Residents().Len())
	s.printf("%s: %s\n", s.label("Code page"), model.CodePage())

	pack := s.Lang.Name()
	if pack == "" {
		pack = "default"
	}
	s.printf("%s: %s (%s)\n", s.label("Language"), pack, s.Lang.LocaleName())
	return nil
}

// GetSetting prints one setting as "kind value".
func (s *Session) GetSetting(contact, module, setting string) error {
	c, err := ParseContact(contact)
	if err != nil {
		return err
	}
	v, err := s.Manager.Settings().Get(c, module, setting)
	if err != nil {
		return fmt.Errorf("failed to read %s/%s: %w", module, setting, err)
	}
	s.printf("%s %s\n", v.Kind(), v)
	return nil
}

// SetSetting parses value as kind and stores it.
func (s *Session) SetSetting(contact, module, setting, kind, value string) error {
	c, err := ParseContact(contact)
	if err != nil {
		return err
	}
	v, err := ParseValue(kind, value)
	if err != nil {
		return err
	}
	if err := s.Manager.Settings().Set(c, module, setting, v); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", module, setting, err)
	}
	return nil
}

// UnsetSetting deletes one setting.
func (s *Session) UnsetSetting(contact, module, setting string) error {
	c, err := ParseContact(contact)
	if err != nil {
		return err
	}
	if err := s.Manager.Settings().Unset(c, module, setting); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", module, setting, err)
	}
	return nil
}

// ListSettings prints every setting of a contact's module.
func (s *Session) ListSettings(contact, module string) error {
	c, err := ParseContact(contact)
	if err != nil {
		return err
	}
	settings := s.Manager.Settings()
	return settings.Enum(c, module, func(name string) error {
		v, err := settings.Get(c, module, name)
		if err != nil {
			return err
		}
		s.printf("%s\t%s\t%s\n", name, v.Kind(), v)
		return nil
	})
}

// ListModules prints every module name.
func (s *Session) ListModules() error {
	return s.Manager.Modules().Enum(func(module string) error {
		s.printf("%s\n", module)
		return nil
	})
}

// DeleteModule removes a contact's module.
func (s *Session) DeleteModule(contact, module string) error {
	c, err := ParseContact(contact)
	if err != nil {
		return err
	}
	return s.Manager.Modules().Delete(c, module)
}

// ListContacts prints contacts, optionally only those of proto.
func (s *Session) ListContacts(proto string) error {
	contacts := s.Manager.Contacts()
	for c := contacts.FindFirst(proto); c != model.Global; c = contacts.FindNext(c, proto) {
		p := contacts.Proto(c)
		if p == "" {
			p = "-"
		}
		s.printf("%d\t%s\t%d\n", uint32(c), p, s.Manager.Events().Count(c))
	}
	return nil
}

// AddContact creates a contact owned by proto and prints its handle.
func (s *Session) AddContact(proto string) error {
	c, err := s.Manager.Contacts().Add()
	if err != nil {
		return fmt.Errorf("failed to add contact: %w", err)
	}
	if proto != "" {
		if err := s.Manager.Settings().SetString(c, model.ModuleProtocol, model.SettingProto, proto); err != nil {
			return fmt.Errorf("failed to set protocol: %w", err)
		}
	}
	s.printf("%d\n", uint32(c))
	return nil
}

// DeleteContact removes a contact with its settings and events.
func (s *Session) DeleteContact(contact string) error {
	c, err := ParseContact(contact)
	if err != nil {
		return err
	}
	if c == model.Global {
		return errors.New("the global contact cannot be deleted")
	}
	return s.Manager.Contacts().Delete(c)
}

// ListEvents prints a contact's history, oldest first.
func (s *Session) ListEvents(contact string, unreadOnly bool) error {
	c, err := ParseContact(contact)
	if err != nil {
		return err
	}
	events := s.Manager.Events()
	h := events.First(c)
	if unreadOnly {
		h = events.FirstUnread(c)
	}
	for ; h != model.NoEvent; h = events.Next(c, h) {
		ev, err := events.Get(h)
		if err != nil {
			return err
		}
		if unreadOnly && ev.IsRead() {
			continue
		}
		s.printEvent(h, ev)
	}
	return nil
}

func (s *Session) printEvent(h model.EventID, ev *model.Event) {
	read := " "
	if ev.IsRead() {
		read = "r"
	}
	s.printf("%d\t%s\t%s\t%s\t%d\t%s\n",
		uint32(h), ev.Timestamp.UTC().Format(time.RFC3339), read, ev.Module, ev.Type, ev.Text())
}

// AddEvent appends a message event and prints its handle. A non-empty id is
// attached as the event's module-scoped string id.
func (s *Session) AddEvent(contact, module, text, id string) error {
	c, err := ParseContact(contact)
	if err != nil {
		return err
	}
	events := s.Manager.Events()
	h, err := events.Add(c, &model.Event{
		Module: module,
		Type:   model.EventMessage,
		Flags:  model.FlagUTF,
		Blob:   []byte(text),
	})
	if err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}
	if id != "" {
		if err := events.SetID(module, h, id); err != nil {
			return fmt.Errorf("failed to set event id: %w", err)
		}
	}
	s.printf("%d\n", uint32(h))
	return nil
}

// ReadEvent prints one event and marks it read.
func (s *Session) ReadEvent(handle string) error {
	h, err := ParseEvent(handle)
	if err != nil {
		return err
	}
	events := s.Manager.Events()
	ev, err := events.Get(h)
	if err != nil {
		return fmt.Errorf("failed to read event %d: %w", h, err)
	}
	s.printEvent(h, ev)

	c, err := events.Contact(h)
	if err != nil {
		return err
	}
	return events.MarkRead(c, h)
}

// FindEvent prints the handle of the event holding a module-scoped id.
func (s *Session) FindEvent(module, id string) error {
	h, err := s.Manager.Events().GetByID(module, id)
	if err != nil {
		return fmt.Errorf("failed to find event %s/%s: %w", module, id, err)
	}
	s.printf("%d\n", uint32(h))
	return nil
}

// DeleteEvent removes an event from its owner's history.
func (s *Session) DeleteEvent(handle string) error {
	h, err := ParseEvent(handle)
	if err != nil {
		return err
	}
	events := s.Manager.Events()
	c, err := events.Contact(h)
	if err != nil {
		return fmt.Errorf("failed to find event %d: %w", h, err)
	}
	return events.Delete(c, h)
}

// ListResidents prints the resident setting names from configuration.
func (s *Session) ListResidents() error {
	return s.Manager.Modules().EnumResidents(func(name string) error {
		s.printf("%s\n", name)
		return nil
	})
}

// UseLangpack stores name as the profile's language pack and reinstalls the
// engine so it is loaded. An empty name selects the default language.
func (s *Session) UseLangpack(name string) error {
	settings := s.Manager.Settings()
	if name == "" {
		if err := settings.Unset(model.Global, model.ModuleLangpack, model.SettingLangpack); err != nil && !db.IsMissing(err) {
			return err
		}
	} else if err := settings.SetUTF8(model.Global, model.ModuleLangpack, model.SettingLangpack, name); err != nil {
		return err
	}

	s.Manager.SetCurrent(s.engine)

	if name != "" && s.Lang.Name() != name {
		return fmt.Errorf("language pack %q could not be loaded, using default", name)
	}
	return nil
}

// ParseContact accepts "global", a decimal handle or the "contact:N" form.
func ParseContact(s string) (model.ContactID, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "global") {
		return model.Global, nil
	}
	s = strings.TrimPrefix(s, "contact:")
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return model.Global, fmt.Errorf("invalid contact %q: %w", s, err)
	}
	return model.ContactID(n), nil
}

// ParseEvent parses a decimal event handle.
func ParseEvent(s string) (model.EventID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || n == 0 {
		return model.NoEvent, fmt.Errorf("invalid event handle %q", s)
	}
	return model.EventID(n), nil
}

// ParseValue builds a variant of the named kind. Numbers accept any base
// strconv understands; blobs are hex.
func ParseValue(kind, value string) (model.Variant, error) {
	k, err := model.ParseKind(kind)
	if err != nil {
		return model.None(), err
	}
	switch k {
	case model.KindByte, model.KindWord, model.KindDWord:
		bits := map[model.Kind]int{model.KindByte: 8, model.KindWord: 16, model.KindDWord: 32}[k]
		n, err := strconv.ParseUint(value, 0, bits)
		if err != nil {
			return model.None(), fmt.Errorf("invalid %s value %q: %w", k, value, err)
		}
		switch k {
		case model.KindByte:
			return model.Byte(byte(n)), nil
		case model.KindWord:
			return model.Word(uint16(n)), nil
		default:
			return model.DWord(uint32(n)), nil
		}
	case model.KindASCII:
		return model.ASCII(value), nil
	case model.KindUTF8:
		return model.UTF8(value), nil
	case model.KindWide:
		return model.Wide(value), nil
	case model.KindBlob:
		b, err := hex.DecodeString(value)
		if err != nil {
			return model.None(), fmt.Errorf("invalid blob value: %w", err)
		}
		return model.Blob(b), nil
	default:
		return model.None(), fmt.Errorf("cannot store a %s value", k)
	}
}

package langpack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/richinex/contactdb/logging"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrInvalidName reports a pack name that would escape the pack directory.
var ErrInvalidName = errors.New("invalid language pack name")

// Loader owns the active language pack.
type Loader struct {
	mu            sync.RWMutex
	dir           string
	defaultLocale language.Tag
	current       *Pack
	logger        *logging.Logger
}

// NewLoader creates a loader reading langpack_<name>.txt files from dir.
// Until a pack is loaded, strings are returned untranslated in defaultLocale.
func NewLoader(dir string, defaultLocale language.Tag, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewSilentLogger()
	}
	return &Loader{dir: dir, defaultLocale: defaultLocale, logger: logger}
}

// FileName returns the file a pack name maps to.
func FileName(name string) string {
	return "langpack_" + name + ".txt"
}

// Load parses and activates the named pack. The previous pack stays active on error.
func (l *Loader) Load(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	path := filepath.Join(l.dir, FileName(name))
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open language pack: %w", err)
	}
	defer f.Close()

	p, err := Parse(name, f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	l.mu.Lock()
	l.current = p
	l.mu.Unlock()

	l.logger.Info().
		Str("pack", name).
		Str("locale", p.Locale.String()).
		Int("entries", p.Len()).
		Msg("Language pack loaded")
	return nil
}

// LoadDefault drops any loaded pack.
func (l *Loader) LoadDefault() {
	l.mu.Lock()
	l.current = nil
	l.mu.Unlock()

	l.logger.Debug().Str("locale", l.defaultLocale.String()).Msg("Default language active")
}

// Translate returns the active translation of s, or s itself.
func (l *Loader) Translate(s string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current.Translate(s)
}

// Name returns the active pack name, empty for the default language.
func (l *Loader) Name() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return ""
	}
	return l.current.Name
}

// Locale returns the active pack's locale, falling back to the default locale
// when no pack is loaded or the pack declares none.
func (l *Loader) Locale() language.Tag {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil || l.current.Locale == language.Und {
		return l.defaultLocale
	}
	return l.current.Locale
}

// LocaleName returns the English display name of the active locale.
func (l *Loader) LocaleName() string {
	tag := l.Locale()
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}

// Package config provides application settings loaded from TOML files and environment variables.
//
// Settings are created via Load() which handles:
// - Default value application
// - TOML file merging (later files override earlier ones)
// - CONTACTDB_* environment variable parsing with validation

package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/richinex/contactdb/logging"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/language"
)

// Settings holds all application configuration.
type Settings struct {
	Storage  StorageConfig  `toml:"storage"`
	Langpack LangpackConfig `toml:"langpack"`
	Logging  logging.Config `toml:"logging"`
	// CodePage names the ANSI code page used for ASCII settings (WHATWG label).
	CodePage string `toml:"code_page"`
	// Residents lists "module/setting" pairs kept in memory only.
	Residents []string `toml:"residents"`
}

// StorageConfig selects and locates the storage engine.
type StorageConfig struct {
	Engine string `toml:"engine"`
	Path   string `toml:"path"`
	// SafetyMode keeps synchronous writes on; false trades durability for speed.
	SafetyMode bool `toml:"safety_mode"`
}

// LangpackConfig locates language packs.
type LangpackConfig struct {
	Dir           string `toml:"dir"`
	DefaultLocale string `toml:"default_locale"`
}

// Supported storage engines.
const (
	EngineMemory = "memory"
	EngineSqlite = "sqlite"
	EngineBolt   = "bolt"
)

// Engines returns the supported engine names.
func Engines() []string {
	return []string{EngineMemory, EngineSqlite, EngineBolt}
}

// Default returns settings for a SQLite profile in the working directory.
func Default() Settings {
	return Settings{
		Storage: StorageConfig{
			Engine:     EngineSqlite,
			Path:       "profile.sqlite",
			SafetyMode: true,
		},
		Langpack: LangpackConfig{
			Dir:           ".",
			DefaultLocale: "en-US",
		},
		Logging:  logging.DefaultConfig(),
		CodePage: "windows-1252",
	}
}

// Load starts from Default, merges each existing TOML file in order, then applies
// CONTACTDB_* environment overrides. Missing files are skipped.
// Returns an error if a file is malformed or a value is invalid.
func Load(paths ...string) (Settings, error) {
	settings := Default()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&settings); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&settings); err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// MustLoad loads settings.
// Panics if a file or environment variable is invalid.
// Use this only when configuration errors should be fatal.
func MustLoad(paths ...string) Settings {
	settings, err := Load(paths...)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate checks engine name, locale and code page.
func (s Settings) Validate() error {
	s.Storage.Engine = NormalizeEngine(s.Storage.Engine)
	if !isEngine(s.Storage.Engine) {
		return fmt.Errorf("unknown storage engine: %q (want one of %s)", s.Storage.Engine, strings.Join(Engines(), ", "))
	}
	if s.Storage.Engine != EngineMemory && s.Storage.Path == "" {
		return fmt.Errorf("storage path required for %s engine", s.Storage.Engine)
	}
	if _, err := s.Locale(); err != nil {
		return err
	}
	if _, err := htmlindex.Get(s.CodePage); err != nil {
		return fmt.Errorf("unknown code page: %q: %w", s.CodePage, err)
	}
	for _, name := range s.Residents {
		if _, _, err := SplitResident(name); err != nil {
			return err
		}
	}
	return nil
}

// SplitResident splits a "module/setting" resident name.
func SplitResident(name string) (module, setting string, err error) {
	module, setting, ok := strings.Cut(name, "/")
	if !ok || module == "" || setting == "" {
		return "", "", fmt.Errorf("invalid resident setting: %q (want module/setting)", name)
	}
	return module, setting, nil
}

// Locale parses the default language pack locale.
func (s Settings) Locale() (language.Tag, error) {
	tag, err := language.Parse(s.Langpack.DefaultLocale)
	if err != nil {
		return language.Und, fmt.Errorf("invalid default locale: %q: %w", s.Langpack.DefaultLocale, err)
	}
	return tag, nil
}

// engineAliases map to canonical engine names.
var engineAliases = map[string]string{
	"mem":     EngineMemory,
	"sqlite3": EngineSqlite,
	"bbolt":   EngineBolt,
	"boltdb":  EngineBolt,
}

// NormalizeEngine converts engine aliases such as "bbolt" to canonical names.
func NormalizeEngine(engine string) string {
	engine = strings.ToLower(strings.TrimSpace(engine))
	if canonical, ok := engineAliases[engine]; ok {
		return canonical
	}
	return engine
}

func isEngine(engine string) bool {
	for _, e := range Engines() {
		if e == engine {
			return true
		}
	}
	return false
}

// applyEnvOverrides applies CONTACTDB_* environment variables.
func applyEnvOverrides(s *Settings) error {
	s.Storage.Engine = NormalizeEngine(getEnvString("CONTACTDB_ENGINE", s.Storage.Engine))
	s.Storage.Path = getEnvString("CONTACTDB_PATH", s.Storage.Path)

	safe, err := getEnvBool("CONTACTDB_SAFETY_MODE", s.Storage.SafetyMode)
	if err != nil {
		return err
	}
	s.Storage.SafetyMode = safe

	s.Langpack.Dir = getEnvString("CONTACTDB_LANGPACK_DIR", s.Langpack.Dir)
	s.Langpack.DefaultLocale = getEnvString("CONTACTDB_DEFAULT_LOCALE", s.Langpack.DefaultLocale)
	s.CodePage = getEnvString("CONTACTDB_CODEPAGE", s.CodePage)
	if residents := os.Getenv("CONTACTDB_RESIDENTS"); residents != "" {
		s.Residents = splitList(residents)
	}

	s.Logging.Level = getEnvString("CONTACTDB_LOG_LEVEL", s.Logging.Level)
	s.Logging.FilePath = getEnvString("CONTACTDB_LOG_FILE", s.Logging.FilePath)
	if outputs := os.Getenv("CONTACTDB_LOG_OUTPUTS"); outputs != "" {
		s.Logging.Outputs = splitList(outputs)
	}
	maxSize, err := getEnvInt("CONTACTDB_LOG_MAX_SIZE_MB", s.Logging.MaxSizeMB)
	if err != nil {
		return err
	}
	s.Logging.MaxSizeMB = maxSize
	return nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}

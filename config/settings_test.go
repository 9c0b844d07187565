package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contactdb.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Storage.Engine != EngineSqlite {
		t.Errorf("expected engine 'sqlite', got %q", settings.Storage.Engine)
	}
	if !settings.Storage.SafetyMode {
		t.Error("expected safety mode on by default")
	}
	if settings.CodePage != "windows-1252" {
		t.Errorf("expected windows-1252, got %q", settings.CodePage)
	}
}

func TestLoadSkipsMissingFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMergesFilesInOrder(t *testing.T) {
	first := writeConfig(t, `
code_page = "windows-1251"

[storage]
engine = "bolt"
path = "first.db"

[logging]
level = "debug"
`)
	second := writeConfig(t, `
[storage]
path = "second.db"
`)

	settings, err := Load(first, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Storage.Engine != EngineBolt {
		t.Errorf("expected engine 'bolt', got %q", settings.Storage.Engine)
	}
	if settings.Storage.Path != "second.db" {
		t.Errorf("expected later file to win, got %q", settings.Storage.Path)
	}
	if settings.Logging.Level != "debug" {
		t.Errorf("expected level 'debug', got %q", settings.Logging.Level)
	}
	if settings.CodePage != "windows-1251" {
		t.Errorf("expected windows-1251, got %q", settings.CodePage)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[storage]
engnie = "bolt"
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for misspelled key")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[storage]
engine = "bolt"
path = "file.db"
`)
	t.Setenv("CONTACTDB_ENGINE", "memory")
	t.Setenv("CONTACTDB_SAFETY_MODE", "false")
	t.Setenv("CONTACTDB_LOG_OUTPUTS", "console, file")
	t.Setenv("CONTACTDB_DEFAULT_LOCALE", "de-DE")

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Storage.Engine != EngineMemory {
		t.Errorf("expected env to select memory, got %q", settings.Storage.Engine)
	}
	if settings.Storage.SafetyMode {
		t.Error("expected safety mode off from env")
	}
	if strings.Join(settings.Logging.Outputs, ",") != "console,file" {
		t.Errorf("expected [console file], got %v", settings.Logging.Outputs)
	}
	tag, err := settings.Locale()
	if err != nil || tag != language.MustParse("de-DE") {
		t.Errorf("expected de-DE, got %s (%v)", tag, err)
	}
}

func TestEngineAliases(t *testing.T) {
	t.Setenv("CONTACTDB_ENGINE", "BBolt")
	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Storage.Engine != EngineBolt {
		t.Errorf("expected alias to normalize to 'bolt', got %q", settings.Storage.Engine)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := []struct {
		key, val string
	}{
		{"CONTACTDB_ENGINE", "postgres"},
		{"CONTACTDB_SAFETY_MODE", "maybe"},
		{"CONTACTDB_LOG_MAX_SIZE_MB", "lots"},
		{"CONTACTDB_DEFAULT_LOCALE", "not a locale!"},
		{"CONTACTDB_CODEPAGE", "klingon-1"},
		{"CONTACTDB_RESIDENTS", "CList/Status, NoSlash"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestMustLoadPanicsOnInvalid(t *testing.T) {
	t.Setenv("CONTACTDB_ENGINE", "postgres")
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid engine")
		}
	}()
	MustLoad()
}

func TestValidateRequiresPathForFileEngines(t *testing.T) {
	s := Default()
	s.Storage.Path = ""
	if err := s.Validate(); err == nil {
		t.Error("expected error for sqlite without a path")
	}
	s.Storage.Engine = EngineMemory
	if err := s.Validate(); err != nil {
		t.Errorf("expected memory engine to need no path, got %v", err)
	}
}

func TestResidentsFromFileAndEnv(t *testing.T) {
	path := writeConfig(t, `residents = ["CList/Status", "Idle/IsIdle"]`)
	settings, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(settings.Residents) != 2 {
		t.Fatalf("expected 2 residents, got %v", settings.Residents)
	}
	module, setting, err := SplitResident(settings.Residents[1])
	if err != nil || module != "Idle" || setting != "IsIdle" {
		t.Errorf("expected Idle/IsIdle, got %s/%s (%v)", module, setting, err)
	}

	t.Setenv("CONTACTDB_RESIDENTS", "Away/Since")
	settings, err = Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(settings.Residents, ",") != "Away/Since" {
		t.Errorf("expected env to replace residents, got %v", settings.Residents)
	}
}

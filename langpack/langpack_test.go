package langpack

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/language"
)

const samplePack = `Miranda Language Pack Version 1
Locale: de-DE
Authors: Example Translators
; comment lines are ignored

[Add contact]
Kontakt hinzufügen
[Line one\nLine two]
Zeile eins\nZeile zwei
`

func TestParse(t *testing.T) {
	p, err := Parse("german", strings.NewReader(samplePack))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Locale != language.MustParse("de-DE") {
		t.Errorf("expected de-DE, got %s", p.Locale)
	}
	if p.Header["Authors"] != "Example Translators" {
		t.Errorf("expected authors header, got %q", p.Header["Authors"])
	}
	if p.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", p.Len())
	}
	if got := p.Translate("Add contact"); got != "Kontakt hinzufügen" {
		t.Errorf("expected translation, got %q", got)
	}
	if got := p.Translate("Line one\nLine two"); got != "Zeile eins\nZeile zwei" {
		t.Errorf("expected escaped newline to be decoded, got %q", got)
	}
	if got := p.Translate("Unknown"); got != "Unknown" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"bad locale", "Locale: not a tag!!\n", ErrBadLocale},
		{"dangling original", "[Hello]\n", ErrDangling},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("x", strings.NewReader(tc.input))
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNilPackTranslates(t *testing.T) {
	var p *Pack
	if got := p.Translate("same"); got != "same" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestLoaderLoadAndDefault(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName("german")), []byte(samplePack), 0644); err != nil {
		t.Fatalf("Failed to write pack: %v", err)
	}

	l := NewLoader(dir, language.AmericanEnglish, nil)
	if l.Locale() != language.AmericanEnglish {
		t.Errorf("expected default locale before load, got %s", l.Locale())
	}

	if err := l.Load("german"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if l.Name() != "german" {
		t.Errorf("expected active pack german, got %q", l.Name())
	}
	if got := l.Translate("Add contact"); got != "Kontakt hinzufügen" {
		t.Errorf("expected translation, got %q", got)
	}
	if l.LocaleName() == "" {
		t.Error("expected a display name for the locale")
	}

	if err := l.Load("missing"); err == nil {
		t.Error("expected error loading a missing pack")
	}
	if l.Name() != "german" {
		t.Errorf("expected failed load to keep the previous pack, got %q", l.Name())
	}

	l.LoadDefault()
	if l.Name() != "" || l.Translate("Add contact") != "Add contact" {
		t.Error("expected default language after LoadDefault")
	}
	if l.Locale() != language.AmericanEnglish {
		t.Errorf("expected default locale, got %s", l.Locale())
	}
}

func TestLoaderRejectsPathNames(t *testing.T) {
	l := NewLoader(t.TempDir(), language.English, nil)
	for _, name := range []string{"", "..", "../etc", `a\b`} {
		if err := l.Load(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Load(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

// Package langpack loads translation packs selected by a profile.
//
// Information Hiding:
// - File format parsing hidden behind Parse
// - Translations keyed by a 64-bit hash of the original string
// - The active pack is swapped atomically under a lock

package langpack

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/language"
)

var (
	// ErrBadLocale reports a Locale header that is not a BCP 47 tag.
	ErrBadLocale = errors.New("invalid locale tag")
	// ErrDangling reports an [original] line with no translation after it.
	ErrDangling = errors.New("original without translation")
)

// Pack is one parsed language pack.
type Pack struct {
	Name   string
	Locale language.Tag
	// Header holds every "Key: Value" line before the first entry.
	Header map[string]string

	entries map[uint64]string
}

var unescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\t`, "\t")

// Parse reads a pack:
//
//	Miranda Language Pack Version 1
//	Locale: en-GB
//	; comment
//	[Original text]
//	Translated text
//
// Lines starting with ';' and blank lines are ignored. The version line is optional.
func Parse(name string, r io.Reader) (*Pack, error) {
	p := &Pack{
		Name:    name,
		Locale:  language.Und,
		Header:  make(map[string]string),
		entries: make(map[uint64]string),
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var (
		lineNo   int
		pending  string
		awaiting bool
		inBody   bool
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		if awaiting {
			p.entries[hashKey(pending)] = unescaper.Replace(line)
			awaiting = false
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inBody = true
			pending = unescaper.Replace(line[1 : len(line)-1])
			awaiting = true
			continue
		}

		if inBody {
			return nil, fmt.Errorf("line %d: expected [original], got %q", lineNo, line)
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			// Version banner and other free text before the first entry.
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		p.Header[key] = value
		if strings.EqualFold(key, "Locale") {
			tag, err := language.Parse(value)
			if err != nil {
				return nil, fmt.Errorf("%w %q: %v", ErrBadLocale, value, err)
			}
			p.Locale = tag
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read language pack: %w", err)
	}
	if awaiting {
		return nil, fmt.Errorf("%w: %q", ErrDangling, pending)
	}
	return p, nil
}

func hashKey(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Translate returns the translation of s, or s itself.
func (p *Pack) Translate(s string) string {
	if p == nil {
		return s
	}
	if t, ok := p.entries[hashKey(s)]; ok {
		return t
	}
	return s
}

// Len returns the number of translated strings.
func (p *Pack) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

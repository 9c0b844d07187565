package model

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// ansi holds the code page ASCII variants are stored in.
var ansi atomic.Pointer[encoding.Encoding]

func init() {
	var enc encoding.Encoding = charmap.Windows1252
	ansi.Store(&enc)
}

// SetCodePage selects the ANSI code page by its WHATWG name,
// e.g. "windows-1252" or "windows-1251".
func SetCodePage(name string) error {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return fmt.Errorf("unknown code page %q: %w", name, err)
	}
	ansi.Store(&enc)
	return nil
}

// CodePage returns the name of the active ANSI code page.
func CodePage() string {
	name, err := htmlindex.Name(*ansi.Load())
	if err != nil {
		return "unknown"
	}
	return name
}

func encodeANSI(s string) []byte {
	enc := encoding.ReplaceUnsupported((*ansi.Load()).NewEncoder())
	b, err := enc.Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return b
}

func decodeANSI(b []byte) string {
	s, err := (*ansi.Load()).NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

package model

import (
	"errors"
	"testing"
)

func TestVariantRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    Variant
		kind Kind
	}{
		{"byte", Byte(0x7f), KindByte},
		{"word", Word(0xbeef), KindWord},
		{"dword", DWord(0xdeadbeef), KindDWord},
		{"ascii", ASCII("hello"), KindASCII},
		{"utf8", UTF8("Привет"), KindUTF8},
		{"wide", Wide("Alice"), KindWide},
		{"blob", Blob([]byte{0, 1, 2}), KindBlob},
		{"none", None(), KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.v.Kind() != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, tt.v.Kind())
			}
			if !tt.v.Equal(tt.v) {
				t.Error("variant should equal itself")
			}
		})
	}
}

func TestVariantAccessorsFailFast(t *testing.T) {
	v := DWord(5)

	if _, err := v.AsByte(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("expected ErrKindMismatch, got %v", err)
	}
	if _, err := v.AsString(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("expected ErrKindMismatch, got %v", err)
	}
	if _, err := v.AsBytes(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("expected ErrKindMismatch, got %v", err)
	}
	if d, err := v.AsDWord(); err != nil || d != 5 {
		t.Errorf("expected 5, got %d (%v)", d, err)
	}
}

func TestVariantNumericNarrowing(t *testing.T) {
	v := DWord(0x01020304)

	b, ok := v.CoerceByte()
	if !ok || b != 0x04 {
		t.Errorf("expected 0x04, got %#x", b)
	}
	w, ok := v.CoerceWord()
	if !ok || w != 0x0304 {
		t.Errorf("expected 0x0304, got %#x", w)
	}

	d, ok := Byte(0xff).CoerceDWord()
	if !ok || d != 0xff {
		t.Errorf("expected zero-extended 0xff, got %#x", d)
	}

	if _, ok := UTF8("12").CoerceDWord(); ok {
		t.Error("string variant must not coerce to a number")
	}
}

func TestVariantStringConversions(t *testing.T) {
	v := ASCII("café")
	raw, err := v.AsBytes()
	if err != nil {
		t.Fatalf("AsBytes failed: %v", err)
	}
	if len(raw) != 4 || raw[3] != 0xe9 {
		t.Errorf("expected windows-1252 encoding, got %x", raw)
	}

	s, err := v.ToString()
	if err != nil || s != "café" {
		t.Errorf("expected 'café', got %q (%v)", s, err)
	}

	w := Wide("Ω")
	units, err := w.ToUTF16()
	if err != nil || len(units) != 1 || units[0] != 0x03a9 {
		t.Errorf("unexpected UTF-16 units %v (%v)", units, err)
	}
	if !WideFromUTF16(units).Equal(w) {
		t.Error("expected wide round trip through UTF-16")
	}

	ansi, err := UTF8("snow ☃").ToANSI()
	if err != nil {
		t.Fatalf("ToANSI failed: %v", err)
	}
	if len(ansi) != 6 || ansi[5] != 0x1a {
		t.Errorf("expected unmappable rune to be replaced by SUB, got %x", ansi)
	}
}

func TestVariantCopiesPayload(t *testing.T) {
	src := []byte{1, 2, 3}
	v := Blob(src)
	src[0] = 9

	got, _ := v.AsBytes()
	if got[0] != 1 {
		t.Error("blob variant must not alias caller memory")
	}
	got[1] = 9
	again, _ := v.AsBytes()
	if again[1] != 2 {
		t.Error("AsBytes must return a copy")
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindByte, KindWord, KindDWord, KindASCII, KindUTF8, KindWide, KindBlob} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("float"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestSetCodePage(t *testing.T) {
	if err := SetCodePage("windows-1251"); err != nil {
		t.Fatalf("SetCodePage failed: %v", err)
	}
	defer SetCodePage("windows-1252")

	if CodePage() != "windows-1251" {
		t.Errorf("expected windows-1251, got %s", CodePage())
	}
	s, _ := ASCII("Привет").ToString()
	if s != "Привет" {
		t.Errorf("expected cyrillic round trip, got %q", s)
	}

	if err := SetCodePage("no-such-page"); err == nil {
		t.Error("expected error for unknown code page")
	}
}

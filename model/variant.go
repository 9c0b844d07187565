package model

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf16"
)

// Kind tags the arm of a Variant. The numeric values are the persisted kind
// codes written by every storage engine.
type Kind byte

const (
	KindNone  Kind = 0
	KindByte  Kind = 1
	KindWord  Kind = 2
	KindDWord Kind = 4
	KindWide  Kind = 252
	KindUTF8  Kind = 253
	KindBlob  Kind = 254
	KindASCII Kind = 255
)

// ErrKindMismatch is returned by accessors asked for an arm the Variant does not hold.
var ErrKindMismatch = errors.New("variant kind mismatch")

// String returns the kind name used in logs and the CLI.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindByte:
		return "byte"
	case KindWord:
		return "word"
	case KindDWord:
		return "dword"
	case KindASCII:
		return "ascii"
	case KindUTF8:
		return "utf8"
	case KindWide:
		return "wide"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// ParseKind parses a kind name as printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindNone, KindByte, KindWord, KindDWord, KindASCII, KindUTF8, KindWide, KindBlob} {
		if k.String() == s {
			return k, nil
		}
	}
	return KindNone, fmt.Errorf("unknown variant kind: %q", s)
}

// IsNumeric reports whether the kind is Byte, Word or DWord.
func (k Kind) IsNumeric() bool {
	return k == KindByte || k == KindWord || k == KindDWord
}

// IsString reports whether the kind is one of the three string kinds.
func (k Kind) IsString() bool {
	return k == KindASCII || k == KindUTF8 || k == KindWide
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindNone || k.IsNumeric() || k.IsString() || k == KindBlob
}

// Variant is one stored setting value.
//
// Numeric arms share num. ASCII payloads are raw bytes in the ANSI code page,
// blob payloads are raw bytes, UTF-8 and wide strings are held as Go strings.
// Payload slices are copied in and out, so a Variant never aliases caller memory.
type Variant struct {
	kind Kind
	num  uint32
	str  string
	raw  []byte
}

// None returns the absent value.
func None() Variant { return Variant{} }

// Byte returns a Byte variant.
func Byte(b byte) Variant { return Variant{kind: KindByte, num: uint32(b)} }

// Word returns a Word variant.
func Word(w uint16) Variant { return Variant{kind: KindWord, num: uint32(w)} }

// DWord returns a DWord variant.
func DWord(d uint32) Variant { return Variant{kind: KindDWord, num: d} }

// ASCII returns an ASCII variant, encoding s into the ANSI code page.
// Runes the code page cannot represent are replaced.
func ASCII(s string) Variant {
	return Variant{kind: KindASCII, raw: encodeANSI(s)}
}

// ASCIIBytes returns an ASCII variant holding bytes already in the ANSI code page.
func ASCIIBytes(b []byte) Variant {
	return Variant{kind: KindASCII, raw: bytes.Clone(nonNil(b))}
}

// UTF8 returns a UTF-8 string variant.
func UTF8(s string) Variant { return Variant{kind: KindUTF8, str: s} }

// Wide returns a wide string variant.
func Wide(s string) Variant { return Variant{kind: KindWide, str: s} }

// WideFromUTF16 returns a wide string variant from UTF-16 code units.
func WideFromUTF16(u []uint16) Variant {
	return Variant{kind: KindWide, str: string(utf16.Decode(u))}
}

// Blob returns a blob variant holding a copy of b.
func Blob(b []byte) Variant {
	return Variant{kind: KindBlob, raw: bytes.Clone(nonNil(b))}
}

// Kind returns the variant's tag.
func (v Variant) Kind() Kind { return v.kind }

// IsNone reports whether the variant is absent.
func (v Variant) IsNone() bool { return v.kind == KindNone }

// AsByte returns the Byte arm.
func (v Variant) AsByte() (byte, error) {
	if v.kind != KindByte {
		return 0, fmt.Errorf("%w: want byte, have %s", ErrKindMismatch, v.kind)
	}
	return byte(v.num), nil
}

// AsWord returns the Word arm.
func (v Variant) AsWord() (uint16, error) {
	if v.kind != KindWord {
		return 0, fmt.Errorf("%w: want word, have %s", ErrKindMismatch, v.kind)
	}
	return uint16(v.num), nil
}

// AsDWord returns the DWord arm.
func (v Variant) AsDWord() (uint32, error) {
	if v.kind != KindDWord {
		return 0, fmt.Errorf("%w: want dword, have %s", ErrKindMismatch, v.kind)
	}
	return v.num, nil
}

// AsBytes returns a copy of the Blob arm or of the raw ANSI bytes of an ASCII variant.
func (v Variant) AsBytes() ([]byte, error) {
	if v.kind != KindBlob && v.kind != KindASCII {
		return nil, fmt.Errorf("%w: want blob, have %s", ErrKindMismatch, v.kind)
	}
	return bytes.Clone(nonNil(v.raw)), nil
}

// AsString returns the UTF-8 or Wide arm as a Go string.
// ASCII variants are rejected here; use ToString to convert them.
func (v Variant) AsString() (string, error) {
	if v.kind != KindUTF8 && v.kind != KindWide {
		return "", fmt.Errorf("%w: want string, have %s", ErrKindMismatch, v.kind)
	}
	return v.str, nil
}

// ToString converts any string kind to a Go (UTF-8) string.
func (v Variant) ToString() (string, error) {
	switch v.kind {
	case KindASCII:
		return decodeANSI(v.raw), nil
	case KindUTF8, KindWide:
		return v.str, nil
	default:
		return "", fmt.Errorf("%w: want string, have %s", ErrKindMismatch, v.kind)
	}
}

// ToANSI converts any string kind to bytes in the ANSI code page.
func (v Variant) ToANSI() ([]byte, error) {
	switch v.kind {
	case KindASCII:
		return bytes.Clone(nonNil(v.raw)), nil
	case KindUTF8, KindWide:
		return encodeANSI(v.str), nil
	default:
		return nil, fmt.Errorf("%w: want string, have %s", ErrKindMismatch, v.kind)
	}
}

// ToUTF16 converts any string kind to UTF-16 code units.
func (v Variant) ToUTF16() ([]uint16, error) {
	s, err := v.ToString()
	if err != nil {
		return nil, err
	}
	return utf16.Encode([]rune(s)), nil
}

// CoerceDWord widens any numeric kind to 32 bits.
// The second result is false for non-numeric kinds.
func (v Variant) CoerceDWord() (uint32, bool) {
	if !v.kind.IsNumeric() {
		return 0, false
	}
	return v.num, true
}

// CoerceWord returns a numeric value masked or zero-extended to 16 bits.
func (v Variant) CoerceWord() (uint16, bool) {
	d, ok := v.CoerceDWord()
	return uint16(d & 0xFFFF), ok
}

// CoerceByte returns a numeric value masked or zero-extended to 8 bits.
func (v Variant) CoerceByte() (byte, bool) {
	d, ok := v.CoerceDWord()
	return byte(d & 0xFF), ok
}

// Equal reports whether both variants have the same kind and payload.
func (v Variant) Equal(o Variant) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindByte, KindWord, KindDWord:
		return v.num == o.num
	case KindUTF8, KindWide:
		return v.str == o.str
	default:
		return bytes.Equal(v.raw, o.raw)
	}
}

// String formats the variant for logs and the CLI.
func (v Variant) String() string {
	switch v.kind {
	case KindNone:
		return "<none>"
	case KindByte, KindWord, KindDWord:
		return fmt.Sprintf("%d", v.num)
	case KindASCII:
		return decodeANSI(v.raw)
	case KindUTF8, KindWide:
		return v.str
	default:
		return fmt.Sprintf("%x", v.raw)
	}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

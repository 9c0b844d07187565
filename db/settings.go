package db

import (
	"fmt"

	"github.com/richinex/contactdb/model"
)

// Settings reads and writes (contact, module, setting) values.
//
// Getters taking a default return it when no engine is installed, the key is
// absent, or the stored kind cannot be converted. Getters returning an error
// report ErrNoEngine or ErrNotFound in those cases.
type Settings struct {
	m *Manager
}

func validKey(module, setting string) error {
	if module == "" || setting == "" {
		return ErrInvalidKey
	}
	return nil
}

// Get returns the stored variant.
func (s Settings) Get(c model.ContactID, module, setting string) (model.Variant, error) {
	if err := validKey(module, setting); err != nil {
		return model.None(), err
	}
	e, err := s.m.engine()
	if err != nil {
		return model.None(), err
	}
	return e.GetSetting(c, module, setting)
}

// GetByte returns a numeric setting masked or zero-extended to 8 bits.
func (s Settings) GetByte(c model.ContactID, module, setting string, def byte) byte {
	v, err := s.Get(c, module, setting)
	if err != nil {
		return def
	}
	if b, ok := v.CoerceByte(); ok {
		return b
	}
	return def
}

// GetWord returns a numeric setting masked or zero-extended to 16 bits.
func (s Settings) GetWord(c model.ContactID, module, setting string, def uint16) uint16 {
	v, err := s.Get(c, module, setting)
	if err != nil {
		return def
	}
	if w, ok := v.CoerceWord(); ok {
		return w
	}
	return def
}

// GetDWord returns a numeric setting zero-extended to 32 bits.
func (s Settings) GetDWord(c model.ContactID, module, setting string, def uint32) uint32 {
	v, err := s.Get(c, module, setting)
	if err != nil {
		return def
	}
	if d, ok := v.CoerceDWord(); ok {
		return d
	}
	return def
}

// GetString returns any string kind as UTF-8.
func (s Settings) GetString(c model.ContactID, module, setting string) (string, error) {
	v, err := s.Get(c, module, setting)
	if err != nil {
		return "", err
	}
	str, err := v.ToString()
	if err != nil {
		return "", notString(module, setting, v)
	}
	return str, nil
}

// GetStringDef returns any string kind as UTF-8, or def.
func (s Settings) GetStringDef(c model.ContactID, module, setting, def string) string {
	str, err := s.GetString(c, module, setting)
	if err != nil {
		return def
	}
	return str
}

// GetANSI returns any string kind encoded in the ANSI code page.
func (s Settings) GetANSI(c model.ContactID, module, setting string) ([]byte, error) {
	v, err := s.Get(c, module, setting)
	if err != nil {
		return nil, err
	}
	b, err := v.ToANSI()
	if err != nil {
		return nil, notString(module, setting, v)
	}
	return b, nil
}

// GetWide returns any string kind as UTF-16 code units.
func (s Settings) GetWide(c model.ContactID, module, setting string) ([]uint16, error) {
	v, err := s.Get(c, module, setting)
	if err != nil {
		return nil, err
	}
	u, err := v.ToUTF16()
	if err != nil {
		return nil, notString(module, setting, v)
	}
	return u, nil
}

// GetBlob returns a blob setting.
func (s Settings) GetBlob(c model.ContactID, module, setting string) ([]byte, error) {
	v, err := s.Get(c, module, setting)
	if err != nil {
		return nil, err
	}
	if v.Kind() != model.KindBlob {
		return nil, fmt.Errorf("%w: %s/%s is %s", model.ErrKindMismatch, module, setting, v.Kind())
	}
	return v.AsBytes()
}

// GetStatic copies a string setting, ANSI encoded, into buf without allocating
// a result. It returns the number of bytes written, or ErrBufferTooSmall when
// the value does not fit; buf is left untouched in that case.
func (s Settings) GetStatic(c model.ContactID, module, setting string, buf []byte) (int, error) {
	b, err := s.GetANSI(c, module, setting)
	if err != nil {
		return 0, err
	}
	if len(b) > len(buf) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, len(b), len(buf))
	}
	return copy(buf, b), nil
}

// GetWStatic is GetStatic for UTF-16 buffers.
func (s Settings) GetWStatic(c model.ContactID, module, setting string, buf []uint16) (int, error) {
	u, err := s.GetWide(c, module, setting)
	if err != nil {
		return 0, err
	}
	if len(u) > len(buf) {
		return 0, fmt.Errorf("%w: need %d units, have %d", ErrBufferTooSmall, len(u), len(buf))
	}
	return copy(buf, u), nil
}

func notString(module, setting string, v model.Variant) error {
	return fmt.Errorf("%w: %s/%s is %s", ErrNotString, module, setting, v.Kind())
}

// Set stores v. Engine failures are returned unchanged.
func (s Settings) Set(c model.ContactID, module, setting string, v model.Variant) error {
	if err := validKey(module, setting); err != nil {
		return err
	}
	e, err := s.m.engine()
	if err != nil {
		return err
	}
	return e.WriteSetting(c, module, setting, v)
}

// SetByte stores a byte.
func (s Settings) SetByte(c model.ContactID, module, setting string, b byte) error {
	return s.Set(c, module, setting, model.Byte(b))
}

// SetWord stores a word.
func (s Settings) SetWord(c model.ContactID, module, setting string, w uint16) error {
	return s.Set(c, module, setting, model.Word(w))
}

// SetDWord stores a dword.
func (s Settings) SetDWord(c model.ContactID, module, setting string, d uint32) error {
	return s.Set(c, module, setting, model.DWord(d))
}

// SetString stores str as an ANSI string in the configured code page.
func (s Settings) SetString(c model.ContactID, module, setting, str string) error {
	return s.Set(c, module, setting, model.ASCII(str))
}

// SetUTF8 stores a UTF-8 string.
func (s Settings) SetUTF8(c model.ContactID, module, setting, str string) error {
	return s.Set(c, module, setting, model.UTF8(str))
}

// SetWString stores a wide string.
func (s Settings) SetWString(c model.ContactID, module, setting, str string) error {
	return s.Set(c, module, setting, model.Wide(str))
}

// SetBlob stores a copy of b.
func (s Settings) SetBlob(c model.ContactID, module, setting string, b []byte) error {
	return s.Set(c, module, setting, model.Blob(b))
}

// Unset deletes a setting. Unlike the getters it reports ErrNotFound and
// engine failures so callers can tell whether anything was removed.
func (s Settings) Unset(c model.ContactID, module, setting string) error {
	if err := validKey(module, setting); err != nil {
		return err
	}
	e, err := s.m.engine()
	if err != nil {
		return err
	}
	return e.DeleteSetting(c, module, setting)
}

// Enum calls fn with each setting name of a contact's module.
func (s Settings) Enum(c model.ContactID, module string, fn func(setting string) error) error {
	if module == "" {
		return ErrInvalidKey
	}
	e, err := s.m.engine()
	if err != nil {
		return err
	}
	return e.EnumSettings(c, module, fn)
}

// Exists reports whether a setting is present.
func (s Settings) Exists(c model.ContactID, module, setting string) bool {
	_, err := s.Get(c, module, setting)
	return err == nil
}

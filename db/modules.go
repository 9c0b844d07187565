package db

import "github.com/richinex/contactdb/model"

// Modules enumerates and removes whole setting modules.
type Modules struct {
	m *Manager
}

// Enum calls fn once per module holding a setting for any contact.
func (mo Modules) Enum(fn func(module string) error) error {
	e, err := mo.m.engine()
	if err != nil {
		return err
	}
	return e.EnumModules(fn)
}

// Delete removes every setting of a contact's module.
func (mo Modules) Delete(c model.ContactID, module string) error {
	if module == "" {
		return ErrInvalidKey
	}
	e, err := mo.m.engine()
	if err != nil {
		return err
	}
	return e.DeleteModule(c, module)
}

// EnumResidents calls fn with each resident "module/setting" name. It works
// without an engine since the registry belongs to the manager.
func (mo Modules) EnumResidents(fn func(name string) error) error {
	return mo.m.EnumResidents(fn)
}

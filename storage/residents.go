package storage

import (
	"errors"
	"sync"

	"github.com/richinex/contactdb/internal/dsa"
)

// ErrInvalidName reports an empty module or setting name.
var ErrInvalidName = errors.New("module and setting names must not be empty")

// Residents is the registry of settings kept in memory only.
//
// It is populated while components initialize and read on every setting
// access afterwards, so lookups take the read lock only.
// A nil *Residents has no entries.
type Residents struct {
	mu    sync.RWMutex
	names *dsa.Trie[struct{}]
}

// NewResidents creates an empty registry.
func NewResidents() *Residents {
	return &Residents{names: dsa.NewTrie[struct{}]()}
}

// ResidentName is the registry key for a module/setting pair.
func ResidentName(module, setting string) string {
	return module + "/" + setting
}

// MarkResident adds (enable) or removes a module/setting pair.
func (r *Residents) MarkResident(module, setting string, enable bool) error {
	if module == "" || setting == "" {
		return ErrInvalidName
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	name := ResidentName(module, setting)
	if enable {
		r.names.Insert(name, struct{}{})
	} else {
		r.names.Delete(name)
	}
	return nil
}

// IsResident reports whether the pair must never be persisted.
func (r *Residents) IsResident(module, setting string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names.Get(ResidentName(module, setting))
	return ok
}

// Enum calls fn with every registered "module/setting" name in lexical order.
func (r *Residents) Enum(fn func(name string) error) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := r.names.Keys("")
	r.mu.RUnlock()

	for _, n := range names {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of registered pairs.
func (r *Residents) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names.Size()
}

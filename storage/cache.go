package storage

import (
	"sort"
	"sync"

	"github.com/richinex/contactdb/model"
)

// contactCache is the engine-side contact index: a sorted handle list plus
// each contact's protocol. Enumeration resumes from "first handle greater than
// the last one seen", so deleting the current contact mid-walk is harmless.
type contactCache struct {
	mu    sync.RWMutex
	ids   []model.ContactID
	proto map[model.ContactID]string
}

func newContactCache() *contactCache {
	return &contactCache{proto: make(map[model.ContactID]string)}
}

func (c *contactCache) add(id model.ContactID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := sort.Search(len(c.ids), func(i int) bool { return c.ids[i] >= id })
	if i < len(c.ids) && c.ids[i] == id {
		return
	}
	c.ids = append(c.ids, 0)
	copy(c.ids[i+1:], c.ids[i:])
	c.ids[i] = id
	if _, ok := c.proto[id]; !ok {
		c.proto[id] = ""
	}
}

func (c *contactCache) remove(id model.ContactID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := sort.Search(len(c.ids), func(i int) bool { return c.ids[i] >= id })
	if i < len(c.ids) && c.ids[i] == id {
		c.ids = append(c.ids[:i], c.ids[i+1:]...)
	}
	delete(c.proto, id)
}

func (c *contactCache) has(id model.ContactID) bool {
	if id == model.Global {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.proto[id]
	return ok
}

func (c *contactCache) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

func (c *contactCache) get(id model.ContactID) (CachedContact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.proto[id]
	if !ok {
		return CachedContact{}, false
	}
	return CachedContact{ID: id, Proto: p}, true
}

func (c *contactCache) setProto(id model.ContactID, proto string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.proto[id]; ok {
		c.proto[id] = proto
	}
}

// next returns the first contact with a handle greater than after whose
// protocol matches proto (any protocol when proto is empty).
func (c *contactCache) next(after model.ContactID, proto string) model.ContactID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := sort.Search(len(c.ids), func(i int) bool { return c.ids[i] > after })
	for ; i < len(c.ids); i++ {
		id := c.ids[i]
		if proto == "" || c.proto[id] == proto {
			return id
		}
	}
	return model.Global
}

// observe keeps cached protocols in sync with Protocol/p writes.
func (c *contactCache) observe(contact model.ContactID, module, setting string, v model.Variant) {
	if contact == model.Global || module != model.ModuleProtocol || setting != model.SettingProto {
		return
	}
	p, err := v.ToString()
	if err != nil {
		p = ""
	}
	c.setProto(contact, p)
}

// settingKey addresses one setting in the resident overlay.
type settingKey struct {
	contact model.ContactID
	module  string
	setting string
}

// residentOverlay holds the values of resident settings for one engine.
// Values vanish with the engine; nothing here is ever written to disk.
type residentOverlay struct {
	mu        sync.RWMutex
	residents *Residents
	values    map[settingKey]model.Variant
}

func (o *residentOverlay) bind(r *Residents) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.residents = r
	if o.values == nil {
		o.values = make(map[settingKey]model.Variant)
	}
}

func (o *residentOverlay) intercepts(module, setting string) bool {
	o.mu.RLock()
	r := o.residents
	o.mu.RUnlock()
	return r.IsResident(module, setting)
}

func (o *residentOverlay) get(k settingKey) (model.Variant, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[k]
	if !ok {
		return model.None(), ErrNotFound
	}
	return v, nil
}

func (o *residentOverlay) put(k settingKey, v model.Variant) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.values == nil {
		o.values = make(map[settingKey]model.Variant)
	}
	o.values[k] = v
}

func (o *residentOverlay) remove(k settingKey) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.values[k]; !ok {
		return ErrNotFound
	}
	delete(o.values, k)
	return nil
}

// names returns resident setting names present for a contact's module.
func (o *residentOverlay) names(contact model.ContactID, module string) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []string
	for k := range o.values {
		if k.contact == contact && k.module == module {
			out = append(out, k.setting)
		}
	}
	return out
}

func (o *residentOverlay) modules() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []string
	for k := range o.values {
		out = append(out, k.module)
	}
	return out
}

func (o *residentOverlay) drop(contact model.ContactID, module string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k := range o.values {
		if k.contact == contact && (module == "" || k.module == module) {
			delete(o.values, k)
		}
	}
}

// mergeNames returns the sorted union of name lists without duplicates.
func mergeNames(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, n := range l {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// emit feeds names to an enumeration callback, stopping at the first error.
func emit(names []string, fn func(string) error) error {
	for _, n := range names {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// Package dsa provides the ordered key index used by in-memory storage.
// Uses go-radix for compressed prefix tree (radix tree).
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie wraps go-radix for a compressed prefix tree (radix tree).
// Setting keys share long prefixes (contact, then module), so a radix tree
// keeps them compact and turns "all settings of a module" into one prefix walk.
//
// Walks visit keys in lexical order. Not safe for concurrent use; callers lock.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie creates a new empty radix tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{
		tree: radix.New(),
	}
}

// Insert adds or replaces a key.
// Returns true if an existing value was replaced.
func (t *Trie[V]) Insert(key string, value V) bool {
	_, updated := t.tree.Insert(key, value)
	return updated
}

// Get looks up a key in the tree.
func (t *Trie[V]) Get(key string) (V, bool) {
	val, found := t.tree.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	v, ok := val.(V)
	return v, ok
}

// Delete removes a key from the tree.
// Returns true if the key was found and deleted.
func (t *Trie[V]) Delete(key string) bool {
	_, deleted := t.tree.Delete(key)
	return deleted
}

// DeletePrefix removes every key starting with prefix and returns how many went.
func (t *Trie[V]) DeletePrefix(prefix string) int {
	n := 0
	for _, k := range t.Keys(prefix) {
		if t.Delete(k) {
			n++
		}
	}
	return n
}

// WalkPrefix calls fn for each key under prefix in lexical order.
// Returning false from fn stops the walk.
func (t *Trie[V]) WalkPrefix(prefix string, fn func(key string, value V) bool) {
	t.tree.WalkPrefix(prefix, func(k string, v interface{}) bool {
		val, ok := v.(V)
		if !ok {
			return false
		}
		return !fn(k, val)
	})
}

// Keys returns all keys under prefix.
func (t *Trie[V]) Keys(prefix string) []string {
	var keys []string
	t.WalkPrefix(prefix, func(k string, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Size returns the number of keys in the tree.
func (t *Trie[V]) Size() int {
	return t.tree.Len()
}

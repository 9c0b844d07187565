package dsa

import (
	"reflect"
	"testing"
)

func TestTrieInsertGetDelete(t *testing.T) {
	tr := NewTrie[int]()

	if tr.Insert("a/b", 1) {
		t.Error("first insert should not report replacement")
	}
	if !tr.Insert("a/b", 2) {
		t.Error("second insert should report replacement")
	}

	v, ok := tr.Get("a/b")
	if !ok || v != 2 {
		t.Errorf("expected 2, got %d (found=%v)", v, ok)
	}
	if _, ok := tr.Get("a/c"); ok {
		t.Error("expected missing key")
	}

	if !tr.Delete("a/b") {
		t.Error("expected delete to succeed")
	}
	if tr.Delete("a/b") {
		t.Error("expected second delete to report missing key")
	}
	if tr.Size() != 0 {
		t.Errorf("expected empty tree, got %d", tr.Size())
	}
}

func TestTrieWalkPrefixOrdered(t *testing.T) {
	tr := NewTrie[string]()
	for _, k := range []string{"m\x00z", "m\x00a", "n\x00a", "m\x00k"} {
		tr.Insert(k, k)
	}

	got := tr.Keys("m\x00")
	want := []string{"m\x00a", "m\x00k", "m\x00z"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}

	var visited int
	tr.WalkPrefix("", func(string, string) bool {
		visited++
		return visited < 2
	})
	if visited != 2 {
		t.Errorf("expected walk to stop after 2 keys, visited %d", visited)
	}
}

func TestTrieDeletePrefix(t *testing.T) {
	tr := NewTrie[int]()
	tr.Insert("c1/a", 1)
	tr.Insert("c1/b", 2)
	tr.Insert("c2/a", 3)

	if n := tr.DeletePrefix("c1/"); n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	if keys := tr.Keys("c1/"); len(keys) != 0 {
		t.Errorf("expected prefix to be gone, got %v", keys)
	}
	if keys := tr.Keys("c2/"); len(keys) != 1 {
		t.Errorf("expected other prefix to remain, got %v", keys)
	}
}

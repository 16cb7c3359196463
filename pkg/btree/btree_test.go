package btree

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

func ref(off int64) Ref {
	return Ref{Offset: off, Len: 1}
}

func TestSetAndGet(t *testing.T) {
	tree := NewTree(3)

	tree.Set([]byte("b"), ref(2))
	tree.Set([]byte("a"), ref(1))
	tree.Set([]byte("c"), ref(3))

	for i, key := range []string{"a", "b", "c"} {
		r, ok := tree.Get([]byte(key))
		if !ok {
			t.Fatalf("key %q not found", key)
		}
		if r.Offset != int64(i+1) {
			t.Errorf("key %q: expected offset %d, got %d", key, i+1, r.Offset)
		}
	}

	if _, ok := tree.Get([]byte("missing")); ok {
		t.Error("missing key should not be found")
	}
	if tree.Len() != 3 {
		t.Errorf("expected Len 3, got %d", tree.Len())
	}
}

func TestSetOverwrites(t *testing.T) {
	tree := NewTree(3)
	tree.Set([]byte("k"), ref(1))
	tree.Set([]byte("k"), ref(2))

	r, ok := tree.Get([]byte("k"))
	if !ok || r.Offset != 2 {
		t.Errorf("expected overwritten offset 2, got %+v (found=%v)", r, ok)
	}
	if tree.Len() != 1 {
		t.Errorf("overwrite should not grow Len, got %d", tree.Len())
	}
}

func TestUpsertCallback(t *testing.T) {
	tree := NewTree(3)
	tree.Set([]byte("k"), ref(10))

	err := tree.Upsert([]byte("k"), func(old Ref, exists bool) (Ref, error) {
		if !exists {
			t.Error("expected exists=true")
		}
		if old.Offset != 10 {
			t.Errorf("expected old offset 10, got %d", old.Offset)
		}
		return ref(20), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	r, _ := tree.Get([]byte("k"))
	if r.Offset != 20 {
		t.Errorf("expected offset 20 after upsert, got %d", r.Offset)
	}

	calledNew := false
	tree.Upsert([]byte("new"), func(old Ref, exists bool) (Ref, error) {
		calledNew = true
		if exists {
			t.Error("expected exists=false for new key")
		}
		return ref(1), nil
	})
	if !calledNew {
		t.Error("callback not invoked for new key")
	}
}

func TestRemove(t *testing.T) {
	tree := NewTree(3)
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for i, k := range keys {
		tree.Set([]byte(k), ref(int64(i)))
	}

	if !tree.Remove([]byte("d")) {
		t.Fatal("remove existing key should return true")
	}
	if tree.Remove([]byte("d")) {
		t.Error("remove twice should return false")
	}
	if _, ok := tree.Get([]byte("d")); ok {
		t.Error("removed key still found")
	}
	if tree.Len() != len(keys)-1 {
		t.Errorf("expected Len %d, got %d", len(keys)-1, tree.Len())
	}

	// As demais permanecem
	for _, k := range keys {
		if k == "d" {
			continue
		}
		if _, ok := tree.Get([]byte(k)); !ok {
			t.Errorf("key %q lost after removal of d", k)
		}
	}
}

func TestManyKeysWithSplits(t *testing.T) {
	tree := NewTree(3) // Grau pequeno força muitos splits

	const n = 1000
	perm := rand.New(rand.NewSource(42)).Perm(n)
	for _, i := range perm {
		key := []byte(fmt.Sprintf("key-%06d", i))
		tree.Set(key, ref(int64(i)))
	}

	if tree.Len() != n {
		t.Fatalf("expected %d keys, got %d", n, tree.Len())
	}

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%06d", i))
		r, ok := tree.Get(key)
		if !ok {
			t.Fatalf("key %s not found", key)
		}
		if r.Offset != int64(i) {
			t.Errorf("key %s: expected %d, got %d", key, i, r.Offset)
		}
	}
}

func TestCursorOrderedIteration(t *testing.T) {
	tree := NewTree(3)

	const n = 200
	var want []string
	perm := rand.New(rand.NewSource(7)).Perm(n)
	for _, i := range perm {
		k := fmt.Sprintf("k%05d", i)
		tree.Set([]byte(k), ref(int64(i)))
		want = append(want, k)
	}
	sort.Strings(want)

	c := tree.NewCursor()
	c.Seek(tree, nil)

	var got []string
	for c.Valid() {
		got = append(got, string(c.Key()))
		c.Next()
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestCursorSeek(t *testing.T) {
	tree := NewTree(3)
	for _, k := range []string{"apple", "banana", "cherry", "date"} {
		tree.Set([]byte(k), ref(1))
	}

	c := tree.NewCursor()
	c.Seek(tree, []byte("b"))
	if !c.Valid() || string(c.Key()) != "banana" {
		t.Errorf("seek(b) should land on banana, got %q", c.Key())
	}

	c.Seek(tree, []byte("banana"))
	if !c.Valid() || string(c.Key()) != "banana" {
		t.Errorf("seek(banana) should land on banana, got %q", c.Key())
	}

	c.Seek(tree, []byte("zzz"))
	if c.Valid() {
		t.Errorf("seek past end should be invalid, got %q", c.Key())
	}
}

func TestInlineRefBytes(t *testing.T) {
	tree := NewTree(3)
	tree.Set([]byte("k"), Ref{Offset: 100, Len: 3, Inline: []byte("abc")})

	r, ok := tree.Get([]byte("k"))
	if !ok || !bytes.Equal(r.Inline, []byte("abc")) {
		t.Errorf("inline bytes lost: %+v", r)
	}
}

func TestRemoveDownToEmpty(t *testing.T) {
	tree := NewTree(3)
	const n = 100
	for i := 0; i < n; i++ {
		tree.Set([]byte(fmt.Sprintf("%04d", i)), ref(int64(i)))
	}
	for i := 0; i < n; i++ {
		if !tree.Remove([]byte(fmt.Sprintf("%04d", i))) {
			t.Fatalf("failed to remove %04d", i)
		}
	}
	if tree.Len() != 0 {
		t.Errorf("expected empty tree, got %d", tree.Len())
	}

	// Insere de novo após esvaziar
	tree.Set([]byte("again"), ref(1))
	if _, ok := tree.Get([]byte("again")); !ok {
		t.Error("tree unusable after emptying")
	}
}

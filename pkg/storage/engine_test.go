package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/wal"
)

func openTemp(t *testing.T) (*StorageEngine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.teg")
	se, err := Open(path, wal.DefaultOptions())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return se, path
}

func mustCommitSet(t *testing.T, se *StorageEngine, key, value string) {
	t.Helper()
	tx, err := se.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Set([]byte(key), []byte(value)); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestSetGetDelete(t *testing.T) {
	se, _ := openTemp(t)
	defer se.Close()

	tx, err := se.Begin()
	if err != nil {
		t.Fatal(err)
	}

	if err := tx.Set([]byte("name"), []byte("alice")); err != nil {
		t.Fatal(err)
	}

	// Write-through: a própria transação enxerga a escrita
	v, found, err := tx.Get([]byte("name"))
	if err != nil || !found {
		t.Fatalf("get after set failed: found=%v err=%v", found, err)
	}
	if string(v) != "alice" {
		t.Errorf("expected alice, got %q", v)
	}

	deleted, err := tx.Delete([]byte("name"))
	if err != nil || !deleted {
		t.Fatalf("delete failed: deleted=%v err=%v", deleted, err)
	}
	if _, found, _ := tx.Get([]byte("name")); found {
		t.Error("deleted key still visible")
	}

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestDurabilityAcrossReopen(t *testing.T) {
	se, path := openTemp(t)

	tx, _ := se.Begin()
	for i := 0; i < 10; i++ {
		if err := tx.Set([]byte(fmt.Sprintf("key-%02d", i)), []byte(fmt.Sprintf("val-%02d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := se.Close(); err != nil {
		t.Fatal(err)
	}

	se, err := Open(path, wal.DefaultOptions())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer se.Close()

	if se.Len() != 10 {
		t.Errorf("expected 10 live keys after reopen, got %d", se.Len())
	}
	for i := 0; i < 10; i++ {
		v, found, err := se.Get([]byte(fmt.Sprintf("key-%02d", i)))
		if err != nil || !found {
			t.Fatalf("key-%02d lost after reopen", i)
		}
		if string(v) != fmt.Sprintf("val-%02d", i) {
			t.Errorf("key-%02d: wrong value %q", i, v)
		}
	}
}

func TestScanRange(t *testing.T) {
	se, _ := openTemp(t)
	defer se.Close()

	for _, k := range []string{"a:1", "a:2", "a:3", "b:1"} {
		mustCommitSet(t, se, k, "v")
	}

	it := se.Scan([]byte("a:"), []byte("a;"))
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	want := []string{"a:1", "a:2", "a:3"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], keys[i])
		}
	}
}

func TestSecondOpenerFailsFast(t *testing.T) {
	se, path := openTemp(t)
	defer se.Close()

	_, err := Open(path, wal.DefaultOptions())
	if err == nil {
		t.Fatal("second opener should fail with FileLockTaken")
	}
	if _, ok := err.(*errors.FileLockTakenError); !ok {
		t.Errorf("expected FileLockTakenError, got %T: %v", err, err)
	}
}

func TestNestedBeginRejected(t *testing.T) {
	se, _ := openTemp(t)
	defer se.Close()

	tx, err := se.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := se.Begin(); err == nil {
		t.Error("nested Begin should fail")
	}
	tx.Rollback()

	// Depois do terminal, um novo Begin funciona
	tx2, err := se.Begin()
	if err != nil {
		t.Fatalf("begin after rollback failed: %v", err)
	}
	tx2.Rollback()
}

func TestInlineValuesServedWithoutDisk(t *testing.T) {
	se, _ := openTemp(t)
	defer se.Close()

	small := []byte("tiny")
	mustCommitSet(t, se, "small", string(small))

	// Valor inline não toca o cache (nem o disco)
	before := se.Stats()
	v, found, err := se.Get([]byte("small"))
	if err != nil || !found || !bytes.Equal(v, small) {
		t.Fatalf("get failed: %v", err)
	}
	after := se.Stats()
	if after.Misses != before.Misses {
		t.Errorf("inline value should not hit the cache path")
	}
}

func TestLargeValueGoesThroughCache(t *testing.T) {
	opts := wal.DefaultOptions()
	opts.InlineValueThreshold = 4
	path := filepath.Join(t.TempDir(), "cache.teg")
	se, err := Open(path, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer se.Close()

	big := bytes.Repeat([]byte("x"), 64)
	tx, _ := se.Begin()
	if err := tx.Set([]byte("big"), big); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	// Primeira leitura: miss; segunda: hit
	if _, _, err := se.Get([]byte("big")); err != nil {
		t.Fatal(err)
	}
	st1 := se.Stats()
	if _, _, err := se.Get([]byte("big")); err != nil {
		t.Fatal(err)
	}
	st2 := se.Stats()
	if st2.Hits != st1.Hits+1 {
		t.Errorf("expected a cache hit on second read: %+v -> %+v", st1, st2)
	}
}

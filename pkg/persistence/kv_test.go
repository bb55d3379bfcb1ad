package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testKV(t *testing.T, kv KV) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := kv.Get("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("SetGet", func(t *testing.T) {
		if err := kv.Set("a/1", []byte(`{"x":1}`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := kv.Get("a/1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != `{"x":1}` {
			t.Errorf("Get() = %s", got)
		}
	})

	t.Run("KeysPrefix", func(t *testing.T) {
		_ = kv.Set("a/2", []byte(`2`))
		_ = kv.Set("b/1", []byte(`3`))

		keys, err := kv.Keys("a/")
		if err != nil {
			t.Fatalf("Keys() error = %v", err)
		}
		if len(keys) != 2 || keys[0] != "a/1" || keys[1] != "a/2" {
			t.Errorf("Keys() = %v", keys)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := kv.Delete("a/1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := kv.Delete("a/1"); err != nil {
			t.Errorf("second Delete() error = %v", err)
		}
		if _, err := kv.Get("a/1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after delete error = %v", err)
		}
	})
}

func TestMemoryKV(t *testing.T) {
	testKV(t, NewMemoryKV())
}

func TestFileKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledctl.json")
	testKV(t, NewFileKV(path))

	t.Run("Reopen", func(t *testing.T) {
		reopened := NewFileKV(path)
		got, err := reopened.Get("a/2")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != "2" {
			t.Errorf("Get() = %s, want 2", got)
		}
	})

	t.Run("RejectsInvalidJSON", func(t *testing.T) {
		if err := NewFileKV(path).Set("k", []byte("{")); err == nil {
			t.Error("Set() accepted invalid JSON")
		}
	})

	t.Run("CorruptFile", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(bad, []byte("not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewFileKV(bad).Get("k"); err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want decode error", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		kv := NewFileKV(path)
		if err := kv.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("file still exists: %v", err)
		}
		if err := kv.Clear(); err != nil {
			t.Errorf("second Clear() error = %v", err)
		}
	})
}

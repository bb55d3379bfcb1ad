package persistence

import (
	"path/filepath"
	"testing"
	"time"
)

func TestPairingStore(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	newStore := func(t *testing.T) *PairingStore {
		t.Helper()
		s := NewPairingStore(NewMemoryKV())
		for _, d := range []PairedDevice{
			{ID: "AA", OwnerUserID: "alice", LastConnected: base},
			{ID: "BB", OwnerUserID: "alice", LastConnected: base.Add(time.Hour)},
			{ID: "CC", OwnerUserID: "bob", LastConnected: base.Add(2 * time.Hour)},
		} {
			if err := s.Put(d); err != nil {
				t.Fatalf("Put(%s) error = %v", d.ID, err)
			}
		}
		return s
	}

	t.Run("GetByUser", func(t *testing.T) {
		got, err := newStore(t).Get("alice")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(got) != 2 || got[0].ID != "BB" || got[1].ID != "AA" {
			t.Errorf("Get(alice) = %+v", got)
		}
	})

	t.Run("GetLastConnected", func(t *testing.T) {
		got, err := newStore(t).GetLastConnected()
		if err != nil {
			t.Fatalf("GetLastConnected() error = %v", err)
		}
		if got == nil || got.ID != "CC" {
			t.Errorf("GetLastConnected() = %+v, want CC", got)
		}
	})

	t.Run("EmptyStore", func(t *testing.T) {
		s := NewPairingStore(NewMemoryKV())
		got, err := s.GetLastConnected()
		if err != nil || got != nil {
			t.Errorf("GetLastConnected() = %+v, %v", got, err)
		}
		d, err := s.Lookup("nope")
		if err != nil || d != nil {
			t.Errorf("Lookup() = %+v, %v", d, err)
		}
	})

	t.Run("RemoveAndUpdate", func(t *testing.T) {
		s := newStore(t)
		if err := s.Remove("BB"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}

		d, _ := s.Lookup("AA")
		d.ConnectionCount++
		d.IsFavorite = true
		if err := s.Put(*d); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		got, _ := s.Get("alice")
		if len(got) != 1 || got[0].ConnectionCount != 1 || !got[0].IsFavorite {
			t.Errorf("Get(alice) = %+v", got)
		}
	})

	t.Run("RejectsEmptyID", func(t *testing.T) {
		if err := NewPairingStore(NewMemoryKV()).Put(PairedDevice{}); err == nil {
			t.Error("Put() accepted empty ID")
		}
	})

	t.Run("FileBacked", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pairings.json")
		s := NewPairingStore(NewFileKV(path))
		if err := s.Put(PairedDevice{ID: "AA", Name: "LED Controller", ManufacturerData: []byte{1, 2}, LastConnected: base}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		got, err := NewPairingStore(NewFileKV(path)).Lookup("AA")
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if got.Name != "LED Controller" || len(got.ManufacturerData) != 2 || !got.LastConnected.Equal(base) {
			t.Errorf("Lookup() = %+v", got)
		}
	})
}

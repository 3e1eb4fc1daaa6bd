package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/duskline/waltalk/deviceid"
	"github.com/duskline/waltalk/dial"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	m := dial.NewManager(nil, nil)
	if err := m.Save(0, dial.ConnDevice, "10000001", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetPassword(0, "$2a$10$fakehash"); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(3, dial.ConnFrequency, "20000009", "night-net"); err != nil {
		t.Fatal(err)
	}

	id, err := deviceid.Custom("12345678")
	if err != nil {
		t.Fatal(err)
	}

	st, err := FromManager(id, m)
	if err != nil {
		t.Fatalf("FromManager: %v", err)
	}
	if len(st.Slots) != dial.Positions {
		t.Fatalf("len(Slots) = %d, want %d", len(st.Slots), dial.Positions)
	}

	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := Save(path, st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != fileMode {
		t.Fatalf("perm = %v, want %v", info.Mode().Perm(), os.FileMode(fileMode))
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DeviceID != "12345678" {
		t.Fatalf("DeviceID = %q, want 12345678", loaded.DeviceID)
	}
	if !loaded.Slots[0].Configured || loaded.Slots[0].Code != "10000001" {
		t.Fatalf("slot 0 not restored correctly: %+v", loaded.Slots[0])
	}
	if loaded.Slots[0].PasswordHash != "$2a$10$fakehash" {
		t.Fatalf("slot 0 password hash not restored")
	}
	if loaded.Slots[3].ConnType != "frequency" {
		t.Fatalf("slot 3 conn_type = %q, want frequency", loaded.Slots[3].ConnType)
	}

	m2 := dial.NewManager(nil, nil)
	if err := Restore(loaded, m2); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	slot0, err := m2.Slot(0)
	if err != nil {
		t.Fatal(err)
	}
	if slot0.State != dial.StateSaved || slot0.Code != "10000001" || slot0.PasswordHash != "$2a$10$fakehash" {
		t.Fatalf("restored slot 0 = %+v", slot0)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

// Package persist loads and saves a device's identity and its 15 dial
// slots to a single YAML file on disk (original_source's NVS-backed
// device_id and dial_manager state, spec §4.5/§4.9), following the
// lorawan_server/ka9q_ubersdr pattern of a single yaml.v3-tagged struct
// with a Load/Save pair around os.ReadFile/os.WriteFile.
package persist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/duskline/waltalk/dial"
	"github.com/duskline/waltalk/deviceid"
)

// fileMode matches the permissions a device-local config file should
// carry: owner read/write only, since slot records hold password hashes.
const fileMode = 0o600

// SlotRecord is the on-disk shape of one dial slot. PasswordHash is a
// bcrypt hash (crypto.HashFrequencyPassword), never a plaintext secret.
type SlotRecord struct {
	Configured   bool   `yaml:"configured"`
	ConnType     string `yaml:"conn_type,omitempty"` // "device" | "frequency"
	Code         string `yaml:"code,omitempty"`
	Name         string `yaml:"name,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
	IsAdmin      bool   `yaml:"is_admin,omitempty"`
}

// State is the full on-disk record: one device identity plus 15 slots.
type State struct {
	DeviceID string       `yaml:"device_id"`
	Slots    []SlotRecord `yaml:"slots"`
}

// FromManager snapshots a device id and a dial manager's 15 slots into a
// State ready to be saved.
func FromManager(id deviceid.Identity, m *dial.Manager) (State, error) {
	st := State{DeviceID: id.String, Slots: make([]SlotRecord, dial.Positions)}
	for i := 0; i < dial.Positions; i++ {
		slot, err := m.Slot(i)
		if err != nil {
			return State{}, err
		}
		st.Slots[i] = SlotRecord{
			Configured:   slot.Configured,
			ConnType:     connTypeName(slot.ConnType),
			Code:         slot.Code,
			Name:         slot.Name,
			PasswordHash: slot.PasswordHash,
			IsAdmin:      slot.IsAdmin,
		}
	}
	return st, nil
}

// Restore replays a saved State into a dial manager, configuring every
// slot it marks Configured (state lands as dial.StateSaved; restoring
// does not reconnect). The device id is returned for the caller to
// compare against or accept as the active identity.
func Restore(st State, m *dial.Manager) error {
	for i, rec := range st.Slots {
		if i >= dial.Positions {
			break
		}
		if !rec.Configured {
			continue
		}
		connType, err := parseConnType(rec.ConnType)
		if err != nil {
			return fmt.Errorf("persist: slot %d: %w", i, err)
		}
		if err := m.Save(i, connType, rec.Code, rec.Name); err != nil {
			return fmt.Errorf("persist: slot %d: %w", i, err)
		}
		if rec.PasswordHash != "" {
			if err := m.SetPassword(i, rec.PasswordHash); err != nil {
				return fmt.Errorf("persist: slot %d: %w", i, err)
			}
		}
	}
	return nil
}

// Load reads and parses a State from path.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, fmt.Errorf("persist: read %s: %w", path, err)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("persist: unmarshal %s: %w", path, err)
	}
	return st, nil
}

// Save serializes st and writes it to path with owner-only permissions.
func Save(path string, st State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("persist: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("persist: write %s: %w", path, err)
	}
	return nil
}

func connTypeName(c dial.ConnType) string {
	if c == dial.ConnFrequency {
		return "frequency"
	}
	return "device"
}

func parseConnType(s string) (dial.ConnType, error) {
	switch s {
	case "", "device":
		return dial.ConnDevice, nil
	case "frequency":
		return dial.ConnFrequency, nil
	default:
		return 0, fmt.Errorf("unknown conn_type %q", s)
	}
}

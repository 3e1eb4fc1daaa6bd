// Package deviceid derives and verifies a device's stable 8-digit
// identifier (original_source core/device_id.c/.h).
package deviceid

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/duskline/waltalk/crypto"
)

const (
	RawSize    = 16
	StringSize = 8
)

// Source records which hardware collaborator produced the raw ID bytes.
type Source uint8

const (
	SourceUnknown Source = iota
	SourceMACWiFi
	SourceMACBluetooth
	SourceEFuse
	SourceFlash
	SourceRandom
	SourceCustom
)

func (s Source) String() string {
	switch s {
	case SourceMACWiFi:
		return "mac_wifi"
	case SourceMACBluetooth:
		return "mac_bt"
	case SourceEFuse:
		return "efuse"
	case SourceFlash:
		return "flash"
	case SourceRandom:
		return "random"
	case SourceCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// HardwareSource is an external collaborator able to supply bytes that
// uniquely identify this piece of hardware. The host build has none of
// these; callers wanting hardware-derived IDs on real targets implement
// HardwareSource against their platform's MAC/eFuse/flash APIs.
type HardwareSource interface {
	// Bytes returns the source's raw identifying bytes, or ok=false if the
	// source is unavailable on this hardware.
	Bytes() (data []byte, ok bool)
}

// Identity is a device's derived identifier in its three representations.
type Identity struct {
	Raw    [RawSize]byte
	String string // 8 ASCII digits
	Hex    string
	Source Source
}

// Generate tries each hardware source in priority order (WiFi MAC, BT MAC,
// eFuse UID, flash UID) and falls back to a random ID if none is available,
// mirroring device_id_init's fallback chain.
func Generate(sources ...HardwareSource) Identity {
	priority := []Source{SourceMACWiFi, SourceMACBluetooth, SourceEFuse, SourceFlash}

	for i, src := range sources {
		if i >= len(priority) {
			break
		}
		if data, ok := src.Bytes(); ok {
			var raw [RawSize]byte
			copy(raw[:], data)
			return newIdentity(raw, priority[i])
		}
	}

	var raw [RawSize]byte
	_, _ = rand.Read(raw[:])
	return newIdentity(raw, SourceRandom)
}

// Custom builds an Identity around an operator-chosen 8-digit string
// (device_id_set_custom).
func Custom(id string) (Identity, error) {
	if !ValidateFormat(id) {
		return Identity{}, fmt.Errorf("deviceid: invalid custom id %q", id)
	}
	var raw [RawSize]byte
	copy(raw[:], id)
	return Identity{
		Raw:    raw,
		String: id,
		Hex:    rawToHex(raw[:]),
		Source: SourceCustom,
	}, nil
}

func newIdentity(raw [RawSize]byte, source Source) Identity {
	return Identity{
		Raw:    raw,
		String: rawToString(raw[:]),
		Hex:    rawToHex(raw[:]),
		Source: source,
	}
}

// rawToString hashes raw and reduces the first 4 digest bytes modulo
// 90,000,000 then offsets by 10,000,000, guaranteeing an 8-digit id with no
// leading zero.
func rawToString(raw []byte) string {
	digest := sha256.Sum256(raw)
	value := binary.BigEndian.Uint32(digest[:4])
	value = (value % 90_000_000) + 10_000_000
	return fmt.Sprintf("%08d", value)
}

func rawToHex(raw []byte) string {
	var b strings.Builder
	for _, c := range raw {
		fmt.Fprintf(&b, "%02x", c)
	}
	return b.String()
}

// ValidateFormat reports whether id is exactly 8 decimal digits.
func ValidateFormat(id string) bool {
	if len(id) != StringSize {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

var hmacSecret = []byte("waltalk-device-id-hmac-secret-32")

// CreateAuthToken produces an "ID.TIMESTAMP.SIG16HEX" token authenticating
// id at the given timestamp: HMAC-SHA256 over id||timestamp(LE uint32),
// truncated to its first 8 bytes and hex-encoded.
func CreateAuthToken(id string, timestamp time.Time) (string, error) {
	if !ValidateFormat(id) {
		return "", fmt.Errorf("deviceid: invalid id %q", id)
	}

	ts := uint32(timestamp.Unix())
	sig := signToken(id, ts)

	return fmt.Sprintf("%s.%d.%s", id, ts, sig), nil
}

func signToken(id string, ts uint32) string {
	data := make([]byte, StringSize+4)
	copy(data, id)
	binary.LittleEndian.PutUint32(data[StringSize:], ts)

	mac := hmac.New(sha256.New, hmacSecret)
	mac.Write(data)
	full := mac.Sum(nil)

	return fmt.Sprintf("%x", full[:8])
}

// VerifyAuthToken parses a CreateAuthToken token, checks it names
// expectedID, checks its age against maxAge, and verifies its signature in
// constant time.
func VerifyAuthToken(token, expectedID string, maxAge time.Duration, now time.Time) bool {
	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 {
		return false
	}

	id, tsStr, sigHex := parts[0], parts[1], parts[2]
	if id != expectedID || !ValidateFormat(id) {
		return false
	}

	tsVal, err := strconv.ParseUint(tsStr, 10, 32)
	if err != nil {
		return false
	}
	ts := uint32(tsVal)

	age := now.Sub(time.Unix(int64(ts), 0))
	if age > maxAge {
		return false
	}

	expectedSig := signToken(id, ts)
	return crypto.ConstantTimeCompare([]byte(sigHex), []byte(expectedSig))
}

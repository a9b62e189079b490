// Package domain holds the core types shared across keyfetch layers.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrKeyNotFound means every reachable keyserver confirmed the key is absent.
var ErrKeyNotFound = errors.New("key not found")

// Fingerprint is an uppercase hex OpenPGP fingerprint (40 hex chars for v4)
// or a 16-char long key id.
type Fingerprint string

// ParseFingerprint normalizes and validates a fingerprint: an optional 0x
// prefix and interior spaces are dropped, hex digits are uppercased.
func ParseFingerprint(s string) (Fingerprint, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 16 && len(s) != 40 {
		return "", fmt.Errorf("fingerprint must be 16 or 40 hex chars, got %d", len(s))
	}
	for _, c := range s {
		if !isHex(c) {
			return "", fmt.Errorf("fingerprint contains non-hex char %q", c)
		}
	}
	return Fingerprint(strings.ToUpper(s)), nil
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// KeyID returns the long key id, the trailing 16 chars of the fingerprint.
func (f Fingerprint) KeyID() string {
	if len(f) <= 16 {
		return string(f)
	}
	return string(f[len(f)-16:])
}

func (f Fingerprint) String() string {
	return string(f)
}

// PublicKey is one armored OpenPGP public key fetched from a keyserver.
type PublicKey struct {
	Fingerprint Fingerprint `json:"fingerprint" db:"fingerprint"`
	KeyID       string      `json:"key_id"      db:"key_id"`
	Armored     string      `json:"armored"     db:"armored"`
	Source      string      `json:"source"      db:"source"`
	FetchedAt   time.Time   `json:"fetched_at"  db:"fetched_at"`
}
